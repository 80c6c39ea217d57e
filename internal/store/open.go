package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/errorcue/errorcue/internal/config"
)

// Open selects and prepares the record store described by cfg. It returns the
// store and a function that releases its resources.
//
// With the memory backend, or with the postgres backend and DemoFallback set
// when the database cannot be reached, it returns a seeded MemoryStore whose
// Mode is ModeDemo.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	if cfg.Store.Backend == config.BackendMemory {
		slog.Warn("using in-memory store, data will not survive a restart", "storage", ModeDemo)
		return openDemo(ctx, cfg)
	}

	s, closeFn, err := openPostgres(ctx, cfg)
	if err != nil {
		if !cfg.Store.DemoFallback {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		slog.Warn("database unavailable, falling back to demo store", "error", err, "storage", ModeDemo)
		return openDemo(ctx, cfg)
	}
	return s, closeFn, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL not set")
	}

	pool, err := Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	if err := RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		pool.Close()
		return nil, nil, err
	}

	s := NewPostgresStore(pool)
	if cfg.Store.SeedSampleData {
		if _, err := SeedSampleData(ctx, s, cfg.Server.DefaultOwner); err != nil {
			slog.Error("failed to seed sample data", "error", err)
		}
	}
	slog.Info("connected to postgres", "storage", ModeDurable)
	return s, pool.Close, nil
}

func openDemo(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	s := NewMemoryStore()
	if _, err := SeedSampleData(ctx, s, cfg.Server.DefaultOwner); err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}
