package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/errorcue/errorcue/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// connectTimeout bounds the initial connect and ping so an unreachable
// database is detected quickly enough to fall back to the demo store.
const connectTimeout = 10 * time.Second

// Connect opens a pgx pool for the error_records database and verifies it
// answers a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if idle := int32(cfg.MaxIdleConns); idle > 0 {
		poolCfg.MinConns = min(idle, poolCfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Debug("database pool ready",
		"max_conns", poolCfg.MaxConns,
		"min_conns", poolCfg.MinConns,
		"host", poolCfg.ConnConfig.Host,
	)
	return pool, nil
}
