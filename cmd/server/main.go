// Package main is the entrypoint for the ErrorCue API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/errorcue/errorcue/internal/api"
	"github.com/errorcue/errorcue/internal/api/handler"
	mw "github.com/errorcue/errorcue/internal/api/middleware"
	"github.com/errorcue/errorcue/internal/cache"
	"github.com/errorcue/errorcue/internal/config"
	"github.com/errorcue/errorcue/internal/errorlog"
	"github.com/errorcue/errorcue/internal/metrics"
	"github.com/errorcue/errorcue/internal/notify"
	"github.com/errorcue/errorcue/internal/retry"
	"github.com/errorcue/errorcue/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "errorcue",
		Short:         "ErrorCue automation error dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL not set")
			}
			if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("database migrations applied")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert sample error records into an empty database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return seed(cmd.Context())
		},
	})
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Logging, os.Stdout))
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func seed(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Store.Backend = config.BackendPostgres
	cfg.Store.DemoFallback = false
	cfg.Store.SeedSampleData = false

	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.SeedSampleData(ctx, s, cfg.Server.DefaultOwner)
	if err != nil {
		return err
	}
	slog.Info("seed finished", "inserted", n)
	return nil
}

func run(parent context.Context) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "store_backend", cfg.Store.Backend)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the record store
	s, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()
	if s.Mode() == store.ModeDemo {
		slog.Warn("running in demo mode, records are kept in memory only", "storage", s.Mode())
	}

	// 3. Optional Redis cache
	c, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Notifiers
	notifier, closeNotifier := buildNotifier(cfg.Notify)
	defer closeNotifier()

	// 5. Retry profile
	profile := retry.DefaultProfile()
	if cfg.Retry.ProfileFile != "" {
		profile, err = retry.LoadProfile(cfg.Retry.ProfileFile)
		if err != nil {
			return fmt.Errorf("load retry profile: %w", err)
		}
		slog.Info("retry profile loaded", "path", cfg.Retry.ProfileFile)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("create metrics collector: %w", err)
	}

	svc := errorlog.NewService(errorlog.Deps{
		Store:         s,
		Cache:         c,
		Notifier:      notifier,
		Simulator:     retry.NewSimulator(profile),
		Recorder:      collector,
		CacheTTL:      cfg.Redis.CacheTTL,
		NotifyTimeout: cfg.Notify.Timeout,
	})

	// 6. Build router with dependencies
	var rateLimit *mw.RateLimit
	if cfg.Ingest.RateLimitPerMin > 0 {
		rateLimit = mw.NewRateLimit(c, cfg.Ingest.RateLimitPerMin, collector.RateLimited)
	}

	var healthCache handler.Pinger
	if c.Enabled() {
		healthCache = c
	}

	router := api.NewRouter(api.Dependencies{
		StorageMode:    string(s.Mode()),
		DefaultOwner:   cfg.Server.DefaultOwner,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		DebugRoutes:    cfg.Server.DebugRoutes,
		TrustProxy:     cfg.Server.TrustProxy,
		RateLimit:      rateLimit,
		Metrics:        collector,

		HealthHandler:        handler.NewHealthHandler(s.Mode(), s, healthCache),
		IngestHandler:        handler.NewIngestHandler(svc),
		ListHandler:          handler.NewListHandler(svc),
		StatsHandler:         handler.NewStatsHandler(svc),
		FilterOptionsHandler: handler.NewFilterOptionsHandler(svc),
		RetryHandler:         handler.NewRetryHandler(svc),
		ResolveHandler:       handler.NewResolveHandler(svc),
		TestErrorHandler:     handler.NewTestErrorHandler(svc),
	})

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "storage", s.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openCache connects to Redis when configured. Without a URL caching and
// rate limiting are disabled.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func(), error) {
	if cfg.URL == "" {
		slog.Info("REDIS_URL not set, caching and rate limiting disabled")
		return cache.NoopCache{}, func() {}, nil
	}

	rc, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return rc, func() { rc.Close() }, nil
}

// buildNotifier assembles the configured notification channels. An
// unreachable NATS server is logged and skipped.
func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, func()) {
	var channels notify.Multi
	closeFn := func() {}

	if cfg.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlackNotifier(cfg.SlackWebhookURL, cfg.Timeout))
	}
	if cfg.NATSURL != "" {
		conn, err := notify.ConnectNATS(cfg.NATSURL, cfg.Timeout)
		if err != nil {
			slog.Warn("NATS unavailable, error events will not be published", "error", err)
		} else {
			channels = append(channels, notify.NewNATSPublisher(conn, cfg.NATSSubject))
			closeFn = func() { _ = conn.Drain() }
		}
	}

	if len(channels) == 0 {
		slog.Info("no notification channels configured")
		return notify.Noop{}, closeFn
	}
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	slog.Info("notifications enabled", "channels", names)
	return channels, closeFn
}
