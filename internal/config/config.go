package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ErrorCue server.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ingest   IngestConfig
	Notify   NotifyConfig
	Retry    RetryConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	DefaultOwner       string
	CORSAllowedOrigins []string
	DebugRoutes        bool
	// TrustProxy takes the client address from X-Real-IP / X-Forwarded-For.
	// Enable only behind a proxy that sets those headers.
	TrustProxy         bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Backend        string
	DemoFallback   bool
	SeedSampleData bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// RedisConfig is optional. An empty URL disables caching and rate limiting.
type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type IngestConfig struct {
	RateLimitPerMin int
}

type NotifyConfig struct {
	SlackWebhookURL string
	Timeout         time.Duration
	NATSURL         string
	NATSSubject     string
}

type RetryConfig struct {
	ProfileFile string
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:5175",
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first; variables already set win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("ERRORCUE_PORT", 3001),
			Env:                envString("ERRORCUE_ENV", "development"),
			DefaultOwner:       envString("DEFAULT_OWNER", "local-dev-user"),
			CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
			DebugRoutes:        envBool("DEBUG_ROUTES", false),
			TrustProxy:         envBool("TRUST_PROXY", false),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "json")),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(envString("STORE_BACKEND", BackendPostgres)),
			DemoFallback:   envBool("DEMO_FALLBACK", false),
			SeedSampleData: envBool("SEED_SAMPLE_DATA", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			CacheTTL: envDuration("CACHE_TTL", 30*time.Second),
		},
		Ingest: IngestConfig{
			RateLimitPerMin: envInt("INGEST_RATE_LIMIT_PER_MIN", 120),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
			Timeout:         envDuration("NOTIFY_TIMEOUT", 5*time.Second),
			NATSURL:         os.Getenv("NATS_URL"),
			NATSSubject:     envString("NATS_SUBJECT", "errorcue.errors.created"),
		},
		Retry: RetryConfig{
			ProfileFile: os.Getenv("RETRY_PROFILE_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("ERRORCUE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.DefaultOwner) == "" {
		return fmt.Errorf("DEFAULT_OWNER must not be blank")
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" && !c.Store.DemoFallback {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.Store.Backend)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Notify.SlackWebhookURL != "" &&
		!strings.HasPrefix(c.Notify.SlackWebhookURL, "http://") && !strings.HasPrefix(c.Notify.SlackWebhookURL, "https://") {
		return fmt.Errorf("SLACK_WEBHOOK_URL must start with http:// or https://")
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}

	if c.Ingest.RateLimitPerMin < 0 {
		return fmt.Errorf("INGEST_RATE_LIMIT_PER_MIN must not be negative")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated value, dropping blanks.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
