package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the reporter application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Refresh   RefreshConfig
	Report    ReportConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig configures the durable JetStream subscription.
type NATSConfig struct {
	URL           string
	ClientName    string
	StreamName    string
	SubjectPrefix string
	DurableName   string
	AckWait       time.Duration
	MaxDeliver    int
	MaxReconnects int
	ReconnectWait time.Duration
	StreamMaxAge  time.Duration
}

// RefreshConfig configures the aggregate view refresh loop.
type RefreshConfig struct {
	Interval time.Duration
}

// ReportConfig configures the reporting query layer.
type ReportConfig struct {
	// PageSize bounds the hourly/daily row listings of each report.
	PageSize int
	// CacheTTL bounds staleness of cached report responses. Zero disables
	// caching even when Redis is available.
	CacheTTL time.Duration
}

type AuthConfig struct {
	Enabled bool
	APIKey  string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("REPORTER_HTTP_ADDR", ":8080"),
			Env:             getEnv("REPORTER_ENV", "development"),
			ShutdownTimeout: getDurationEnv("REPORTER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("REPORTER_DB_HOST", "localhost"),
			Port:     getIntEnv("REPORTER_DB_PORT", 5432),
			User:     getEnv("REPORTER_DB_USER", "reporter"),
			Password: getEnv("REPORTER_DB_PASSWORD", "reporter_secret"),
			DBName:   getEnv("REPORTER_DB_NAME", "reporter"),
			SSLMode:  getEnv("REPORTER_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("REPORTER_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("REPORTER_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REPORTER_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REPORTER_REDIS_PASSWORD", ""),
			DB:       getIntEnv("REPORTER_REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:           getEnv("REPORTER_NATS_URL", "nats://localhost:4222"),
			ClientName:    getEnv("REPORTER_NATS_CLIENT_NAME", "reporter"),
			StreamName:    getEnv("REPORTER_NATS_STREAM", "EVENTS"),
			SubjectPrefix: getEnv("REPORTER_NATS_SUBJECT_PREFIX", "events"),
			DurableName:   getEnv("REPORTER_NATS_DURABLE", "reporter-ingest"),
			AckWait:       getDurationEnv("REPORTER_NATS_ACK_WAIT", 30*time.Second),
			MaxDeliver:    getIntEnv("REPORTER_NATS_MAX_DELIVER", 5),
			MaxReconnects: getIntEnv("REPORTER_NATS_MAX_RECONNECTS", -1),
			ReconnectWait: getDurationEnv("REPORTER_NATS_RECONNECT_WAIT", 2*time.Second),
			StreamMaxAge:  getDurationEnv("REPORTER_NATS_STREAM_MAX_AGE", 24*time.Hour),
		},
		Refresh: RefreshConfig{
			Interval: getDurationEnv("REPORTER_REFRESH_INTERVAL", time.Minute),
		},
		Report: ReportConfig{
			PageSize: getIntEnv("REPORTER_REPORT_PAGE_SIZE", 500),
			CacheTTL: getDurationEnv("REPORTER_REPORT_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			Enabled: getBoolEnv("REPORTER_AUTH_ENABLED", false),
			APIKey:  getEnv("REPORTER_API_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("REPORTER_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("REPORTER_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("REPORTER_RATE_LIMIT_BURST", 50),
		},
		Log: LogConfig{
			Level:  getEnv("REPORTER_LOG_LEVEL", "info"),
			Format: getEnv("REPORTER_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("REPORTER_METRICS_ENABLED", true),
			Path:    getEnv("REPORTER_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("REPORTER_API_KEY is required when auth is enabled")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("REPORTER_REFRESH_INTERVAL must be positive")
	}
	if c.Report.PageSize <= 0 {
		return fmt.Errorf("REPORTER_REPORT_PAGE_SIZE must be positive")
	}
	if c.NATS.MaxDeliver <= 0 {
		return fmt.Errorf("REPORTER_NATS_MAX_DELIVER must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
