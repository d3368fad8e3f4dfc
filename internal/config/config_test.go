package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.True(t, cfg.IsDevelopment())

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, "reporter-ingest", cfg.NATS.DurableName)
	assert.Equal(t, 30*time.Second, cfg.NATS.AckWait)
	assert.Equal(t, 5, cfg.NATS.MaxDeliver)

	assert.Equal(t, time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 500, cfg.Report.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Report.CacheTTL)
	assert.False(t, cfg.Auth.Enabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REPORTER_HTTP_ADDR", ":9090")
	t.Setenv("REPORTER_ENV", "production")
	t.Setenv("REPORTER_DB_PORT", "5433")
	t.Setenv("REPORTER_REFRESH_INTERVAL", "5m")
	t.Setenv("REPORTER_REPORT_CACHE_TTL", "0s")
	t.Setenv("REPORTER_AUTH_ENABLED", "true")
	t.Setenv("REPORTER_API_KEY", "secret")
	t.Setenv("REPORTER_RATE_LIMIT_RPS", "10.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 5*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, time.Duration(0), cfg.Report.CacheTTL)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, 10.5, cfg.RateLimit.RPS)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("REPORTER_DB_PORT", "not-a-number")
	t.Setenv("REPORTER_REFRESH_INTERVAL", "soon")
	t.Setenv("REPORTER_METRICS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, time.Minute, cfg.Refresh.Interval)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_AuthWithoutKeyFails(t *testing.T) {
	t.Setenv("REPORTER_AUTH_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REPORTER_API_KEY")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Refresh: RefreshConfig{Interval: time.Minute},
			Report:  ReportConfig{PageSize: 500},
			NATS:    NATSConfig{MaxDeliver: 5},
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Refresh.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Report.PageSize = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.NATS.MaxDeliver = 0
	assert.Error(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "reporter",
		Password: "pw", DBName: "reporter", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://reporter:pw@db:5432/reporter?sslmode=disable", d.DSN())
}
