package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "data/tripsettle.db", cfg.Database.Path)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, "0.01", cfg.Settlement.ToleranceDecimal().StringFixed(2))
	assert.False(t, cfg.Settlement.FailFast)
	assert.Equal(t, 30*time.Second, cfg.Settlement.RecomputeTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
  shutdown_timeout: 3s
database:
  path: /tmp/settle.db
log:
  level: debug
  format: json
settlement:
  tolerance: 0.05
  fail_fast: true
  recompute_timeout: 5s
lock:
  backend: redis
  redis_addr: localhost:6379
  tries: 4
metrics:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/settle.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "0.05", cfg.Settlement.ToleranceDecimal().StringFixed(2))
	assert.True(t, cfg.Settlement.FailFast)
	assert.Equal(t, 5*time.Second, cfg.Settlement.RecomputeTimeout)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, 4, cfg.Lock.Tries)
	assert.Equal(t, 30*time.Second, cfg.Lock.Expiry, "unset fields keep defaults")
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\n")
	t.Setenv("SETTLE_SERVER_PORT", "7070")
	t.Setenv("SETTLE_SETTLEMENT_FAIL_FAST", "true")
	t.Setenv("SETTLE_LOCK_RETRY_DELAY", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Settlement.FailFast)
	assert.Equal(t, 250*time.Millisecond, cfg.Lock.RetryDelay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SETTLE_SERVER_PORT":          "server.port",
		"SETTLE_LOCK_REDIS_ADDR":      "lock.redis_addr",
		"SETTLE_DATABASE_PATH":        "database.path",
		"SETTLE_SETTLEMENT_TOLERANCE": "settlement.tolerance",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad tolerance", func(c *Config) { c.Settlement.Tolerance = "a lot" }, "settlement.tolerance"},
		{"negative tolerance", func(c *Config) { c.Settlement.Tolerance = "-0.01" }, "must not be negative"},
		{"redis without address", func(c *Config) { c.Lock.Backend = "redis" }, "lock.redis_addr"},
		{"redis lock expiring before a recompute can finish", func(c *Config) {
			c.Lock.Backend = "redis"
			c.Lock.RedisAddr = "localhost:6379"
			c.Lock.Expiry = 10 * time.Second
			c.Settlement.RecomputeTimeout = 20 * time.Second
		}, "lock.expiry 10s is shorter than settlement.recompute_timeout 20s"},
		{"redis lock expiry matching the recompute timeout", func(c *Config) {
			c.Lock.Backend = "redis"
			c.Lock.RedisAddr = "localhost:6379"
			c.Lock.Expiry = 20 * time.Second
			c.Settlement.RecomputeTimeout = 20 * time.Second
		}, ""},
		{"local lock ignores expiry", func(c *Config) {
			c.Lock.Expiry = time.Second
		}, ""},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "zookeeper" }, "lock.backend"},
		{"relative metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
