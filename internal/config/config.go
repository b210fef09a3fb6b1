// Package config provides configuration loading for the settlement server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the settlement server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	Settlement SettlementConfig `koanf:"settlement"`
	Lock       LockConfig       `koanf:"lock"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "text" (colored) or "json".
	Format string `koanf:"format"`
}

// SettlementConfig tunes the settlement engine.
type SettlementConfig struct {
	// Tolerance is the largest residual, in base currency, treated as settled.
	Tolerance string `koanf:"tolerance"`
	// FailFast aborts a recompute on the first split failure instead of
	// skipping the failing expense.
	FailFast bool `koanf:"fail_fast"`
	// RecomputeTimeout bounds a whole recompute, including lock wait.
	RecomputeTimeout time.Duration `koanf:"recompute_timeout"`
}

// LockConfig selects the per-trip lock backend.
type LockConfig struct {
	// Backend is "local" for a single process or "redis" for several.
	Backend    string        `koanf:"backend"`
	RedisAddr  string        `koanf:"redis_addr"`
	Expiry     time.Duration `koanf:"expiry"`
	Tries      int           `koanf:"tries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ToleranceDecimal returns the configured tolerance. Validate guarantees it parses.
func (c SettlementConfig) ToleranceDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.Tolerance)
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every zero value with its default.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tripsettle.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Settlement.Tolerance == "" {
		cfg.Settlement.Tolerance = "0.01"
	}
	if cfg.Settlement.RecomputeTimeout == 0 {
		cfg.Settlement.RecomputeTimeout = 30 * time.Second
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "local"
	}
	if cfg.Lock.Expiry == 0 {
		cfg.Lock.Expiry = 30 * time.Second
	}
	if cfg.Lock.Tries == 0 {
		cfg.Lock.Tries = 32
	}
	if cfg.Lock.RetryDelay == 0 {
		cfg.Lock.RetryDelay = 100 * time.Millisecond
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	tol, err := decimal.NewFromString(c.Settlement.Tolerance)
	if err != nil {
		errs = append(errs, fmt.Errorf("settlement.tolerance %q: %w", c.Settlement.Tolerance, err))
	} else if tol.IsNegative() {
		errs = append(errs, errors.New("settlement.tolerance must not be negative"))
	}
	if c.Settlement.RecomputeTimeout <= 0 {
		errs = append(errs, errors.New("settlement.recompute_timeout must be positive"))
	}

	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			errs = append(errs, errors.New("lock.redis_addr is required for the redis backend"))
		}
		if c.Lock.Expiry <= 0 {
			errs = append(errs, errors.New("lock.expiry must be positive"))
		} else if c.Lock.Expiry < c.Settlement.RecomputeTimeout {
			// A recompute may hold the lock for its whole timeout.
			errs = append(errs, fmt.Errorf("lock.expiry %s is shorter than settlement.recompute_timeout %s",
				c.Lock.Expiry, c.Settlement.RecomputeTimeout))
		}
		if c.Lock.Tries < 1 {
			errs = append(errs, errors.New("lock.tries must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.backend %q is not one of local, redis", c.Lock.Backend))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}

	return errors.Join(errs...)
}
