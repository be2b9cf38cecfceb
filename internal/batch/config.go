package batch

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

// Config controls batch concurrency and the shared external-call budget.
type Config struct {
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
	MaxSize   int     `toml:"max_size"`
	Retention string  `toml:"retention"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Workers   string
	RateLimit string
	Burst     string
	MaxSize   string
	Retention string
}

// RetentionDuration returns Retention as a time.Duration.
func (c *Config) RetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.Retention)
	return d
}

// Limiter creates the token bucket shared by every outbound OCR and LLM call.
func (c *Config) Limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.RateLimit), c.Burst)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
	if overlay.MaxSize != 0 {
		c.MaxSize = overlay.MaxSize
	}
	if overlay.Retention != "" {
		c.Retention = overlay.Retention
	}
}

func (c *Config) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 5
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
	if c.MaxSize == 0 {
		c.MaxSize = 500
	}
	if c.Retention == "" {
		c.Retention = "24h"
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.Int(&c.Workers, env.Workers)
	envvar.Float(&c.RateLimit, env.RateLimit)
	envvar.Int(&c.Burst, env.Burst)
	envvar.Int(&c.MaxSize, env.MaxSize)
	envvar.String(&c.Retention, env.Retention)
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1")
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("max_size must be at least 1")
	}
	if _, err := time.ParseDuration(c.Retention); err != nil {
		return fmt.Errorf("invalid retention: %w", err)
	}
	return nil
}
