package extraction

import (
	"fmt"
	"net/url"
	"time"

	"github.com/JaimeStill/manifest/pkg/envvar"
	"github.com/JaimeStill/manifest/pkg/formatting"
)

// Config holds OCR extraction service parameters.
type Config struct {
	BaseURL     string `toml:"base_url"`
	Timeout     string `toml:"timeout"`
	MaxAttempts int    `toml:"max_attempts"`
	BaseBackoff string `toml:"base_backoff"`
	MaxFileSize string `toml:"max_file_size"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BaseURL     string
	Timeout     string
	MaxAttempts string
	BaseBackoff string
	MaxFileSize string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// BaseBackoffDuration returns BaseBackoff as a time.Duration.
func (c *Config) BaseBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.BaseBackoff)
	return d
}

// MaxFileSizeBytes returns MaxFileSize in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxFileSize)
	return n
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
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BaseBackoff != "" {
		c.BaseBackoff = overlay.BaseBackoff
	}
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
}

func (c *Config) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8000"
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff == "" {
		c.BaseBackoff = "1s"
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "50MB"
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.String(&c.BaseURL, env.BaseURL)
	envvar.String(&c.Timeout, env.Timeout)
	envvar.Int(&c.MaxAttempts, env.MaxAttempts)
	envvar.String(&c.BaseBackoff, env.BaseBackoff)
	envvar.String(&c.MaxFileSize, env.MaxFileSize)
}

func (c *Config) validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.BaseBackoff); err != nil {
		return fmt.Errorf("invalid base_backoff: %w", err)
	}
	if _, err := formatting.ParseBytes(c.MaxFileSize); err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	return nil
}
