package llm

import (
	"fmt"
	"time"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

// Providers understood by New.
const (
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Config holds LLM classification service parameters.
type Config struct {
	Provider     string `toml:"provider"`
	APIKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`
	Timeout      string `toml:"timeout"`
	MaxRetries   int    `toml:"max_retries"`
	Instructions string `toml:"instructions"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Provider   string
	APIKey     string
	Model      string
	MaxTokens  string
	BaseURL    string
	Timeout    string
	MaxRetries string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Enabled reports whether a provider is configured.
func (c *Config) Enabled() bool {
	return c.Provider != ProviderNone
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
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
	if overlay.Instructions != "" {
		c.Instructions = overlay.Instructions
	}
}

func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderAnthropic
	}
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.String(&c.Provider, env.Provider)
	envvar.String(&c.APIKey, env.APIKey)
	envvar.String(&c.Model, env.Model)
	envvar.Int(&c.MaxTokens, env.MaxTokens)
	envvar.String(&c.BaseURL, env.BaseURL)
	envvar.String(&c.Timeout, env.Timeout)
	envvar.Int(&c.MaxRetries, env.MaxRetries)
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderNone:
		return nil
	case ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key required for provider %s", c.Provider)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
