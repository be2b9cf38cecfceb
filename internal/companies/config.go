package companies

import (
	"fmt"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

// Config holds the identification confidence thresholds, on a 0-100 scale.
type Config struct {
	AutoIdentify float64 `toml:"auto_identify"`
	NeedsReview  float64 `toml:"needs_review"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	AutoIdentify string
	NeedsReview  string
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
	if overlay.AutoIdentify != 0 {
		c.AutoIdentify = overlay.AutoIdentify
	}
	if overlay.NeedsReview != 0 {
		c.NeedsReview = overlay.NeedsReview
	}
}

func (c *Config) loadDefaults() {
	if c.AutoIdentify == 0 {
		c.AutoIdentify = 80
	}
	if c.NeedsReview == 0 {
		c.NeedsReview = 50
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.Float(&c.AutoIdentify, env.AutoIdentify)
	envvar.Float(&c.NeedsReview, env.NeedsReview)
}

func (c *Config) validate() error {
	if c.AutoIdentify > 100 || c.NeedsReview <= 0 || c.NeedsReview > c.AutoIdentify {
		return fmt.Errorf("identification thresholds must satisfy 0 < needs_review <= auto_identify <= 100, got %.0f/%.0f",
			c.NeedsReview, c.AutoIdentify)
	}
	return nil
}
