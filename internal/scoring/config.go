package scoring

import (
	"fmt"
	"math"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

// Weights combine the three component scores into the overall score.
type Weights struct {
	Extraction     float64 `toml:"extraction"`
	Classification float64 `toml:"classification"`
	Validation     float64 `toml:"validation"`
}

// Config holds scoring weights, routing thresholds, and total agreement bands.
type Config struct {
	Weights        Weights    `toml:"weights"`
	Thresholds     Thresholds `toml:"thresholds"`
	MismatchWarn   float64    `toml:"mismatch_warn"`
	MismatchSevere float64    `toml:"mismatch_severe"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	AutoApprove    string
	QuickReview    string
	FullReview     string
	MismatchWarn   string
	MismatchSevere string
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
	if overlay.Weights != (Weights{}) {
		c.Weights = overlay.Weights
	}
	c.Thresholds.Merge(&overlay.Thresholds)
	if overlay.MismatchWarn != 0 {
		c.MismatchWarn = overlay.MismatchWarn
	}
	if overlay.MismatchSevere != 0 {
		c.MismatchSevere = overlay.MismatchSevere
	}
}

func (c *Config) loadDefaults() {
	if c.Weights == (Weights{}) {
		c.Weights = Weights{Extraction: 0.40, Classification: 0.40, Validation: 0.20}
	}
	c.Thresholds.loadDefaults()
	if c.MismatchWarn == 0 {
		c.MismatchWarn = 0.05
	}
	if c.MismatchSevere == 0 {
		c.MismatchSevere = 0.10
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.Float(&c.Thresholds.AutoApprove, env.AutoApprove)
	envvar.Float(&c.Thresholds.QuickReview, env.QuickReview)
	envvar.Float(&c.Thresholds.FullReview, env.FullReview)
	envvar.Float(&c.MismatchWarn, env.MismatchWarn)
	envvar.Float(&c.MismatchSevere, env.MismatchSevere)
}

func (c *Config) validate() error {
	w := c.Weights
	if w.Extraction < 0 || w.Classification < 0 || w.Validation < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if sum := w.Extraction + w.Classification + w.Validation; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights must sum to 1, got %.3f", sum)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.MismatchWarn <= 0 || c.MismatchSevere <= c.MismatchWarn {
		return fmt.Errorf("mismatch bands must satisfy 0 < warn < severe (warn: %.2f, severe: %.2f)", c.MismatchWarn, c.MismatchSevere)
	}
	return nil
}
