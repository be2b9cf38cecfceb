package learning

import (
	"fmt"

	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/pkg/envvar"
)

// Config controls learned-mapping confidence growth and rule promotion.
type Config struct {
	PromotionThreshold int     `toml:"promotion_threshold"`
	BaseConfidence     float64 `toml:"base_confidence"`
	ConfidenceStep     float64 `toml:"confidence_step"`
	ConfidenceCap      float64 `toml:"confidence_cap"`
	RulePriority       int     `toml:"rule_priority"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	PromotionThreshold string
	BaseConfidence     string
	ConfidenceStep     string
	ConfidenceCap      string
}

// Policy converts the config into the Rule Store's learn policy.
func (c *Config) Policy() rules.LearnPolicy {
	return rules.LearnPolicy{
		Threshold: c.PromotionThreshold,
		Base:      c.BaseConfidence,
		Step:      c.ConfidenceStep,
		Cap:       c.ConfidenceCap,
		Priority:  c.RulePriority,
	}
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
	if overlay.PromotionThreshold != 0 {
		c.PromotionThreshold = overlay.PromotionThreshold
	}
	if overlay.BaseConfidence != 0 {
		c.BaseConfidence = overlay.BaseConfidence
	}
	if overlay.ConfidenceStep != 0 {
		c.ConfidenceStep = overlay.ConfidenceStep
	}
	if overlay.ConfidenceCap != 0 {
		c.ConfidenceCap = overlay.ConfidenceCap
	}
	if overlay.RulePriority != 0 {
		c.RulePriority = overlay.RulePriority
	}
}

func (c *Config) loadDefaults() {
	if c.PromotionThreshold == 0 {
		c.PromotionThreshold = 3
	}
	if c.BaseConfidence == 0 {
		c.BaseConfidence = 0.80
	}
	if c.ConfidenceStep == 0 {
		c.ConfidenceStep = 0.05
	}
	if c.ConfidenceCap == 0 {
		c.ConfidenceCap = 0.95
	}
	if c.RulePriority == 0 {
		c.RulePriority = 10
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.Int(&c.PromotionThreshold, env.PromotionThreshold)
	envvar.Float(&c.BaseConfidence, env.BaseConfidence)
	envvar.Float(&c.ConfidenceStep, env.ConfidenceStep)
	envvar.Float(&c.ConfidenceCap, env.ConfidenceCap)
}

func (c *Config) validate() error {
	if c.PromotionThreshold < 1 {
		return fmt.Errorf("promotion_threshold must be at least 1")
	}
	if c.BaseConfidence <= 0 || c.BaseConfidence > 1 {
		return fmt.Errorf("base_confidence must be in (0, 1], got %.2f", c.BaseConfidence)
	}
	if c.ConfidenceStep < 0 {
		return fmt.Errorf("confidence_step must not be negative")
	}
	if c.ConfidenceCap < c.BaseConfidence || c.ConfidenceCap > 1 {
		return fmt.Errorf("confidence_cap must be in [base_confidence, 1], got %.2f", c.ConfidenceCap)
	}
	return nil
}
