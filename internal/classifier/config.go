package classifier

import (
	"fmt"
	"time"

	"github.com/JaimeStill/manifest/pkg/envvar"
)

// Config holds tier thresholds and rule cache settings.
type Config struct {
	FuzzyThreshold     float64 `toml:"fuzzy_threshold"`
	RegexConfidence    float64 `toml:"regex_confidence"`
	OverrideConfidence float64 `toml:"override_confidence"`
	RuleStop           float64 `toml:"rule_stop"`
	LearnedStop        float64 `toml:"learned_stop"`
	AgreementBoost     float64 `toml:"agreement_boost"`
	AgreementCap       float64 `toml:"agreement_cap"`
	RefreshInterval    string  `toml:"refresh_interval"`
	// Retries is nil when unset; 0 disables retries.
	Retries *int `toml:"retries"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	FuzzyThreshold  string
	RuleStop        string
	LearnedStop     string
	RefreshInterval string
	Retries         string
}

// RefreshIntervalDuration returns RefreshInterval as a time.Duration.
func (c *Config) RefreshIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshInterval)
	return d
}

// RetryCount returns the configured retry count, 1 when unset.
func (c *Config) RetryCount() int {
	if c.Retries == nil {
		return 1
	}
	return *c.Retries
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
	if overlay.FuzzyThreshold != 0 {
		c.FuzzyThreshold = overlay.FuzzyThreshold
	}
	if overlay.RegexConfidence != 0 {
		c.RegexConfidence = overlay.RegexConfidence
	}
	if overlay.OverrideConfidence != 0 {
		c.OverrideConfidence = overlay.OverrideConfidence
	}
	if overlay.RuleStop != 0 {
		c.RuleStop = overlay.RuleStop
	}
	if overlay.LearnedStop != 0 {
		c.LearnedStop = overlay.LearnedStop
	}
	if overlay.AgreementBoost != 0 {
		c.AgreementBoost = overlay.AgreementBoost
	}
	if overlay.AgreementCap != 0 {
		c.AgreementCap = overlay.AgreementCap
	}
	if overlay.RefreshInterval != "" {
		c.RefreshInterval = overlay.RefreshInterval
	}
	if overlay.Retries != nil {
		c.Retries = overlay.Retries
	}
}

func (c *Config) loadDefaults() {
	if c.FuzzyThreshold == 0 {
		c.FuzzyThreshold = 0.70
	}
	if c.RegexConfidence == 0 {
		c.RegexConfidence = 0.90
	}
	if c.OverrideConfidence == 0 {
		c.OverrideConfidence = 0.95
	}
	if c.RuleStop == 0 {
		c.RuleStop = 0.85
	}
	if c.LearnedStop == 0 {
		c.LearnedStop = 0.90
	}
	if c.AgreementBoost == 0 {
		c.AgreementBoost = 0.10
	}
	if c.AgreementCap == 0 {
		c.AgreementCap = 0.95
	}
	if c.RefreshInterval == "" {
		c.RefreshInterval = "1m"
	}
	if c.Retries == nil {
		c.Retries = new(int)
		*c.Retries = 1
	}
}

func (c *Config) loadEnv(env *Env) {
	envvar.Float(&c.FuzzyThreshold, env.FuzzyThreshold)
	envvar.Float(&c.RuleStop, env.RuleStop)
	envvar.Float(&c.LearnedStop, env.LearnedStop)
	envvar.String(&c.RefreshInterval, env.RefreshInterval)
	envvar.Int(c.Retries, env.Retries)
}

func (c *Config) validate() error {
	for name, v := range map[string]float64{
		"fuzzy_threshold":     c.FuzzyThreshold,
		"regex_confidence":    c.RegexConfidence,
		"override_confidence": c.OverrideConfidence,
		"rule_stop":           c.RuleStop,
		"learned_stop":        c.LearnedStop,
		"agreement_boost":     c.AgreementBoost,
		"agreement_cap":       c.AgreementCap,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}
	if c.Retries != nil && *c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return fmt.Errorf("invalid refresh_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	return nil
}
