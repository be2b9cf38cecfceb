package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/manifest/internal/batch"
	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/companies"
	"github.com/JaimeStill/manifest/internal/extraction"
	"github.com/JaimeStill/manifest/internal/learning"
	"github.com/JaimeStill/manifest/internal/llm"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/pkg/database"
	"github.com/JaimeStill/manifest/pkg/envvar"
	"github.com/JaimeStill/manifest/pkg/storage"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvManifestEnv             = "MANIFEST_ENV"
	EnvManifestShutdownTimeout = "MANIFEST_SHUTDOWN_TIMEOUT"
	EnvManifestVersion         = "MANIFEST_VERSION"
)

// DatabaseEnv names the MANIFEST_DB_* variables shared by the server and cmd/migrate.
var DatabaseEnv = &database.Env{
	Host:            "MANIFEST_DB_HOST",
	Port:            "MANIFEST_DB_PORT",
	Name:            "MANIFEST_DB_NAME",
	User:            "MANIFEST_DB_USER",
	Password:        "MANIFEST_DB_PASSWORD",
	SSLMode:         "MANIFEST_DB_SSL_MODE",
	MaxOpenConns:    "MANIFEST_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "MANIFEST_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "MANIFEST_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "MANIFEST_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "MANIFEST_STORAGE_CONTAINER_NAME",
	ConnectionString: "MANIFEST_STORAGE_CONNECTION_STRING",
	ServiceURL:       "MANIFEST_STORAGE_SERVICE_URL",
}

var classifierEnv = &classifier.Env{
	FuzzyThreshold:  "MANIFEST_CLASSIFIER_FUZZY_THRESHOLD",
	RuleStop:        "MANIFEST_CLASSIFIER_RULE_STOP",
	LearnedStop:     "MANIFEST_CLASSIFIER_LEARNED_STOP",
	RefreshInterval: "MANIFEST_CLASSIFIER_REFRESH_INTERVAL",
	Retries:         "MANIFEST_CLASSIFIER_RETRIES",
}

var scoringEnv = &scoring.Env{
	AutoApprove:    "MANIFEST_SCORING_AUTO_APPROVE",
	QuickReview:    "MANIFEST_SCORING_QUICK_REVIEW",
	FullReview:     "MANIFEST_SCORING_FULL_REVIEW",
	MismatchWarn:   "MANIFEST_SCORING_MISMATCH_WARN",
	MismatchSevere: "MANIFEST_SCORING_MISMATCH_SEVERE",
}

var learningEnv = &learning.Env{
	PromotionThreshold: "MANIFEST_LEARNING_PROMOTION_THRESHOLD",
	BaseConfidence:     "MANIFEST_LEARNING_BASE_CONFIDENCE",
	ConfidenceStep:     "MANIFEST_LEARNING_CONFIDENCE_STEP",
	ConfidenceCap:      "MANIFEST_LEARNING_CONFIDENCE_CAP",
}

var batchEnv = &batch.Env{
	Workers:   "MANIFEST_BATCH_WORKERS",
	RateLimit: "MANIFEST_BATCH_RATE_LIMIT",
	Burst:     "MANIFEST_BATCH_BURST",
	MaxSize:   "MANIFEST_BATCH_MAX_SIZE",
	Retention: "MANIFEST_BATCH_RETENTION",
}

var extractionEnv = &extraction.Env{
	BaseURL:     "MANIFEST_EXTRACTION_BASE_URL",
	Timeout:     "MANIFEST_EXTRACTION_TIMEOUT",
	MaxAttempts: "MANIFEST_EXTRACTION_MAX_ATTEMPTS",
	BaseBackoff: "MANIFEST_EXTRACTION_BASE_BACKOFF",
	MaxFileSize: "MANIFEST_EXTRACTION_MAX_FILE_SIZE",
}

var llmEnv = &llm.Env{
	Provider:   "MANIFEST_LLM_PROVIDER",
	APIKey:     "MANIFEST_LLM_API_KEY",
	Model:      "MANIFEST_LLM_MODEL",
	MaxTokens:  "MANIFEST_LLM_MAX_TOKENS",
	BaseURL:    "MANIFEST_LLM_BASE_URL",
	Timeout:    "MANIFEST_LLM_TIMEOUT",
	MaxRetries: "MANIFEST_LLM_MAX_RETRIES",
}

var identificationEnv = &companies.Env{
	AutoIdentify: "MANIFEST_IDENTIFICATION_AUTO_IDENTIFY",
	NeedsReview:  "MANIFEST_IDENTIFICATION_NEEDS_REVIEW",
}

// Config is the root configuration for the Manifest service.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	API             APIConfig         `toml:"api"`
	Classifier      classifier.Config `toml:"classifier"`
	Scoring         scoring.Config    `toml:"scoring"`
	Learning        learning.Config   `toml:"learning"`
	Batch           batch.Config      `toml:"batch"`
	Extraction      extraction.Config `toml:"extraction"`
	LLM             llm.Config        `toml:"llm"`
	Identification  companies.Config  `toml:"identification"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the MANIFEST_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvManifestEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return duration(c.ShutdownTimeout)
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Classifier.Merge(&overlay.Classifier)
	c.Scoring.Merge(&overlay.Scoring)
	c.Learning.Merge(&overlay.Learning)
	c.Batch.Merge(&overlay.Batch)
	c.Extraction.Merge(&overlay.Extraction)
	c.LLM.Merge(&overlay.LLM)
	c.Identification.Merge(&overlay.Identification)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(DatabaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", c.API.Finalize},
		{"classifier", func() error { return c.Classifier.Finalize(classifierEnv) }},
		{"scoring", func() error { return c.Scoring.Finalize(scoringEnv) }},
		{"learning", func() error { return c.Learning.Finalize(learningEnv) }},
		{"batch", func() error { return c.Batch.Finalize(batchEnv) }},
		{"extraction", func() error { return c.Extraction.Finalize(extractionEnv) }},
		{"llm", func() error { return c.LLM.Finalize(llmEnv) }},
		{"identification", func() error { return c.Identification.Finalize(identificationEnv) }},
	}

	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	envvar.String(&c.ShutdownTimeout, EnvManifestShutdownTimeout)
	envvar.String(&c.Version, EnvManifestVersion)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvManifestEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
