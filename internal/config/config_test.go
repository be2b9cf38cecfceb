package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/manifest/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "manifest"
user = "manifest"
password = "manifest"
ssl_mode = "disable"
max_open_conns = 25
max_idle_conns = 5
conn_max_lifetime = "15m"
conn_timeout = "5s"

[storage]
container_name = "invoices"
connection_string = "UseDevelopmentStorage=true"

[api]
base_path = "/api"

[api.pagination]
default_page_size = 25
max_page_size = 50

[classifier]
fuzzy_threshold = 0.75
retries = 0

[scoring.thresholds]
auto_approve = 97

[learning]
promotion_threshold = 4

[batch]
workers = 8

[llm]
provider = "none"

[identification]
auto_identify = 85
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[batch]
rate_limit = 20
`

const minimalConfig = `
[database]
name = "manifest"
user = "manifest"

[storage]
connection_string = "conn"

[llm]
provider = "none"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func load(t *testing.T, content string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, content)
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := load(t, baseConfig)

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("db host: got %s, want localhost", cfg.Database.Host)
	}
	if cfg.Storage.ContainerName != "invoices" {
		t.Errorf("storage container: got %s, want invoices", cfg.Storage.ContainerName)
	}
	if cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination max_page_size: got %d, want 50", cfg.API.Pagination.MaxPageSize)
	}
	if cfg.Classifier.RetryCount() != 0 {
		t.Errorf("classifier retries: got %d, want 0", cfg.Classifier.RetryCount())
	}
	if cfg.Classifier.FuzzyThreshold != 0.75 {
		t.Errorf("fuzzy threshold: got %v, want 0.75", cfg.Classifier.FuzzyThreshold)
	}
	if cfg.Scoring.Thresholds.AutoApprove != 97 {
		t.Errorf("auto approve: got %v, want 97", cfg.Scoring.Thresholds.AutoApprove)
	}
	if cfg.Learning.PromotionThreshold != 4 {
		t.Errorf("promotion threshold: got %d, want 4", cfg.Learning.PromotionThreshold)
	}
	if cfg.Batch.Workers != 8 {
		t.Errorf("batch workers: got %d, want 8", cfg.Batch.Workers)
	}
	if cfg.Identification.AutoIdentify != 85 {
		t.Errorf("auto identify: got %v, want 85", cfg.Identification.AutoIdentify)
	}
	if cfg.LLM.Enabled() {
		t.Error("llm should be disabled")
	}
}

func TestLoadDomainDefaults(t *testing.T) {
	cfg := load(t, minimalConfig)

	if cfg.Classifier.FuzzyThreshold != 0.70 {
		t.Errorf("fuzzy threshold: got %v, want 0.70", cfg.Classifier.FuzzyThreshold)
	}
	if cfg.Scoring.Thresholds.AutoApprove != 95 || cfg.Scoring.Thresholds.QuickReview != 80 || cfg.Scoring.Thresholds.FullReview != 60 {
		t.Errorf("thresholds: got %+v, want 95/80/60", cfg.Scoring.Thresholds)
	}
	if cfg.Learning.PromotionThreshold != 3 {
		t.Errorf("promotion threshold: got %d, want 3", cfg.Learning.PromotionThreshold)
	}
	if cfg.Batch.Workers != 5 || cfg.Batch.RateLimit != 10 {
		t.Errorf("batch: got workers %d rate %v, want 5 and 10", cfg.Batch.Workers, cfg.Batch.RateLimit)
	}
	if cfg.Extraction.MaxAttempts != 3 {
		t.Errorf("extraction attempts: got %d, want 3", cfg.Extraction.MaxAttempts)
	}
	if cfg.Identification.AutoIdentify != 80 || cfg.Identification.NeedsReview != 50 {
		t.Errorf("identification: got %+v, want 80/50", cfg.Identification)
	}
	if cfg.API.Pagination.DefaultPageSize != 20 {
		t.Errorf("pagination default_page_size: got %d, want 20", cfg.API.Pagination.DefaultPageSize)
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	chdir(t, dir)

	t.Setenv("MANIFEST_ENV", "staging")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Batch.RateLimit != 20 || cfg.Batch.Workers != 8 {
		t.Errorf("batch: got rate %v workers %d, want 20 and 8", cfg.Batch.RateLimit, cfg.Batch.Workers)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	t.Setenv("MANIFEST_VERSION", "2.0.0")
	t.Setenv("MANIFEST_SERVER_PORT", "3000")
	t.Setenv("MANIFEST_BATCH_WORKERS", "2")
	t.Setenv("MANIFEST_LEARNING_PROMOTION_THRESHOLD", "5")
	t.Setenv("MANIFEST_PAGINATION_MAX_PAGE_SIZE", "200")

	cfg := load(t, baseConfig)

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Batch.Workers != 2 {
		t.Errorf("batch workers: got %d, want 2", cfg.Batch.Workers)
	}
	if cfg.Learning.PromotionThreshold != 5 {
		t.Errorf("promotion threshold: got %d, want 5", cfg.Learning.PromotionThreshold)
	}
	if cfg.API.Pagination.MaxPageSize != 200 {
		t.Errorf("pagination max_page_size: got %d, want 200", cfg.API.Pagination.MaxPageSize)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("MANIFEST_DB_NAME", "testdb")
	t.Setenv("MANIFEST_DB_USER", "testuser")
	t.Setenv("MANIFEST_STORAGE_CONNECTION_STRING", "conn")
	t.Setenv("MANIFEST_LLM_API_KEY", "key")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name from env: got %s, want testdb", cfg.Database.Name)
	}
	if !cfg.LLM.Enabled() {
		t.Error("llm should default to enabled")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", `[server`)
	chdir(t, dir)

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestEnv(t *testing.T) {
	cfg := load(t, baseConfig)
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}

	t.Setenv("MANIFEST_ENV", "production")
	if cfg.Env() != "production" {
		t.Errorf("env: got %s, want production", cfg.Env())
	}
}

func TestDurations(t *testing.T) {
	cfg := load(t, baseConfig)

	if d := cfg.ShutdownTimeoutDuration(); d != 30*time.Second {
		t.Errorf("shutdown timeout: got %v, want 30s", d)
	}
	if addr := cfg.Server.Addr(); addr != "0.0.0.0:8080" {
		t.Errorf("addr: got %s, want 0.0.0.0:8080", addr)
	}
	if d := cfg.Batch.RetentionDuration(); d != 24*time.Hour {
		t.Errorf("batch retention: got %v, want 24h", d)
	}
}

func TestMaxUploadSizeBytes(t *testing.T) {
	tests := []struct {
		name string
		size string
		want int64
	}{
		{"valid 50MB", "50MB", 50 * 1024 * 1024},
		{"valid 1GB", "1GB", 1024 * 1024 * 1024},
		{"invalid falls back to 50MB", "bad", 50 * 1024 * 1024},
		{"empty falls back to 50MB", "", 50 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.APIConfig{MaxUploadSize: tt.size}
			if got := cfg.MaxUploadSizeBytes(); got != tt.want {
				t.Errorf("MaxUploadSizeBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"invalid port", "[server]\nport = 99999\n", "invalid port"},
		{"invalid read_timeout", "[server]\nread_timeout = \"bad\"\n", "invalid read_timeout"},
		{"llm without key", "", "api_key required"},
		{"inverted thresholds", "[identification]\nauto_identify = 40\n", "identification"},
		{"unknown provider", "", "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := `
[database]
name = "manifest"
user = "manifest"

[storage]
connection_string = "conn"
`
			switch tt.name {
			case "llm without key":
				content += "\n[llm]\nprovider = \"anthropic\"\n"
			case "unknown provider":
				content += "\n[llm]\nprovider = \"ollama\"\n"
			default:
				content += "\n[llm]\nprovider = \"none\"\n"
			}
			content += "\n" + tt.extra

			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", content)
			chdir(t, dir)

			_, err := config.Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestServerTimeouts(t *testing.T) {
	t.Setenv("MANIFEST_SERVER_IDLE_TIMEOUT", "45s")
	cfg := load(t, baseConfig)

	if d := cfg.Server.ReadHeaderTimeoutDuration(); d != 10*time.Second {
		t.Errorf("read header timeout: got %v, want 10s", d)
	}
	if d := cfg.Server.IdleTimeoutDuration(); d != 45*time.Second {
		t.Errorf("idle timeout: got %v, want 45s (from env)", d)
	}
	if d := cfg.Server.WriteTimeoutDuration(); d != 15*time.Minute {
		t.Errorf("write timeout: got %v, want 15m", d)
	}

	overlay := &config.ServerConfig{ReadHeaderTimeout: "3s"}
	cfg.Server.Merge(overlay)
	if d := cfg.Server.ReadHeaderTimeoutDuration(); d != 3*time.Second {
		t.Errorf("merged read header timeout: got %v, want 3s", d)
	}
	if cfg.Server.ReadTimeout != "1m" {
		t.Errorf("merge cleared read_timeout: got %q", cfg.Server.ReadTimeout)
	}
}
