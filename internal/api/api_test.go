package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/api"
	"github.com/JaimeStill/manifest/internal/config"
	"github.com/JaimeStill/manifest/internal/infrastructure"
	"github.com/JaimeStill/manifest/internal/llm"
	"github.com/JaimeStill/manifest/pkg/database"
	"github.com/JaimeStill/manifest/pkg/middleware"
	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     "1m",
			WriteTimeout:    "15m",
			ShutdownTimeout: "30s",
		},
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "manifest",
			User:            "manifest",
			Password:        "manifest",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "1s",
		},
		Storage: storage.Config{
			ContainerName:    "invoices",
			ConnectionString: azuriteConnString,
		},
		API: config.APIConfig{
			BasePath:      "/api",
			MaxUploadSize: "10MB",
			CORS: middleware.CORSConfig{
				Enabled: true,
				Origins: []string{"http://localhost:3000"},
			},
			Pagination: pagination.Config{
				DefaultPageSize: 20,
				MaxPageSize:     100,
			},
		},
		LLM:             llm.Config{Provider: llm.ProviderNone},
		ShutdownTimeout: "30s",
		Version:         "0.1.0",
	}

	finalize := []struct {
		name string
		fn   func() error
	}{
		{"cors", func() error { return cfg.API.CORS.Finalize(nil) }},
		{"classifier", func() error { return cfg.Classifier.Finalize(nil) }},
		{"scoring", func() error { return cfg.Scoring.Finalize(nil) }},
		{"learning", func() error { return cfg.Learning.Finalize(nil) }},
		{"batch", func() error { return cfg.Batch.Finalize(nil) }},
		{"extraction", func() error { return cfg.Extraction.Finalize(nil) }},
		{"llm", func() error { return cfg.LLM.Finalize(nil) }},
		{"identification", func() error { return cfg.Identification.Finalize(nil) }},
	}
	for _, f := range finalize {
		if err := f.fn(); err != nil {
			t.Fatalf("%s config: %v", f.name, err)
		}
	}
	return cfg
}

func setupInfra(t *testing.T, cfg *config.Config) *infrastructure.Infrastructure {
	t.Helper()
	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("infrastructure.New() error = %v", err)
	}
	t.Cleanup(func() {
		infra.Lifecycle.Shutdown(5 * time.Second)
	})
	return infra
}

func TestNewModule(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)

	m, err := api.NewModule(cfg, infra)
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}

	if m.Prefix() != "/api" {
		t.Errorf("prefix: got %s, want /api", m.Prefix())
	}
}

func TestNewRuntime(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)

	runtime := api.NewRuntime(cfg, infra)

	if runtime.Pagination.DefaultPageSize != 20 {
		t.Errorf("pagination default page size: got %d, want 20", runtime.Pagination.DefaultPageSize)
	}
	if runtime.Logger == nil {
		t.Error("runtime logger is nil")
	}
	if runtime.Metrics != infra.Metrics {
		t.Error("runtime metrics not shared with infrastructure")
	}
	if runtime.Limiter != infra.Limiter {
		t.Error("runtime limiter not shared with infrastructure")
	}
	if runtime.Lifecycle != infra.Lifecycle {
		t.Error("runtime lifecycle not shared with infrastructure")
	}
}

func TestNewDomainWithoutLLM(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)

	domain, err := api.NewDomain(api.NewRuntime(cfg, infra))
	if err != nil {
		t.Fatalf("NewDomain() error = %v", err)
	}
	if domain.Classifier == nil || domain.Batch == nil || domain.Learning == nil {
		t.Fatal("NewDomain() left a system unset")
	}
}

func TestModuleRoutes(t *testing.T) {
	cfg := validConfig(t)
	infra := setupInfra(t, cfg)

	m, err := api.NewModule(cfg, infra)
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}

	t.Run("unknown batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/batches/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		m.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status: got %d, want 404", rec.Code)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/batches", nil)
		rec := httptest.NewRecorder()
		m.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status: got %d, want 400", rec.Code)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/rules", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		m.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status: got %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("allow origin: got %q", got)
		}
	})

	t.Run("request metrics", func(t *testing.T) {
		families, err := infra.Metrics.Registry().Gather()
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		for _, f := range families {
			if f.GetName() == "manifest_http_requests_total" {
				return
			}
		}
		t.Error("manifest_http_requests_total not recorded")
	})
}
