package companies_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/manifest/internal/companies"
	"github.com/JaimeStill/manifest/internal/scoring"
	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/routes"
)

func newRegistry(t *testing.T) companies.System {
	t.Helper()

	var cfg companies.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sys := companies.NewMemory(cfg, logger, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})

	_, err := sys.Create(context.Background(), companies.CreateCommand{
		Code:     "maeu",
		Name:     "Maersk",
		Names:    []string{"Maersk", "Maersk Line"},
		Keywords: []string{"Copenhagen", "Esplanaden", "Denmark"},
		Formats:  []string{`MAEU\d{7}`},
		LogoText: []string{"MAERSK"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sys
}

func TestIdentify(t *testing.T) {
	sys := newRegistry(t)

	tests := []struct {
		name       string
		text       string
		confidence float64
		outcome    companies.Outcome
		flag       scoring.Flag
		method     string
	}{
		{
			name:       "every pattern caps at 100",
			text:       "MAERSK LINE\nInvoice for MAEU1234567\nCopenhagen   Denmark",
			confidence: 100,
			outcome:    companies.OutcomeIdentified,
			method:     "name",
		},
		{
			name:       "name format and logo",
			text:       "Maersk booking maeu7654321",
			confidence: 70,
			outcome:    companies.OutcomeNeedsReview,
			flag:       scoring.FlagCompanyNeedsReview,
			method:     "name",
		},
		{
			name:       "keywords cap at 30",
			text:       "copenhagen esplanaden denmark",
			confidence: 0,
			outcome:    companies.OutcomeUnidentified,
			flag:       scoring.FlagCompanyUnidentified,
			method:     "none",
		},
		{
			name:       "second name adds bonus",
			text:       "Maersk Line, Copenhagen, Denmark",
			confidence: 85,
			outcome:    companies.OutcomeIdentified,
			method:     "name",
		},
		{
			name:    "empty text",
			text:    "   ",
			outcome: companies.OutcomeUnidentified,
			flag:    scoring.FlagCompanyUnidentified,
			method:  "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := sys.Identify(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Identify: %v", err)
			}
			if id.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v (%v)", id.Confidence, tt.confidence, id.Matched)
			}
			if id.Outcome != tt.outcome {
				t.Errorf("outcome = %s, want %s", id.Outcome, tt.outcome)
			}
			if id.Flag() != tt.flag {
				t.Errorf("flag = %q, want %q", id.Flag(), tt.flag)
			}
			if id.Method != tt.method {
				t.Errorf("method = %s, want %s", id.Method, tt.method)
			}
			if (id.CompanyID != nil) != (tt.outcome == companies.OutcomeIdentified) {
				t.Errorf("company id = %v for outcome %s", id.CompanyID, id.Outcome)
			}
		})
	}
}

func TestMatcherPriority(t *testing.T) {
	cfg := companies.Config{AutoIdentify: 80, NeedsReview: 50}
	m := companies.NewMatcher([]companies.Company{
		{Code: "LOW", Names: []string{"Global Freight"}, Keywords: []string{"rotterdam", "antwerp"}, Active: true},
		{Code: "HIGH", Names: []string{"Global Freight"}, Keywords: []string{"rotterdam", "antwerp"}, Priority: 5, Active: true},
		{Code: "OFF", Names: []string{"Global Freight"}, Keywords: []string{"rotterdam", "antwerp"}, Priority: 9},
	}, cfg)

	id := m.Identify("GLOBAL FREIGHT rotterdam antwerp")
	if id.Code != "HIGH" || id.Confidence != 70 {
		t.Errorf("got %s at %v, want HIGH at 70", id.Code, id.Confidence)
	}
}

func TestCreateValidation(t *testing.T) {
	sys := newRegistry(t)
	ctx := context.Background()

	if _, err := sys.Create(ctx, companies.CreateCommand{Code: "MAEU", Name: "Again"}); !errors.Is(err, companies.ErrDuplicate) {
		t.Errorf("duplicate code err = %v", err)
	}
	if _, err := sys.Create(ctx, companies.CreateCommand{Code: "X", Name: "Bad", Formats: []string{"("}}); !errors.Is(err, companies.ErrInvalidCompany) {
		t.Errorf("bad format err = %v", err)
	}
	if _, err := sys.Create(ctx, companies.CreateCommand{Name: "No code"}); !errors.Is(err, companies.ErrInvalidCompany) {
		t.Errorf("missing code err = %v", err)
	}

	c, err := sys.Create(ctx, companies.CreateCommand{Code: "oocl", Name: "OOCL"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Code != "OOCL" || len(c.Names) != 1 || c.Names[0] != "OOCL" {
		t.Errorf("company = %+v", c)
	}

	found, err := sys.FindByCode(ctx, "OOCL")
	if err != nil || found.ID != c.ID {
		t.Errorf("FindByCode = %v, %v", found, err)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := companies.Config{AutoIdentify: 40, NeedsReview: 60}
	if err := cfg.Finalize(nil); err == nil {
		t.Error("expected needs_review above auto_identify to fail")
	}
}

func TestHandler(t *testing.T) {
	sys := newRegistry(t)
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"list", "GET", "/companies", "", http.StatusOK},
		{"create", "POST", "/companies", `{"code":"CMDU","name":"CMA CGM"}`, http.StatusCreated},
		{"duplicate", "POST", "/companies", `{"code":"MAEU","name":"Maersk"}`, http.StatusConflict},
		{"identify", "POST", "/companies/identify", `{"text":"Maersk Line MAEU1234567 copenhagen"}`, http.StatusOK},
		{"bad id", "GET", "/companies/nope", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if tt.name == "identify" {
				var id companies.Identification
				if err := json.NewDecoder(rec.Body).Decode(&id); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if id.Outcome != companies.OutcomeIdentified || id.Code != "MAEU" {
					t.Errorf("identification = %+v", id)
				}
			}
		})
	}
}
