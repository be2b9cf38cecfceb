package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/handlers"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	handlers.RespondJSON(rec, http.StatusCreated, map[string]int{"id": 42})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s", ct)
	}

	var parsed map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed["id"] != 42 {
		t.Errorf("id = %d, want 42", parsed["id"])
	}
}

func TestRespondError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	handlers.RespondError(rec, logger, http.StatusBadRequest, errors.New("invalid input"))

	var parsed map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if rec.Code != http.StatusBadRequest || parsed["error"] != "invalid input" {
		t.Errorf("got %d %v", rec.Code, parsed)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Category string `json:"category"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"category":"THC"}`, false},
		{"unknown field", `{"category":"THC","extra":1}`, true},
		{"malformed", `{"category":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			got, err := handlers.DecodeJSON[body](httptest.NewRecorder(), req)
			if tt.wantErr {
				if !errors.Is(err, handlers.ErrInvalidBody) {
					t.Errorf("err = %v, want ErrInvalidBody", err)
				}
				return
			}
			if err != nil || got.Category != "THC" {
				t.Errorf("got %+v, %v", got, err)
			}
		})
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	mux := http.NewServeMux()

	var parsed uuid.UUID
	var parseErr error
	mux.HandleFunc("GET /rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		parsed, parseErr = handlers.PathUUID(r, "id")
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rules/"+id.String(), nil))
	if parseErr != nil || parsed != id {
		t.Errorf("PathUUID = %v, %v", parsed, parseErr)
	}

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rules/nope", nil))
	if parseErr == nil {
		t.Error("expected error for invalid uuid")
	}
}
