package routes_test

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/JaimeStill/manifest/pkg/routes"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func testGroup() routes.Group {
	return routes.Group{
		Prefix: "/rules",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: ok},
			{Method: "GET", Pattern: "/{id}", Handler: ok},
		},
		Children: []routes.Group{{
			Prefix: "/learned",
			Routes: []routes.Route{{Method: "GET", Pattern: "", Handler: ok}},
		}},
	}
}

func TestPatterns(t *testing.T) {
	want := []string{"GET /rules", "GET /rules/{id}", "GET /rules/learned"}
	if got := testGroup().Patterns(); !slices.Equal(got, want) {
		t.Errorf("Patterns = %v, want %v", got, want)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	routes.Register(mux, testGroup())

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/rules", http.StatusOK},
		{"GET", "/rules/learned", http.StatusOK},
		{"GET", "/rules/abc", http.StatusOK},
		{"DELETE", "/rules/abc", http.StatusMethodNotAllowed},
		{"GET", "/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
