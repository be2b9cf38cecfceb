package telemetry_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JaimeStill/manifest/internal/telemetry"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *telemetry.Metrics

	m.Classification("EXACT")
	m.Document("completed")
	m.Lane("AUTO_APPROVE")
	m.ExternalCall("ocr", nil, time.Second)
	m.Promotion()
	m.CacheRebuild()
	m.BatchStarted()
	m.BatchFinished()
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)

	m.Classification("EXACT")
	m.Classification("EXACT")
	m.Classification("LLM")
	m.ExternalCall("llm", errors.New("boom"), 2*time.Second)
	m.Promotion()

	if n, err := testutil.GatherAndCount(reg, "manifest_classifications_total"); err != nil || n != 2 {
		t.Errorf("classification series = %d, %v; want 2", n, err)
	}

	expected := `
# HELP manifest_promotions_total Learned mappings promoted into exact rules.
# TYPE manifest_promotions_total counter
manifest_promotions_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "manifest_promotions_total"); err != nil {
		t.Error(err)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := telemetry.New(nil)
	m.Lane("FLAGGED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `manifest_routing_lanes_total{lane="FLAGGED"} 1`) {
		t.Errorf("lane metric missing from exposition")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Errorf("runtime collector missing from exposition")
	}
}
