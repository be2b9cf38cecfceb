// Package telemetry holds the Prometheus metrics for the classification service.
// Every recording method is safe on a nil *Metrics so components can run without
// a registry in tests and offline tools.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "manifest"

// Metrics holds the service's collectors, all registered on one registry.
//
// Metrics:
//   - manifest_classifications_total{method}
//   - manifest_documents_total{status}
//   - manifest_routing_lanes_total{lane}
//   - manifest_external_calls_total{service,outcome}
//   - manifest_external_call_duration_seconds{service}
//   - manifest_promotions_total
//   - manifest_rule_cache_rebuilds_total
//   - manifest_active_batches
//   - manifest_http_requests_total{method,pattern,status}
//   - manifest_http_request_duration_seconds{method,pattern}
type Metrics struct {
	registry *prometheus.Registry

	classifications  *prometheus.CounterVec
	documents        *prometheus.CounterVec
	lanes            *prometheus.CounterVec
	externalCalls    *prometheus.CounterVec
	externalDuration *prometheus.HistogramVec
	promotions       prometheus.Counter
	cacheRebuilds    prometheus.Counter
	activeBatches    prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates Metrics registered on reg. A nil reg creates a fresh registry with
// the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Line items classified, by the method that produced the answer.",
		}, []string{"method"}),
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents that reached a terminal status.",
		}, []string{"status"}),
		lanes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_lanes_total",
			Help:      "Documents routed, by lane.",
		}, []string{"lane"}),
		externalCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to external OCR and LLM services.",
		}, []string{"service", "outcome"}),
		externalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Latency of external OCR and LLM calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service"}),
		promotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Learned mappings promoted into exact rules.",
		}),
		cacheRebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_cache_rebuilds_total",
			Help:      "Rule snapshot rebuilds.",
		}),
		activeBatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_batches",
			Help:      "Batches currently executing.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "pattern", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "pattern"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Classification(method string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(method).Inc()
}

func (m *Metrics) Document(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

func (m *Metrics) Lane(lane string) {
	if m == nil {
		return
	}
	m.lanes.WithLabelValues(lane).Inc()
}

// ExternalCall records one call to an external service.
func (m *Metrics) ExternalCall(service string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.externalCalls.WithLabelValues(service, outcome).Inc()
	m.externalDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *Metrics) Promotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

func (m *Metrics) CacheRebuild() {
	if m == nil {
		return
	}
	m.cacheRebuilds.Inc()
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.activeBatches.Inc()
}

func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.activeBatches.Dec()
}

// ObserveRequest records one served HTTP request. Its signature matches
// middleware.Observer.
func (m *Metrics) ObserveRequest(method, pattern string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if pattern == "" {
		pattern = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, pattern).Observe(elapsed.Seconds())
}
