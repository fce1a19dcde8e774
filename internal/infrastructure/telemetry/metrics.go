package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names, without namespace.
const (
	MetricRequestsTotal          = "requests_total"
	MetricRequestDurationSeconds = "request_duration_seconds"
	MetricCredentialClearsTotal  = "credential_clears_total"
	MetricPollSkipsTotal         = "poll_skips_total"
)

// ClientMetrics records outgoing API traffic on a private registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type ClientMetrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	credentialClears prometheus.Counter
	pollSkips        *prometheus.CounterVec
}

// MetricsConfig holds configuration for ClientMetrics.
type MetricsConfig struct {
	// Namespace prefixes every metric. Default: "portal"
	Namespace string
	// Subsystem is the second name segment. Default: "client"
	Subsystem string
	// HistogramBuckets for request duration. Default: prometheus.DefBuckets
	HistogramBuckets []float64
}

// NewClientMetrics creates and registers the client metrics.
func NewClientMetrics(cfg MetricsConfig) *ClientMetrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "portal"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "client"
	}
	if len(cfg.HistogramBuckets) == 0 {
		cfg.HistogramBuckets = prometheus.DefBuckets
	}

	m := &ClientMetrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      MetricRequestsTotal,
				Help:      "Total number of portal API requests by method and outcome kind.",
			},
			[]string{"method", "kind"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      MetricRequestDurationSeconds,
				Help:      "Duration of portal API requests in seconds.",
				Buckets:   cfg.HistogramBuckets,
			},
			[]string{"method"},
		),
		credentialClears: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      MetricCredentialClearsTotal,
				Help:      "Number of times stored credentials were cleared after an authentication failure.",
			},
		),
		pollSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      MetricPollSkipsTotal,
				Help:      "Polling ticks skipped because the previous fetch was still pending.",
			},
			[]string{"resource"},
		),
	}

	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.credentialClears, m.pollSkips)
	return m
}

// ObserveRequest records one completed request. kind is "ok" for successes.
func (m *ClientMetrics) ObserveRequest(method, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, kind).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// CredentialsCleared counts a forced credential clear.
func (m *ClientMetrics) CredentialsCleared() {
	if m == nil {
		return
	}
	m.credentialClears.Inc()
}

// PollSkipped counts a skipped polling tick for the given resource.
func (m *ClientMetrics) PollSkipped(resource string) {
	if m == nil {
		return
	}
	m.pollSkips.WithLabelValues(resource).Inc()
}

// Registry returns the underlying registry.
func (m *ClientMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics in the Prometheus text format.
func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
