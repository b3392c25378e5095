package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// OAuthExchanges counts authorization-code exchanges by provider and outcome
	OAuthExchanges *prometheus.CounterVec
	// InstallationTokens counts installation token mints and fallbacks
	InstallationTokens *prometheus.CounterVec
	// SyncRuns counts sync pipeline runs by provider and outcome
	SyncRuns *prometheus.CounterVec
	// SyncDuration tracks end-to-end sync latency by provider
	SyncDuration *prometheus.HistogramVec
	// LLMCalls counts model calls by outcome
	LLMCalls *prometheus.CounterVec
	// TasksCreated counts materialized tasks by source
	TasksCreated *prometheus.CounterVec
	// TasksDeduplicated counts proposals dropped by the dedup key
	TasksDeduplicated *prometheus.CounterVec
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		OAuthExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_exchanges_total",
				Help:      "Total number of authorization-code exchanges",
			},
			[]string{"provider", "outcome"},
		),
		InstallationTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installation_tokens_total",
				Help:      "Total number of installation token operations",
			},
			[]string{"outcome"},
		),
		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Total number of sync pipeline runs",
			},
			[]string{"provider", "outcome"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "End-to-end sync pipeline latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		LLMCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of model extraction calls",
			},
			[]string{"outcome"},
		),
		TasksCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_created_total",
				Help:      "Total number of tasks materialized from proposals",
			},
			[]string{"source"},
		),
		TasksDeduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_deduplicated_total",
				Help:      "Total number of proposals dropped by the dedup key",
			},
			[]string{"source"},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.OAuthExchanges,
		m.InstallationTokens,
		m.SyncRuns,
		m.SyncDuration,
		m.LLMCalls,
		m.TasksCreated,
		m.TasksDeduplicated,
		m.ErrorCounter,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordOAuthExchange records an authorization-code exchange outcome
func (m *Metrics) RecordOAuthExchange(provider, outcome string) {
	m.OAuthExchanges.WithLabelValues(provider, outcome).Inc()
}

// RecordInstallationToken records an installation token mint or fallback
func (m *Metrics) RecordInstallationToken(outcome string) {
	m.InstallationTokens.WithLabelValues(outcome).Inc()
}

// RecordSyncRun records a completed sync pipeline run
func (m *Metrics) RecordSyncRun(provider, outcome string, durationSeconds float64) {
	m.SyncRuns.WithLabelValues(provider, outcome).Inc()
	m.SyncDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordLLMCall records a model extraction call outcome
func (m *Metrics) RecordLLMCall(outcome string) {
	m.LLMCalls.WithLabelValues(outcome).Inc()
}

// RecordTasksCreated records materialized and deduplicated task counts
func (m *Metrics) RecordTasksCreated(source string, created, deduplicated int) {
	m.TasksCreated.WithLabelValues(source).Add(float64(created))
	m.TasksDeduplicated.WithLabelValues(source).Add(float64(deduplicated))
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}
