package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing, which keeps unit tests free of registries.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CatalogRequestsTotal   *prometheus.CounterVec
	CatalogRequestDuration prometheus.Histogram

	CredentialRefreshTotal *prometheus.CounterVec
	ParseRunsTotal         *prometheus.CounterVec
	ItemsPersistedTotal    *prometheus.CounterVec

	TaskQueueDepth     prometheus.Gauge
	JobsProcessedTotal *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// binaries and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		CatalogRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_requests_total",
				Help: "Catalog API requests by outcome.",
			},
			[]string{"outcome"}, // success, unauthorized, rate_limited, transient, exhausted, malformed, http_error
		),
		CatalogRequestDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_request_duration_seconds",
				Help:    "Latency of single catalog API round trips.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		CredentialRefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credential_refresh_total",
				Help: "Credential refresh attempts by outcome.",
			},
			[]string{"outcome"},
		),
		ParseRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parse_runs_total",
				Help: "Parse orchestrator runs by decision.",
			},
			[]string{"decision"}, // skip, top_up, full_scrape, soft_fail
		),
		ItemsPersistedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "items_persisted_total",
				Help: "Scraped items written to the record store.",
			},
			[]string{"op"}, // inserted, updated
		),
		TaskQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "task_queue_depth",
				Help: "Ready tasks waiting in the queue.",
			},
		),
		JobsProcessedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_processed_total",
				Help: "Background jobs handled by the worker.",
			},
			[]string{"type", "outcome"}, // outcome: success, retry, dead
		),
	}
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

func (m *Metrics) ObserveCatalogRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CatalogRequestsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.CatalogRequestDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncCredentialRefresh(outcome string) {
	if m == nil {
		return
	}
	m.CredentialRefreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncParseRun(decision string) {
	if m == nil {
		return
	}
	m.ParseRunsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) AddItemsPersisted(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsPersistedTotal.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.TaskQueueDepth.Set(float64(n))
}

func (m *Metrics) IncJob(jobType, outcome string) {
	if m == nil {
		return
	}
	m.JobsProcessedTotal.WithLabelValues(jobType, outcome).Inc()
}
