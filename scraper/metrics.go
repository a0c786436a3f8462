package scraper

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the search client.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesScanned    prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	InFlight        prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranker_requests_total",
			Help: "Total search API requests by HTTP status (0 for transport failures).",
		},
		[]string{"status"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranker_request_duration_seconds",
			Help:    "Search API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranker_pages_scanned_total",
			Help: "Total result pages decoded and scanned for the target.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranker_retries_total",
			Help: "Total number of per-keyword retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranker_errors_total",
			Help: "Total number of search errors by type.",
		},
		[]string{"error_type"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranker_outcomes_total",
			Help: "Keyword searches completed by outcome kind.",
		},
		[]string{"kind"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ranker_searches_in_flight",
			Help: "Keyword searches currently holding a concurrency slot.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, retries, errorsTotal, outcomes, inFlight)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesScanned:    pages,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		OutcomesTotal:   outcomes,
		InFlight:        inFlight,
	}
}

// IncRequest increments the requests counter for a status code.
func (m *Metrics) IncRequest(status int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the scanned pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesScanned.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncOutcome counts a finished keyword search (found, not_found or error).
func (m *Metrics) IncOutcome(kind string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(kind).Inc()
}

// AddInFlight adjusts the in-flight gauge.
func (m *Metrics) AddInFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(delta)
}
