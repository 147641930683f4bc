// Package metrics holds the Prometheus collectors shared by the fetcher and scraper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a scrape run.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	ItemsTotal      *prometheus.CounterVec
	ArtifactsTotal  *prometheus.CounterVec
	PagesTotal      prometheus.Counter
	StoredTotal     prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_requests_total",
			Help: "Total HTTP requests issued, by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tululu_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_errors_total",
			Help: "Total number of request errors by type.",
		},
		[]string{"error_type"},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_items_total",
			Help: "Items processed, by acquisition outcome.",
		},
		[]string{"outcome"},
	)
	artifacts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_artifacts_total",
			Help: "Artifact downloads by kind and result.",
		},
		[]string{"kind", "result"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_pages_committed_total",
			Help: "Listing pages or ID batches committed to the store.",
		},
	)
	stored := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_records_stored_total",
			Help: "Records appended to the store.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, items, artifacts, pages, stored)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		ItemsTotal:      items,
		ArtifactsTotal:  artifacts,
		PagesTotal:      pages,
		StoredTotal:     stored,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
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

// IncItem counts one acquisition outcome.
func (m *Metrics) IncItem(outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
}

// IncArtifact counts one artifact download result.
func (m *Metrics) IncArtifact(kind, result string) {
	if m == nil {
		return
	}
	m.ArtifactsTotal.WithLabelValues(kind, result).Inc()
}

// AddCommitted records a committed page and the records it stored.
func (m *Metrics) AddCommitted(stored int) {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
	m.StoredTotal.Add(float64(stored))
}
