// Package metrics bundles the Prometheus collectors shared by the fetcher
// and the crawl orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BooksSaved      prometheus.Counter
	BooksSkipped    *prometheus.CounterVec
	AssetsWritten   *prometheus.CounterVec
	BackoffsTotal   prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tululu_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	booksSaved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_books_saved_total",
			Help: "Total number of books added to the collection.",
		},
	)
	booksSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_books_skipped_total",
			Help: "Total number of books skipped, by error type.",
		},
		[]string{"error_type"},
	)
	assets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_assets_written_total",
			Help: "Total number of asset files written, by kind.",
		},
		[]string{"kind"},
	)
	backoffs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tululu_backoffs_total",
			Help: "Total number of back-off sleeps after connection failures.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tululu_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, booksSaved, booksSkipped, assets, backoffs, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		BooksSaved:      booksSaved,
		BooksSkipped:    booksSkipped,
		AssetsWritten:   assets,
		BackoffsTotal:   backoffs,
		ErrorsTotal:     errorsTotal,
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncBooksSaved increments the saved books counter.
func (m *Metrics) IncBooksSaved() {
	if m == nil {
		return
	}
	m.BooksSaved.Inc()
}

// IncBooksSkipped increments the skipped books counter for a type label.
func (m *Metrics) IncBooksSkipped(errorType string) {
	if m == nil {
		return
	}
	m.BooksSkipped.WithLabelValues(errorType).Inc()
}

// IncAsset increments the written assets counter for a kind.
func (m *Metrics) IncAsset(kind string) {
	if m == nil {
		return
	}
	m.AssetsWritten.WithLabelValues(kind).Inc()
}

// IncBackoff increments the back-off counter.
func (m *Metrics) IncBackoff() {
	if m == nil {
		return
	}
	m.BackoffsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
