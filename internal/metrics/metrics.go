// Package metrics exposes Prometheus collectors for the catalog sync
// pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	discoveryPagesTotal    *prometheus.CounterVec
	discoveryProductsTotal *prometheus.CounterVec
	extractionsTotal       *prometheus.CounterVec
	queuePublishesTotal    *prometheus.CounterVec
	syncTransitionsTotal   *prometheus.CounterVec
	extractorActiveWorkers prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than
// once.
func Init() {
	once.Do(func() {
		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_discovery_pages_total",
				Help: "Listing pages visited, labeled by category.",
			},
			[]string{"category"},
		)

		discoveryProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_discovery_products_total",
				Help: "New product URLs discovered, labeled by category.",
			},
			[]string{"category"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_extractions_total",
				Help: "Product extraction attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		queuePublishesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_queue_publishes_total",
				Help: "Queue publish attempts, labeled by status.",
			},
			[]string{"status"},
		)

		syncTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_transitions_total",
				Help: "Persisted item state transitions, labeled by kind.",
			},
			[]string{"kind"},
		)

		extractorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_extractor_active_workers",
				Help: "Extraction tasks currently in flight.",
			},
		)
	})
}

// ObserveDiscoveryPage counts one visited listing page.
func ObserveDiscoveryPage(category string) {
	discoveryPagesTotal.WithLabelValues(category).Inc()
}

// ObserveDiscoveredProducts counts newly discovered product URLs.
func ObserveDiscoveredProducts(category string, n int) {
	if n > 0 {
		discoveryProductsTotal.WithLabelValues(category).Add(float64(n))
	}
}

// ObserveExtraction counts one extraction attempt by outcome.
func ObserveExtraction(outcome string) {
	extractionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveQueuePublish counts one publish attempt.
func ObserveQueuePublish(status string) {
	queuePublishesTotal.WithLabelValues(status).Inc()
}

// ObserveSyncTransition counts one persisted item state transition
// (created, updated, became_unavailable, became_available, sizes_changed,
// swept_unavailable).
func ObserveSyncTransition(kind string) {
	syncTransitionsTotal.WithLabelValues(kind).Inc()
}

// IncActiveWorkers increments the in-flight extraction gauge.
func IncActiveWorkers() { extractorActiveWorkers.Inc() }

// DecActiveWorkers decrements the in-flight extraction gauge.
func DecActiveWorkers() { extractorActiveWorkers.Dec() }

// Handler returns the promhttp scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router returns a chi router serving /metrics and /healthz, mounted by
// both subcommands on the operational listen address.
func Router() chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
