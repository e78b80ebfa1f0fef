// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceRequestsTotal          *prometheus.CounterVec
	sourceRequestDurationSeconds *prometheus.HistogramVec
	appsProcessedTotal           *prometheus.CounterVec
	persistFailuresTotal         prometheus.Counter
	deferredLinksResolvedTotal   prometheus.Counter
	crawlRemaining               prometheus.Gauge
	crawlProcessed               prometheus.Gauge
	activeWorkers                prometheus.Gauge

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steamharvest_source_requests_total",
				Help: "Total number of remote source requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		sourceRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steamharvest_source_request_duration_seconds",
				Help:    "Histogram of remote source request latencies, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"endpoint"},
		)

		appsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steamharvest_apps_processed_total",
				Help: "Total number of apps that reached a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		persistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "steamharvest_persist_failures_total",
				Help: "Total number of app writes that were rolled back.",
			},
		)

		deferredLinksResolvedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "steamharvest_deferred_links_resolved_total",
				Help: "Total number of deferred parent links materialized.",
			},
		)

		crawlRemaining = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "steamharvest_crawl_remaining",
				Help: "Number of apps left in the current session.",
			},
		)

		crawlProcessed = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "steamharvest_crawl_processed",
				Help: "Number of apps with a status in the ledger.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "steamharvest_active_workers",
				Help: "Number of workers currently processing an app.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSourceRequest records one remote call
func ObserveSourceRequest(endpoint, outcome string, duration time.Duration) {
	Init()
	sourceRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	sourceRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveApp counts an app that reached a terminal status. Skipped kinds
// share one label to keep cardinality bounded.
func ObserveApp(status string) {
	Init()
	if strings.HasPrefix(status, "skipped") {
		status = "skipped"
	}
	appsProcessedTotal.WithLabelValues(status).Inc()
}

// ObservePersistFailure counts a rolled back app write
func ObservePersistFailure() {
	Init()
	persistFailuresTotal.Inc()
}

// ObserveResolvedLinks adds materialized deferred links
func ObserveResolvedLinks(n int64) {
	Init()
	if n > 0 {
		deferredLinksResolvedTotal.Add(float64(n))
	}
}

// SetProgress updates the crawl progress gauges
func SetProgress(processed, remaining int64) {
	Init()
	crawlProcessed.Set(float64(processed))
	crawlRemaining.Set(float64(remaining))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
