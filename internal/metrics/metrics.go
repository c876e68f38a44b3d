// Package metrics exposes Prometheus collectors for the crawl and diff
// pipelines.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal    *prometheus.CounterVec
	fetchRetriesTotal    prometheus.Counter
	fetchDurationSeconds prometheus.Histogram
	activeFetches        prometheus.Gauge
	discoveryPagesTotal  prometheus.Counter
	sessionsTotal        *prometheus.CounterVec
	changeEventsTotal    *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_pages_fetched_total",
				Help: "Total item pages fetched, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookwatch_fetch_retries_total",
				Help: "Total fetch attempts beyond the first.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookwatch_fetch_duration_seconds",
				Help:    "Histogram of successful fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		activeFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookwatch_active_fetches",
				Help: "Number of fetches currently holding a pool slot.",
			},
		)

		discoveryPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookwatch_discovery_pages_total",
				Help: "Total listing pages walked during URL discovery.",
			},
		)

		sessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_sessions_total",
				Help: "Total crawl sessions finalized, labeled by status.",
			},
			[]string{"status"},
		)

		changeEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_change_events_total",
				Help: "Total change events emitted, labeled by kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookwatch_http_requests_total",
				Help: "Total API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookwatch_http_request_duration_seconds",
				Help:    "Histogram of API request latencies by route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a finished fetch by outcome ("ok", "not_found",
// "error") and, for successes, its duration.
func ObserveFetch(outcome string, duration time.Duration) {
	if pagesFetchedTotal == nil {
		return
	}
	pagesFetchedTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		fetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveRetry counts one retried fetch attempt.
func ObserveRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// IncActiveFetches increments the in-flight fetch gauge.
func IncActiveFetches() {
	if activeFetches == nil {
		return
	}
	activeFetches.Inc()
}

// DecActiveFetches decrements the in-flight fetch gauge.
func DecActiveFetches() {
	if activeFetches == nil {
		return
	}
	activeFetches.Dec()
}

// ObserveDiscoveryPage counts one listing page visited.
func ObserveDiscoveryPage() {
	if discoveryPagesTotal == nil {
		return
	}
	discoveryPagesTotal.Inc()
}

// ObserveSession counts a finalized session by status.
func ObserveSession(status string) {
	if sessionsTotal == nil {
		return
	}
	sessionsTotal.WithLabelValues(status).Inc()
}

// ObserveChangeEvent counts one emitted change event by kind.
func ObserveChangeEvent(kind string) {
	if changeEventsTotal == nil {
		return
	}
	changeEventsTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
