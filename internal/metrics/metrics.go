// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for harvester_fetch_outcomes_total.
const (
	OutcomeSuccess     = "success"
	OutcomeTransient   = "transient"
	OutcomeRateLimited = "rate_limited"
)

var (
	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_requests_total",
			Help: "Underlying HTTP requests issued, labeled by status class.",
		},
		[]string{"status"},
	)

	fetchRequestErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_fetch_request_errors_total",
			Help: "Requests that failed below HTTP (connection, timeout, TLS).",
		},
	)

	fetchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_outcomes_total",
			Help: "Terminal outcomes of governed fetch calls.",
		},
		[]string{"outcome"},
	)

	admissionWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_admission_wait_seconds",
			Help:    "Time spent waiting for a rate-limiter token.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	backoffSleepSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_backoff_sleep_seconds",
			Help:    "Backoff sleeps before transient retries.",
			Buckets: []float64{8, 16, 32, 48, 64, 96},
		},
	)

	rateLimitCooldownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_rate_limit_cooldowns_total",
			Help: "Long cooldowns entered after a rate-limit signal.",
		},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Pages fetched and parsed, labeled by kind (search or item).",
		},
		[]string{"kind"},
	)

	parseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_parse_failures_total",
			Help: "Documents that could not be parsed, labeled by kind.",
		},
		[]string{"kind"},
	)

	chunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_chunks_total",
			Help: "Item chunks fully processed (fetched, uploaded, loaded).",
		},
	)

	rowsLoadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_rows_loaded_total",
			Help: "Rows confirmed loaded into the warehouse.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_http_requests_total",
			Help: "Ops endpoint requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_http_request_duration_seconds",
			Help:    "Ops endpoint latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// StatusClass folds an HTTP status into 2xx/3xx/4xx/5xx, or "unknown".
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest counts one issued request by status class.
func ObserveRequest(code int) {
	fetchRequestsTotal.WithLabelValues(StatusClass(code)).Inc()
}

// ObserveRequestError counts a transport-level failure.
func ObserveRequestError() {
	fetchRequestErrorsTotal.Inc()
}

// ObserveOutcome counts a terminal fetch outcome.
func ObserveOutcome(outcome string) {
	fetchOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveAdmissionWait records how long a caller waited for a token.
func ObserveAdmissionWait(d time.Duration) {
	admissionWaitSeconds.Observe(d.Seconds())
}

// ObserveBackoff records a backoff sleep.
func ObserveBackoff(d time.Duration) {
	backoffSleepSeconds.Observe(d.Seconds())
}

// ObserveRateLimitCooldown counts a long rate-limit cooldown.
func ObserveRateLimitCooldown() {
	rateLimitCooldownsTotal.Inc()
}

// ObservePage counts a page fetched for the given kind ("search" or "item").
func ObservePage(kind string) {
	pagesTotal.WithLabelValues(kind).Inc()
}

// ObserveParseFailure counts a document that failed extraction.
func ObserveParseFailure(kind string) {
	parseFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveChunk counts a fully processed chunk.
func ObserveChunk() {
	chunksTotal.Inc()
}

// AddRowsLoaded records rows confirmed by the warehouse.
func AddRowsLoaded(n int64) {
	if n > 0 {
		rowsLoadedTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest records one ops endpoint request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
