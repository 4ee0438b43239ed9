// Package metrics exposes Prometheus collectors for the match pipeline.
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

// Fetch attempt outcomes.
const (
	AttemptOK        = "ok"
	AttemptRetryable = "retryable"
	AttemptNotFound  = "not_found"
	AttemptFatal     = "fatal"
	AttemptNetwork   = "network"
)

// Fetch results, one per locator.
const (
	ResultMatches   = "matches"
	ResultEmpty     = "empty"
	ResultNotFound  = "not_found"
	ResultExhausted = "exhausted"
	ResultFailed    = "failed"
)

var (
	feedFetchAttemptsTotal     *prometheus.CounterVec
	feedFetchResultsTotal      *prometheus.CounterVec
	matchesNormalizedTotal     *prometheus.CounterVec
	matchesEmittedTotal        prometheus.Counter
	detectorOutcomesTotal      *prometheus.CounterVec
	storeWritesTotal           *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		feedFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_fetch_attempts_total",
				Help: "Total number of scoreboard GET attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		feedFetchResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_fetch_results_total",
				Help: "Total number of locator fetches, labeled by final result.",
			},
			[]string{"result"},
		)

		matchesNormalizedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matches_normalized_total",
				Help: "Total number of feed entries normalized, labeled by result.",
			},
			[]string{"result"},
		)

		matchesEmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "matches_emitted_total",
				Help: "Total number of match records published by the producer.",
			},
		)

		detectorOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_outcomes_total",
				Help: "Total number of change classifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		storeWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_writes_total",
				Help: "Total number of store upserts, labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a feed request token, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one GET attempt.
func ObserveFetchAttempt(outcome string) {
	Init()
	feedFetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchResult counts the final result for one locator.
func ObserveFetchResult(result string) {
	Init()
	feedFetchResultsTotal.WithLabelValues(result).Inc()
}

// ObserveNormalized counts one normalization result: "ok", "skipped" or "malformed".
func ObserveNormalized(result string) {
	Init()
	matchesNormalizedTotal.WithLabelValues(result).Inc()
}

// ObserveEmitted counts published match records.
func ObserveEmitted(n int) {
	Init()
	if n > 0 {
		matchesEmittedTotal.Add(float64(n))
	}
}

// ObserveDetectorOutcome counts one classification.
func ObserveDetectorOutcome(outcome string) {
	Init()
	detectorOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStoreWrite counts one upsert: "ok" or "error".
func ObserveStoreWrite(result string) {
	Init()
	storeWritesTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records how long a request waited for a token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
