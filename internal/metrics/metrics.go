// Package metrics declares the Prometheus instruments exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devpulse_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Sync
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_sync_runs_total",
			Help: "Total number of finished sync runs by type and outcome",
		},
		[]string{"sync_type", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devpulse_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"sync_type"},
	)

	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_sync_items_total",
			Help: "Total number of items mirrored by the sync pipeline",
		},
		[]string{"kind"},
	)

	SyncsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devpulse_syncs_in_flight",
			Help: "Number of sync runs currently executing",
		},
	)

	// Upstream
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_upstream_requests_total",
			Help: "Total number of upstream API requests by provider and status code",
		},
		[]string{"provider", "status"},
	)

	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_upstream_retries_total",
			Help: "Total number of retried upstream API requests",
		},
		[]string{"provider"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devpulse_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// KPI cache
	KPICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_kpi_cache_hits_total",
			Help: "Total number of KPI cache hits",
		},
		[]string{"method"},
	)

	KPICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_kpi_cache_misses_total",
			Help: "Total number of KPI cache misses",
		},
		[]string{"method"},
	)

	// Auth
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devpulse_login_attempts_total",
			Help: "Total number of login attempts by method and result",
		},
		[]string{"method", "result"},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSyncRun records the outcome of a finished sync run.
func RecordSyncRun(syncType, status string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(syncType, status).Inc()
	SyncDuration.WithLabelValues(syncType).Observe(duration.Seconds())
}

// RecordSyncItems adds mirrored item counts of a run.
func RecordSyncItems(pullRequests, commits, reviews, comments, failed int) {
	SyncItemsTotal.WithLabelValues("pull_request").Add(float64(pullRequests))
	SyncItemsTotal.WithLabelValues("commit").Add(float64(commits))
	SyncItemsTotal.WithLabelValues("review").Add(float64(reviews))
	SyncItemsTotal.WithLabelValues("comment").Add(float64(comments))
	SyncItemsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordUpstreamRequest records one upstream response by status code.
// A zero status records a transport failure.
func RecordUpstreamRequest(provider string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestsTotal.WithLabelValues(provider, label).Inc()
}

// RecordKPICache records a cache lookup for a KPI method.
func RecordKPICache(method string, hit bool) {
	if hit {
		KPICacheHits.WithLabelValues(method).Inc()
		return
	}
	KPICacheMisses.WithLabelValues(method).Inc()
}

// RecordLogin records a login attempt.
func RecordLogin(method string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	LoginAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordUpstreamRetry counts one retried upstream request.
func RecordUpstreamRetry(provider string) {
	UpstreamRetriesTotal.WithLabelValues(provider).Inc()
}

// RecordCircuitBreakerState publishes the state of a named breaker using
// the gauge encoding 0=closed, 1=half-open, 2=open.
func RecordCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
