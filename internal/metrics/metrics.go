// Package metrics defines the Prometheus collectors for the data layer and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Remote fetch statuses.
const (
	RemoteSuccess = "success"
	RemoteFailure = "failure"
	RemoteCancel  = "canceled"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Cache metrics
	CacheRequestsTotal *prometheus.CounterVec
	CacheCleanTotal    *prometheus.CounterVec

	// Remote metrics
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteDurationSeconds *prometheus.HistogramVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitDroppedTotal *prometheus.CounterVec
	RateLimitActiveKeys   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		CacheRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_cache_requests_total",
				Help: "Total number of cache lookups by module and result",
			},
			[]string{"module", "result"}, // result: hit, miss, error
		),

		CacheCleanTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_cache_clean_total",
				Help: "Total number of cache wipes by module",
			},
			[]string{"module"},
		),

		RemoteRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_remote_requests_total",
				Help: "Total number of remote fetches by module and status",
			},
			[]string{"module", "status"}, // status: success, failure, canceled
		),

		RemoteDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campus_remote_duration_seconds",
				Help:    "Remote fetch duration in seconds by module",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}, // Lab schedule login can take several round trips
			},
			[]string{"module"},
		),

		SingleflightDedupTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),

		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_http_errors_total",
				Help: "Total gateway errors by failure kind and route",
			},
			[]string{"error_type", "route"},
		),

		RateLimitDroppedTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "campus_rate_limit_dropped_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),

		RateLimitActiveKeys: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campus_rate_limit_active_keys",
				Help: "Number of keys currently tracked by a rate limiter",
			},
			[]string{"limiter"},
		),
	}
}

// RecordCache records a cache lookup result
func (m *Metrics) RecordCache(module, result string) {
	if m == nil {
		return
	}
	m.CacheRequestsTotal.WithLabelValues(module, result).Inc()
}

// RecordCacheClean records a cache wipe
func (m *Metrics) RecordCacheClean(module string) {
	if m == nil {
		return
	}
	m.CacheCleanTotal.WithLabelValues(module).Inc()
}

// RecordRemote records a remote fetch with status
func (m *Metrics) RecordRemote(module, status string, duration float64) {
	if m == nil {
		return
	}
	m.RemoteRequestsTotal.WithLabelValues(module, status).Inc()
	m.RemoteDurationSeconds.WithLabelValues(module).Observe(duration)
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, route string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, route).Inc()
}

// RecordRateLimitDrop records a request rejected by a rate limiter
func (m *Metrics) RecordRateLimitDrop(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitDroppedTotal.WithLabelValues(limiter).Inc()
}

// SetRateLimitKeys sets the number of keys a rate limiter tracks
func (m *Metrics) SetRateLimitKeys(limiter string, count int) {
	if m == nil {
		return
	}
	m.RateLimitActiveKeys.WithLabelValues(limiter).Set(float64(count))
}
