// Package metrics provides Prometheus metrics for lfsauth operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lfsauth_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lfsauth_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Token metrics
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lfsauth_tokens_issued_total",
			Help: "Total number of auth tokens issued",
		},
		[]string{"kind", "operation"}, // kind: "content", "transfer"
	)

	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lfsauth_token_verifications_total",
			Help: "Total number of auth token verifications by result",
		},
		[]string{"kind", "result"}, // result: "valid", "malformed", "expired", "mismatch"
	)

	// Repository cache metrics
	RepositoryCacheLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lfsauth_repository_cache_loads_total",
			Help: "Total number of repository handle constructions",
		},
		[]string{"backend_type", "status"}, // status: "success", "failure"
	)

	RepositoryCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lfsauth_repository_cache_hits_total",
			Help: "Total number of repository lookups served from the cache",
		},
	)

	// Backend resolution metrics
	BackendResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lfsauth_backend_resolutions_total",
			Help: "Total number of project to backend resolutions",
		},
		[]string{"source"}, // source: "project", "namespace", "default"
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lfsauth_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)

// RegisterMetrics ensures all metrics are registered with Prometheus.
// This function is idempotent and safe to call multiple times.
func RegisterMetrics() {
	// All metrics are automatically registered via promauto.
}
