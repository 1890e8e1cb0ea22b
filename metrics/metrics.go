// Package metrics holds the Prometheus collectors of a dqflow process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts executed operations by type and result code.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dqflow_operations_total",
			Help: "Total number of executed operations",
		},
		[]string{"operation", "code"},
	)
	// OperationDuration is the latency of successful operations.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dqflow_operation_duration_seconds",
			Help:    "Operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	// SessionsActive is the number of live sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dqflow_sessions_active",
			Help: "Number of live engine sessions",
		},
	)
	// CommitsTotal counts commit attempts by result code.
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dqflow_commits_total",
			Help: "Total number of table commits",
		},
		[]string{"code"},
	)
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dqflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dqflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveOperation records one operation outcome. An empty code is success.
func ObserveOperation(operation, code string, elapsed time.Duration) {
	if code == "" {
		code = "ok"
		OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
	OperationsTotal.WithLabelValues(operation, code).Inc()
}

// ObserveCommit records one commit outcome. An empty code is success.
func ObserveCommit(code string) {
	if code == "" {
		code = "ok"
	}
	CommitsTotal.WithLabelValues(code).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
