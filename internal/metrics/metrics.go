package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthOperations counts lifecycle operations by name and outcome (success or an error kind).
	AuthOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total number of account lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	// EmailDispatches counts best-effort notification sends (sent|failed).
	EmailDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_email_dispatches_total",
			Help: "Total number of confirmation and reset emails dispatched",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
