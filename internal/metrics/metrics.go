package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow commands by outcome: ok or an error kind.
	WorkflowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_operations_total",
			Help: "Total number of workflow commands by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Store transaction duration (seconds), including retries.
	TxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_tx_duration_seconds",
			Help:    "Entity store transaction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"outcome"},
	)

	TxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_tx_retries_total",
			Help: "Total number of transaction retries after a retryable storage error",
		},
	)

	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of domain events published by type and result",
		},
		[]string{"type", "result"}, // result: ok, failed
	)
)

func RecordWorkflowOperation(operation, outcome string) {
	WorkflowOperations.WithLabelValues(operation, outcome).Inc()
}

func RecordTxDuration(outcome string, duration time.Duration) {
	TxDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func IncrementTxRetry() {
	TxRetries.Inc()
}

func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

func IncrementEventPublished(eventType, result string) {
	EventsPublished.WithLabelValues(eventType, result).Inc()
}
