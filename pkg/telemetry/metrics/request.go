package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/types"
)

// RequestMetrics tracks end-to-end routed requests.
//
// Metrics:
//   - relay_requests_total: requests by task type and status
//   - relay_request_duration_seconds: end-to-end duration by task type
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(namespace string, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of routed requests",
			},
			[]string{"task_type", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end duration of routed requests in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"task_type"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration)
	return rm
}

// RecordRequest records one completed request.
func (rm *RequestMetrics) RecordRequest(task types.TaskType, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(string(task), status).Inc()
	rm.requestDuration.WithLabelValues(string(task)).Observe(duration.Seconds())
}
