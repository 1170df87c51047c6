package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/types"
)

// ProviderMetrics tracks provider health and per-attempt performance.
//
// Metrics:
//   - relay_provider_status: 0=healthy, 1=degraded, 2=unavailable
//   - relay_provider_attempts_total: attempts by provider and outcome
//   - relay_provider_latency_seconds: attempt latency by provider
type ProviderMetrics struct {
	status   *prometheus.GaugeVec
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewProviderMetrics creates and registers provider metrics.
func NewProviderMetrics(namespace string, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_status",
				Help:      "Provider health status (0=healthy, 1=degraded, 2=unavailable)",
			},
			[]string{"provider"},
		),

		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Total number of dispatch attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Dispatch attempt latency in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(pm.status, pm.attempts, pm.latency)
	return pm
}

// SetStatus sets the status gauge of a provider.
func (pm *ProviderMetrics) SetStatus(provider string, status types.Status) {
	pm.status.WithLabelValues(provider).Set(status.Gauge())
}

// RecordAttempt counts an attempt and observes its latency. Cancelled
// attempts are counted but their latency says nothing about the provider.
func (pm *ProviderMetrics) RecordAttempt(provider string, outcome types.Outcome, latency time.Duration) {
	pm.attempts.WithLabelValues(provider, string(outcome)).Inc()
	if outcome != types.OutcomeCancelled {
		pm.latency.WithLabelValues(provider).Observe(latency.Seconds())
	}
}
