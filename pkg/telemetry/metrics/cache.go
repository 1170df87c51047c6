package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks the response cache.
//
// Metrics:
//   - relay_cache_requests_total: lookups by outcome (hit, miss, shared)
//   - relay_cache_entries: current number of stored entries
type CacheMetrics struct {
	requests *prometheus.CounterVec
	entries  prometheus.Gauge
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(namespace string, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Total number of cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of entries in the response cache",
			},
		),
	}

	registry.MustRegister(cm.requests, cm.entries)
	return cm
}

// RecordOutcome counts one lookup.
func (cm *CacheMetrics) RecordOutcome(outcome string) {
	cm.requests.WithLabelValues(outcome).Inc()
}

// UpdateEntries sets the entry gauge.
func (cm *CacheMetrics) UpdateEntries(n int) {
	cm.entries.Set(float64(n))
}
