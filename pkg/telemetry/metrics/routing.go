package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/types"
)

// RoutingMetrics tracks routing decisions and escalations.
//
// Metrics:
//   - relay_routing_decisions_total: decisions by tier and effective objective
//   - relay_routing_candidates: fallback chain length per decision
//   - relay_routing_no_candidate_total: requests with no eligible provider
//   - relay_escalations_total: NOTIFY/BLOCK notifications by delivery result
type RoutingMetrics struct {
	decisions   *prometheus.CounterVec
	candidates  prometheus.Histogram
	noCandidate *prometheus.CounterVec
	escalations *prometheus.CounterVec
}

// NewRoutingMetrics creates and registers routing metrics.
func NewRoutingMetrics(namespace string, registry *prometheus.Registry) *RoutingMetrics {
	rm := &RoutingMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "decisions_total",
				Help:      "Total number of routing decisions by tier and objective",
			},
			[]string{"tier", "objective"},
		),

		candidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "candidates",
				Help:      "Number of candidates in the fallback chain",
				Buckets:   []float64{1, 2, 3, 5, 8, 13},
			},
		),

		noCandidate: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "no_candidate_total",
				Help:      "Total number of requests with no eligible provider",
			},
			[]string{"task_type"},
		),

		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Total number of NOTIFY and BLOCK notifications",
			},
			[]string{"tier", "delivered"},
		),
	}

	registry.MustRegister(rm.decisions, rm.candidates, rm.noCandidate, rm.escalations)
	return rm
}

// RecordDecision records one routing decision.
func (rm *RoutingMetrics) RecordDecision(tier types.Tier, objective types.Objective, candidates int) {
	rm.decisions.WithLabelValues(string(tier), string(objective)).Inc()
	rm.candidates.Observe(float64(candidates))
}

// RecordNoCandidate records a request that could not be routed.
func (rm *RoutingMetrics) RecordNoCandidate(task types.TaskType) {
	rm.noCandidate.WithLabelValues(string(task)).Inc()
}

// RecordEscalation records a notification attempt.
func (rm *RoutingMetrics) RecordEscalation(tier types.Tier, delivered bool) {
	rm.escalations.WithLabelValues(string(tier), strconv.FormatBool(delivered)).Inc()
}
