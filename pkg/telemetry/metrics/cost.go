package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/types"
)

// CostMetrics tracks spend in provider cost units.
//
// Metrics:
//   - relay_provider_cost_total: cost of successful attempts by provider
//   - relay_request_cost: cost per request by task type
type CostMetrics struct {
	providerCost *prometheus.CounterVec
	requestCost  *prometheus.HistogramVec
}

// NewCostMetrics creates and registers cost metrics.
func NewCostMetrics(namespace string, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		providerCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_cost_total",
				Help:      "Total cost of successful attempts by provider",
			},
			[]string{"provider"},
		),

		requestCost: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_cost",
				Help:      "Cost per routed request",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"task_type"},
		),
	}

	registry.MustRegister(cm.providerCost, cm.requestCost)
	return cm
}

// RecordAttemptCost adds the cost of a successful attempt.
func (cm *CostMetrics) RecordAttemptCost(provider string, cost float64) {
	if cost <= 0 {
		return
	}
	cm.providerCost.WithLabelValues(provider).Add(cost)
}

// RecordRequestCost observes the cost of a whole request.
func (cm *CostMetrics) RecordRequestCost(task types.TaskType, cost float64) {
	cm.requestCost.WithLabelValues(string(task)).Observe(cost)
}
