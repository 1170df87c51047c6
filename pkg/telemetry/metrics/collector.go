package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

// durationBuckets are tuned for LLM call latencies (50ms - 30s).
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// Collector is the Prometheus exporter for Relay. It owns a private
// registry so tests and multiple instances never collide.
//
// Collector implements monitor.Observer: the health monitor forwards every
// attempt sample and status change to it.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requests  *RequestMetrics
	providers *ProviderMetrics
	routing   *RoutingMetrics
	cost      *CostMetrics
	cache     *CacheMetrics
}

// NewCollector creates a collector and registers every metric with
// registry. A nil registry gets a fresh one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		enabled:   cfg.IsEnabled(),
		registry:  registry,
		requests:  NewRequestMetrics(cfg.Namespace, registry),
		providers: NewProviderMetrics(cfg.Namespace, registry),
		routing:   NewRoutingMetrics(cfg.Namespace, registry),
		cost:      NewCostMetrics(cfg.Namespace, registry),
		cache:     NewCacheMetrics(cfg.Namespace, registry),
	}
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// ObserveAttempt records one dispatch attempt.
func (c *Collector) ObserveAttempt(provider string, outcome types.Outcome, latency time.Duration, cost float64) {
	if !c.Enabled() {
		return
	}
	c.providers.RecordAttempt(provider, outcome, latency)
	if outcome == types.OutcomeSuccess {
		c.cost.RecordAttemptCost(provider, cost)
	}
}

// SetProviderStatus publishes a provider's derived health status.
func (c *Collector) SetProviderStatus(provider string, status types.Status) {
	if !c.Enabled() {
		return
	}
	c.providers.SetStatus(provider, status)
}

// RecordRequest records a completed routed request.
//
// status is "success" or the error class returned to the caller, such as
// "no_candidate", "chain_depleted", "budget_exceeded" or "cancelled".
func (c *Collector) RecordRequest(task types.TaskType, status string, duration time.Duration, cost float64) {
	if !c.Enabled() {
		return
	}
	c.requests.RecordRequest(task, status, duration)
	if cost > 0 {
		c.cost.RecordRequestCost(task, cost)
	}
}

// RecordDecision records a routing decision.
func (c *Collector) RecordDecision(tier types.Tier, objective types.Objective, candidates int) {
	if !c.Enabled() {
		return
	}
	c.routing.RecordDecision(tier, objective, candidates)
}

// RecordNoCandidate records a request no provider was eligible for.
func (c *Collector) RecordNoCandidate(task types.TaskType) {
	if !c.Enabled() {
		return
	}
	c.routing.RecordNoCandidate(task)
}

// RecordEscalation records a NOTIFY or BLOCK notification attempt.
func (c *Collector) RecordEscalation(tier types.Tier, delivered bool) {
	if !c.Enabled() {
		return
	}
	c.routing.RecordEscalation(tier, delivered)
}

// RecordCacheOutcome records how a request was served by the response
// cache: "hit", "miss" or "shared".
func (c *Collector) RecordCacheOutcome(outcome string) {
	if !c.Enabled() {
		return
	}
	c.cache.RecordOutcome(outcome)
}

// UpdateCacheEntries sets the current cache size.
func (c *Collector) UpdateCacheEntries(n int) {
	if !c.Enabled() {
		return
	}
	c.cache.UpdateEntries(n)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
