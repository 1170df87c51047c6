// Package routing ranks the providers eligible for a request and attaches a
// confidence tier to the decision.
//
// The engine reads provider metadata and the derived health view from the
// registry snapshot and never touches health records directly. A decision
// is computed in three steps:
//
//  1. Filter: capability, status (unavailable providers are never
//     candidates), hard cost and latency limits, and extra required tags.
//  2. Score: a weighted sum of normalized cost, latency and accuracy
//     sub-scores, with weights chosen by the optimization objective.
//  3. Tier: classification confidence blended with the top candidate's
//     historical success rate for the task type. NOTIFY and BLOCK re-score
//     the chain with the accuracy weights; the tier itself is not
//     recomputed. No tier prevents dispatch.
package routing

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/types"
)

// Source provides the provider snapshot to route against.
// *registry.Registry implements it.
type Source interface {
	All() []registry.ModelProvider
}

// Engine is the routing policy engine. It is safe for concurrent use.
type Engine struct {
	source Source
	stats  *Stats
	logger *slog.Logger
	now    func() time.Time

	mu  sync.RWMutex
	cfg config.RoutingConfig
}

// NewEngine creates an engine routing over source.
func NewEngine(cfg config.RoutingConfig, source Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyRoutingDefaults(&cfg)
	return &Engine{
		source: source,
		stats:  NewStats(),
		logger: logger.With("component", "routing"),
		now:    time.Now,
		cfg:    cfg,
	}
}

// UpdateConfig swaps in new weights and thresholds.
func (e *Engine) UpdateConfig(cfg config.RoutingConfig) {
	config.ApplyRoutingDefaults(&cfg)

	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()

	e.logger.Info("routing configuration updated",
		"default_objective", cfg.DefaultObjective,
		"normalization", cfg.Normalization,
	)
}

// Stats returns the engine's decision statistics.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// Route returns the ranked fallback chain for req, or a
// *NoCandidateAvailableError when no provider is eligible.
func (e *Engine) Route(ctx context.Context, req *RoutingRequest) (*RoutingDecision, error) {
	ctx, span := tracing.Start(ctx, "routing.route",
		attribute.String(tracing.AttrRequestID, req.ID),
		attribute.String(tracing.AttrTaskType, string(req.TaskType)),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		tracing.SetError(span, err)
		return nil, err
	}

	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	task := req.TaskType.Normalize()
	eligible, exclusions := filter(e.source.All(), req, task)

	if len(eligible) == 0 {
		e.stats.recordNoCandidate()
		err := &NoCandidateAvailableError{TaskType: task, Exclusions: exclusions}
		e.logger.Warn("no candidate provider available",
			"request_id", req.ID,
			"task_type", task,
			"excluded", len(exclusions),
		)
		tracing.SetError(span, err)
		return nil, err
	}

	requested := req.Objective
	if !requested.Valid() {
		requested = cfg.DefaultObjective
	}

	candidates := score(eligible, cfg.Weights[requested], cfg.Normalization)

	blended := e.blend(cfg.Tiers, req.ClassificationConfidence, eligible, candidates[0].ProviderID, task)
	tier := tierFor(cfg.Tiers, blended)

	objective := requested
	if tier.Escalated() && objective != types.ObjectiveAccuracy {
		objective = types.ObjectiveAccuracy
		candidates = score(eligible, cfg.Weights[objective], cfg.Normalization)
	}

	d := &RoutingDecision{
		RequestID:          req.ID,
		TaskType:           task,
		Candidates:         candidates,
		Objective:          objective,
		RequestedObjective: requested,
		Weights:            cfg.Weights[objective],
		Tier:               tier,
		BlendedConfidence:  blended,
		Exclusions:         exclusions,
		DecidedAt:          e.now(),
	}
	e.stats.recordDecision(d)

	span.SetAttributes(
		attribute.String(tracing.AttrTier, string(tier)),
		attribute.String(tracing.AttrProvider, candidates[0].ProviderID),
		attribute.Int(tracing.AttrCandidates, len(candidates)),
	)
	e.logger.Debug("routing decision",
		"request_id", req.ID,
		"task_type", task,
		"tier", tier,
		"objective", objective,
		"chain", d.ProviderIDs(),
	)
	return d, nil
}

// filter splits providers into eligible ones and exclusions. Each excluded
// provider carries the first reason that applied.
func filter(all []registry.ModelProvider, req *RoutingRequest, task types.TaskType) ([]registry.ModelProvider, []Exclusion) {
	var eligible []registry.ModelProvider
	var exclusions []Exclusion

	for _, p := range all {
		reason := ExclusionReason("")
		switch {
		case !p.Serves(task):
			reason = ReasonCapability
		case p.Status() == types.StatusUnavailable:
			reason = ReasonUnavailable
		case req.MaxCost > 0 && p.CostPerUnit > req.MaxCost:
			reason = ReasonMaxCost
		case req.MaxLatency > 0 && p.BaselineLatency > req.MaxLatency:
			reason = ReasonMaxLatency
		case slices.ContainsFunc(req.RequiredTags, func(tag string) bool { return !p.Has(tag) }):
			reason = ReasonRequiredTag
		}

		if reason != "" {
			exclusions = append(exclusions, Exclusion{ProviderID: p.ID, Reason: reason})
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible, exclusions
}

// blend mixes classification confidence with the top candidate's success
// rate for the task type.
func (e *Engine) blend(tiers config.TierConfig, confidence float64, eligible []registry.ModelProvider, topID string, task types.TaskType) float64 {
	success := tiers.PriorSuccessRate
	for _, p := range eligible {
		if p.ID != topID {
			continue
		}
		if rate, ok := p.Health.SuccessByTask[task]; ok {
			success = rate
		}
		break
	}
	a := tiers.ClassificationWeight
	return a*confidence + (1-a)*success
}

func tierFor(tiers config.TierConfig, blended float64) types.Tier {
	switch {
	case blended >= tiers.Auto:
		return types.TierAuto
	case blended >= tiers.Notify:
		return types.TierNotify
	default:
		return types.TierBlock
	}
}
