package routing

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/types"
)

// staticSource serves a fixed provider snapshot.
type staticSource []registry.ModelProvider

func (s staticSource) All() []registry.ModelProvider { return s }

// abcProviders is the reference trio: A balanced, B fast and accurate but
// expensive, C cheap but slow and less accurate.
func abcProviders() staticSource {
	return staticSource(registry.FromConfig([]config.ProviderConfig{
		{ID: "A", Capabilities: []string{"general", "coding"}, CostPerUnit: 1, BaselineLatencyMs: 50, Accuracy: 0.90},
		{ID: "B", Capabilities: []string{"general", "coding", "eu"}, CostPerUnit: 2, BaselineLatencyMs: 30, Accuracy: 0.95},
		{ID: "C", Capabilities: []string{"general"}, CostPerUnit: 0.5, BaselineLatencyMs: 200, Accuracy: 0.70},
	}))
}

func newTestEngine(src Source) *Engine {
	return NewEngine(config.RoutingConfig{}, src, nil)
}

func route(t *testing.T, e *Engine, req *RoutingRequest) *RoutingDecision {
	t.Helper()
	d, err := e.Route(context.Background(), req)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	return d
}

func TestEngine_ObjectiveOrdering(t *testing.T) {
	e := newTestEngine(abcProviders())

	tests := []struct {
		objective types.Objective
		want      []string
	}{
		{types.ObjectiveCost, []string{"C", "A", "B"}},
		{types.ObjectiveLatency, []string{"B", "A", "C"}},
		{types.ObjectiveAccuracy, []string{"B", "A", "C"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.objective), func(t *testing.T) {
			d := route(t, e, &RoutingRequest{
				ID:                       "req",
				TaskType:                 types.TaskGeneral,
				ClassificationConfidence: 0.9,
				Objective:                tt.objective,
			})
			if got := d.ProviderIDs(); !slices.Equal(got, tt.want) {
				t.Errorf("chain = %v, want %v", got, tt.want)
			}
			if d.Tier != types.TierAuto {
				t.Errorf("Tier = %q, want AUTO", d.Tier)
			}
			if d.Objective != tt.objective {
				t.Errorf("Objective = %q, want %q", d.Objective, tt.objective)
			}
			for i := 1; i < len(d.Candidates); i++ {
				if d.Candidates[i].Score > d.Candidates[i-1].Score {
					t.Errorf("chain not sorted by score: %+v", d.Candidates)
				}
			}
		})
	}
}

func TestEngine_DefaultObjective(t *testing.T) {
	e := newTestEngine(abcProviders())

	d := route(t, e, &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.9})
	if d.RequestedObjective != types.ObjectiveCost {
		t.Errorf("RequestedObjective = %q, want cost", d.RequestedObjective)
	}
	if got := d.ProviderIDs(); !slices.Equal(got, []string{"C", "A", "B"}) {
		t.Errorf("chain = %v", got)
	}
	want := config.DefaultWeights()[types.ObjectiveCost]
	if d.Weights != want {
		t.Errorf("Weights = %+v, want %+v", d.Weights, want)
	}
}

func TestEngine_UnclassifiedRoutesAsGeneral(t *testing.T) {
	e := newTestEngine(abcProviders())

	d := route(t, e, &RoutingRequest{TaskType: types.TaskUnclassified, ClassificationConfidence: 0.9})
	if d.TaskType != types.TaskGeneral {
		t.Errorf("TaskType = %q, want general", d.TaskType)
	}
	if len(d.Candidates) != 3 {
		t.Errorf("candidates = %v, want all three", d.ProviderIDs())
	}
}

func TestEngine_Filter(t *testing.T) {
	src := abcProviders()
	src[0].Health.Status = types.StatusUnavailable

	tests := []struct {
		name       string
		req        RoutingRequest
		want       []string
		exclusions map[string]ExclusionReason
	}{
		{
			name:       "capability",
			req:        RoutingRequest{TaskType: types.TaskCoding},
			want:       []string{"B"},
			exclusions: map[string]ExclusionReason{"A": ReasonUnavailable, "C": ReasonCapability},
		},
		{
			name:       "max cost",
			req:        RoutingRequest{TaskType: types.TaskGeneral, MaxCost: 1},
			want:       []string{"C"},
			exclusions: map[string]ExclusionReason{"A": ReasonUnavailable, "B": ReasonMaxCost},
		},
		{
			name:       "max latency",
			req:        RoutingRequest{TaskType: types.TaskGeneral, MaxLatency: 100 * time.Millisecond},
			want:       []string{"B"},
			exclusions: map[string]ExclusionReason{"A": ReasonUnavailable, "C": ReasonMaxLatency},
		},
		{
			name:       "required tag",
			req:        RoutingRequest{TaskType: types.TaskGeneral, RequiredTags: []string{"eu"}},
			want:       []string{"B"},
			exclusions: map[string]ExclusionReason{"A": ReasonUnavailable, "C": ReasonRequiredTag},
		},
	}

	e := newTestEngine(src)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ClassificationConfidence = 0.9
			d := route(t, e, &tt.req)
			if got := d.ProviderIDs(); !slices.Equal(got, tt.want) {
				t.Errorf("chain = %v, want %v", got, tt.want)
			}
			if len(d.Exclusions) != len(tt.exclusions) {
				t.Fatalf("exclusions = %+v, want %v", d.Exclusions, tt.exclusions)
			}
			for _, ex := range d.Exclusions {
				if tt.exclusions[ex.ProviderID] != ex.Reason {
					t.Errorf("exclusion %s = %q, want %q", ex.ProviderID, ex.Reason, tt.exclusions[ex.ProviderID])
				}
			}
		})
	}
}

func TestEngine_DegradedStillRoutable(t *testing.T) {
	src := abcProviders()
	src[0].Health.Status = types.StatusDegraded

	d := route(t, newTestEngine(src), &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.9})
	if len(d.Candidates) != 3 {
		t.Fatalf("chain = %v, want degraded A included", d.ProviderIDs())
	}
	for _, c := range d.Candidates {
		if c.ProviderID == "A" && c.Status != types.StatusDegraded {
			t.Errorf("A status = %q, want degraded", c.Status)
		}
	}
}

func TestEngine_NoCandidate(t *testing.T) {
	src := abcProviders()
	for i := range src {
		src[i].Health.Status = types.StatusUnavailable
	}
	e := newTestEngine(src)

	_, err := e.Route(context.Background(), &RoutingRequest{TaskType: types.TaskGeneral})
	if !errors.Is(err, ErrNoCandidateAvailable) {
		t.Fatalf("Route() error = %v, want ErrNoCandidateAvailable", err)
	}
	var nce *NoCandidateAvailableError
	if !errors.As(err, &nce) {
		t.Fatalf("error type = %T", err)
	}
	if len(nce.Exclusions) != 3 {
		t.Errorf("Exclusions = %+v, want 3", nce.Exclusions)
	}

	_, err = newTestEngine(staticSource(nil)).Route(context.Background(), &RoutingRequest{TaskType: types.TaskGeneral})
	if !errors.Is(err, ErrNoCandidateAvailable) {
		t.Errorf("empty registry: error = %v", err)
	}

	if got := e.Stats().Snapshot().NoCandidate; got != 1 {
		t.Errorf("NoCandidate = %d, want 1", got)
	}
}

func TestEngine_TieBreakByErrorRateThenID(t *testing.T) {
	src := staticSource(registry.FromConfig([]config.ProviderConfig{
		{ID: "A", CostPerUnit: 1, BaselineLatencyMs: 50, Accuracy: 0.9},
		{ID: "B", CostPerUnit: 1, BaselineLatencyMs: 50, Accuracy: 0.9},
		{ID: "C", CostPerUnit: 1, BaselineLatencyMs: 50, Accuracy: 0.9},
	}))

	e := newTestEngine(src)
	d := route(t, e, &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.9})
	if got := d.ProviderIDs(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Errorf("equal providers: chain = %v, want id order", got)
	}

	// A failed three times in a row and is now degraded.
	src[0].Health = registry.Health{Status: types.StatusDegraded, ErrorRate: 1, Samples: 3}
	d = route(t, e, &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.9})
	if got := d.ProviderIDs(); !slices.Equal(got, []string{"B", "C", "A"}) {
		t.Errorf("degraded A: chain = %v, want A last", got)
	}
}

func TestEngine_Tiers(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		success    map[types.TaskType]float64
		objective  types.Objective
		wantTier   types.Tier
		wantObj    types.Objective
		wantChain  []string
	}{
		{
			name:       "auto keeps objective",
			confidence: 0.9,
			objective:  types.ObjectiveCost,
			wantTier:   types.TierAuto,
			wantObj:    types.ObjectiveCost,
			wantChain:  []string{"C", "A", "B"},
		},
		{
			name:       "notify forces accuracy",
			confidence: 0.4,
			objective:  types.ObjectiveCost,
			wantTier:   types.TierNotify,
			wantObj:    types.ObjectiveAccuracy,
			wantChain:  []string{"B", "A", "C"},
		},
		{
			name:       "block forces accuracy",
			confidence: 0.2,
			objective:  types.ObjectiveLatency,
			wantTier:   types.TierBlock,
			wantObj:    types.ObjectiveAccuracy,
			wantChain:  []string{"B", "A", "C"},
		},
		{
			name:       "poor history of top candidate",
			confidence: 0.9,
			success:    map[types.TaskType]float64{types.TaskGeneral: 0.5},
			objective:  types.ObjectiveCost,
			wantTier:   types.TierNotify,
			wantObj:    types.ObjectiveAccuracy,
			wantChain:  []string{"B", "A", "C"},
		},
		{
			name:       "history for another task is ignored",
			confidence: 0.9,
			success:    map[types.TaskType]float64{types.TaskCoding: 0.1},
			objective:  types.ObjectiveCost,
			wantTier:   types.TierAuto,
			wantObj:    types.ObjectiveCost,
			wantChain:  []string{"C", "A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := abcProviders()
			// C heads the cost chain; its history drives the blend.
			src[2].Health.SuccessByTask = tt.success

			d := route(t, newTestEngine(src), &RoutingRequest{
				TaskType:                 types.TaskGeneral,
				ClassificationConfidence: tt.confidence,
				Objective:                tt.objective,
			})
			if d.Tier != tt.wantTier {
				t.Errorf("Tier = %q (blended %.3f), want %q", d.Tier, d.BlendedConfidence, tt.wantTier)
			}
			if d.Objective != tt.wantObj {
				t.Errorf("Objective = %q, want %q", d.Objective, tt.wantObj)
			}
			if d.RequestedObjective != tt.objective {
				t.Errorf("RequestedObjective = %q, want %q", d.RequestedObjective, tt.objective)
			}
			if got := d.ProviderIDs(); !slices.Equal(got, tt.wantChain) {
				t.Errorf("chain = %v, want %v", got, tt.wantChain)
			}
		})
	}
}

func TestTierFor(t *testing.T) {
	tiers := config.TierConfig{Auto: 0.85, Notify: 0.65}

	tests := []struct {
		blended float64
		want    types.Tier
	}{
		{1, types.TierAuto},
		{0.85, types.TierAuto},
		{0.8499, types.TierNotify},
		{0.65, types.TierNotify},
		{0.6499, types.TierBlock},
		{0, types.TierBlock},
	}
	for _, tt := range tests {
		if got := tierFor(tiers, tt.blended); got != tt.want {
			t.Errorf("tierFor(%v) = %q, want %q", tt.blended, got, tt.want)
		}
	}
}

func TestEngine_MinMaxNormalization(t *testing.T) {
	e := NewEngine(config.RoutingConfig{Normalization: NormalizeMinMax}, abcProviders(), nil)

	d := route(t, e, &RoutingRequest{
		TaskType:                 types.TaskGeneral,
		ClassificationConfidence: 0.9,
		Objective:                types.ObjectiveCost,
	})
	if got := d.ProviderIDs(); !slices.Equal(got, []string{"A", "C", "B"}) {
		t.Errorf("chain = %v, want [A C B]", got)
	}
}

func TestEngine_UpdateConfig(t *testing.T) {
	e := newTestEngine(abcProviders())

	e.UpdateConfig(config.RoutingConfig{
		Weights: map[types.Objective]config.Weights{
			types.ObjectiveCost: {Cost: 0, Latency: 1, Accuracy: 0},
		},
	})

	d := route(t, e, &RoutingRequest{
		TaskType:                 types.TaskGeneral,
		ClassificationConfidence: 0.9,
		Objective:                types.ObjectiveCost,
	})
	if got := d.ProviderIDs(); !slices.Equal(got, []string{"B", "A", "C"}) {
		t.Errorf("chain = %v, want latency order", got)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(abcProviders())
	req := &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.7, Objective: types.ObjectiveLatency}

	first := route(t, e, req).ProviderIDs()
	for range 20 {
		if got := route(t, e, req).ProviderIDs(); !slices.Equal(got, first) {
			t.Fatalf("chain changed: %v then %v", first, got)
		}
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(abcProviders()).Route(ctx, &RoutingRequest{TaskType: types.TaskGeneral})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Route() error = %v, want context.Canceled", err)
	}
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(abcProviders())

	route(t, e, &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.9})
	route(t, e, &RoutingRequest{TaskType: types.TaskGeneral, ClassificationConfidence: 0.2})

	snap := e.Stats().Snapshot()
	if snap.Decisions != 2 {
		t.Errorf("Decisions = %d, want 2", snap.Decisions)
	}
	if snap.ObjectiveOverrides != 1 {
		t.Errorf("ObjectiveOverrides = %d, want 1", snap.ObjectiveOverrides)
	}
	if snap.PerTier[types.TierAuto] != 1 || snap.PerTier[types.TierBlock] != 1 {
		t.Errorf("PerTier = %v", snap.PerTier)
	}
	if snap.PerProvider["C"] != 1 || snap.PerProvider["B"] != 1 {
		t.Errorf("PerProvider = %v", snap.PerProvider)
	}
	if snap.AverageCandidates != 3 {
		t.Errorf("AverageCandidates = %v, want 3", snap.AverageCandidates)
	}

	e.Stats().Reset()
	if got := e.Stats().Snapshot().Decisions; got != 0 {
		t.Errorf("Decisions after Reset = %d", got)
	}
}
