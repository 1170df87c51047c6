package monitor

import (
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/types"
)

type fakeObserver struct {
	attempts map[types.Outcome]int
	statuses []types.Status
}

func (o *fakeObserver) ObserveAttempt(_ string, outcome types.Outcome, _ time.Duration, _ float64) {
	if o.attempts == nil {
		o.attempts = make(map[types.Outcome]int)
	}
	o.attempts[outcome]++
}

func (o *fakeObserver) SetProviderStatus(_ string, status types.Status) {
	o.statuses = append(o.statuses, status)
}

func newTestCollector(t *testing.T, cfg config.HealthConfig) (*Collector, *registry.Registry, *fakeObserver) {
	t.Helper()
	reg, err := registry.New(registry.FromConfig([]config.ProviderConfig{
		{ID: "A", Capabilities: []string{"general"}, CostPerUnit: 1, BaselineLatencyMs: 50, Accuracy: 0.9},
	}), nil)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	obs := &fakeObserver{}
	return NewCollector(cfg, reg, obs, nil), reg, obs
}

func play(c *Collector, outcomes string) {
	for _, o := range outcomes {
		out := types.OutcomeSuccess
		switch o {
		case 'F':
			out = types.OutcomeError
		case 'T':
			out = types.OutcomeTimeout
		}
		c.Record(Sample{ProviderID: "A", TaskType: types.TaskGeneral, Outcome: out, Latency: 10 * time.Millisecond})
	}
}

// degradedHistory leaves A degraded with a rolling success rate of 101/109
// and four consecutive failures.
var degradedHistory = strings.Repeat("S", 100) + "FFFFS" + "FFFF"

func TestCollector_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		outcomes string
		want     types.Status
	}{
		{"no samples", "", types.StatusHealthy},
		{"two failures stay healthy", "FF", types.StatusHealthy},
		{"three failures degrade", "FFF", types.StatusDegraded},
		{"timeouts count as failures", "TTT", types.StatusDegraded},
		{"five consecutive failures mark unavailable", "FFFFF", types.StatusUnavailable},
		{"degraded then three bad windows", "FFFSFFF", types.StatusUnavailable},
		{"alternating degrades", "FSFS", types.StatusDegraded},
		{"alternating ends unavailable", strings.Repeat("FS", 200), types.StatusUnavailable},
		{"one success in three ends unavailable", strings.Repeat("FFS", 200), types.StatusUnavailable},
		{"one failure in twenty stays healthy", strings.Repeat(strings.Repeat("S", 19)+"F", 10), types.StatusHealthy},
		{"isolated failure after long success", strings.Repeat("S", 100) + "F", types.StatusHealthy},
		{"success does not clear a low rolling rate", "FFFSSS", types.StatusUnavailable},
		{"degraded recovers once the rate holds for three windows", degradedHistory + strings.Repeat("S", 53), types.StatusHealthy},
		{"degraded holds while the rate is below recovery", degradedHistory + strings.Repeat("S", 52), types.StatusDegraded},
		{"unavailable recovers once the rate holds for three windows", "FFFFF" + strings.Repeat("S", 97), types.StatusHealthy},
		{"unavailable holds until three windows agree", "FFFFF" + strings.Repeat("S", 96), types.StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, reg, _ := newTestCollector(t, config.HealthConfig{})
			play(c, tt.outcomes)

			if got := c.Status("A"); got != tt.want {
				t.Errorf("Status() after %q = %q, want %q", tt.outcomes, got, tt.want)
			}
			p, _ := reg.Get("A")
			if p.Status() != tt.want {
				t.Errorf("registry status after %q = %q, want %q", tt.outcomes, p.Status(), tt.want)
			}
		})
	}
}

func TestCollector_EvaluationWindow(t *testing.T) {
	c, _, _ := newTestCollector(t, config.HealthConfig{EvaluationWindow: 4, MaxConsecutiveFailures: 100})

	// Three windows of 4 samples; the rolling rate is 0.75 at each close.
	play(c, "FSSS"+"SFSS"+"SSFS")
	if got := c.Status("A"); got != types.StatusDegraded {
		t.Errorf("Status() = %q, want degraded after three windows below 0.95", got)
	}

	// Rolling rate 11/16, 13/20, 15/24 at the next closes, below 0.80.
	play(c, "FFSS"+"FSFS"+"SFFS")
	if got := c.Status("A"); got != types.StatusUnavailable {
		t.Errorf("Status() = %q, want unavailable after three windows below 0.80", got)
	}
}

func TestCollector_IgnoresNonHealthBearingOutcomes(t *testing.T) {
	c, reg, obs := newTestCollector(t, config.HealthConfig{})

	for i := 0; i < 10; i++ {
		c.Record(Sample{ProviderID: "A", Outcome: types.OutcomeRateLimited})
		c.Record(Sample{ProviderID: "A", Outcome: types.OutcomeCredentialError})
		c.Record(Sample{ProviderID: "A", Outcome: types.OutcomeCancelled})
	}

	if got := c.Status("A"); got != types.StatusHealthy {
		t.Errorf("Status() = %q, want healthy", got)
	}
	if st := c.Stats("A"); st.Samples != 0 {
		t.Errorf("Stats().Samples = %d, want 0", st.Samples)
	}
	if p, _ := reg.Get("A"); p.Health.Samples != 0 {
		t.Errorf("published Samples = %d, want 0", p.Health.Samples)
	}
	if obs.attempts[types.OutcomeCancelled] != 10 {
		t.Errorf("observer cancelled = %d, want 10", obs.attempts[types.OutcomeCancelled])
	}
}

func TestCollector_PublishesDerivedView(t *testing.T) {
	c, reg, obs := newTestCollector(t, config.HealthConfig{})

	c.Record(Sample{ProviderID: "A", TaskType: types.TaskCoding, Outcome: types.OutcomeSuccess})
	c.Record(Sample{ProviderID: "A", TaskType: types.TaskCoding, Outcome: types.OutcomeError})
	c.Record(Sample{ProviderID: "A", TaskType: types.TaskGeneral, Outcome: types.OutcomeSuccess})
	c.Record(Sample{ProviderID: "A", Outcome: types.OutcomeSuccess})

	p, _ := reg.Get("A")
	if p.Health.Samples != 4 {
		t.Errorf("Samples = %d, want 4", p.Health.Samples)
	}
	if p.Health.ErrorRate != 0.25 {
		t.Errorf("ErrorRate = %v, want 0.25", p.Health.ErrorRate)
	}
	if got := p.Health.SuccessByTask[types.TaskCoding]; got != 0.5 {
		t.Errorf("SuccessByTask[coding] = %v, want 0.5", got)
	}
	if got := p.Health.SuccessByTask[types.TaskGeneral]; got != 1 {
		t.Errorf("SuccessByTask[general] = %v, want 1", got)
	}
	if len(p.Health.SuccessByTask) != 2 {
		t.Errorf("SuccessByTask = %v, want only task-tagged samples", p.Health.SuccessByTask)
	}
	if len(obs.statuses) != 0 {
		t.Errorf("status changes = %v, want none", obs.statuses)
	}
}

func TestCollector_TransitionListener(t *testing.T) {
	c, _, obs := newTestCollector(t, config.HealthConfig{})

	var got []Transition
	c.OnTransition(func(tr Transition) { got = append(got, tr) })

	play(c, "FFFFF")

	if len(got) != 2 {
		t.Fatalf("transitions = %+v, want 2", got)
	}
	if got[0].To != types.StatusDegraded || got[1].To != types.StatusUnavailable {
		t.Errorf("transitions = %+v, want degraded then unavailable", got)
	}
	if got[1].Reason != "consecutive_failures" {
		t.Errorf("Reason = %q, want consecutive_failures", got[1].Reason)
	}
	if len(obs.statuses) != 2 {
		t.Errorf("observer statuses = %v, want 2", obs.statuses)
	}
}

func TestCollector_WindowBounds(t *testing.T) {
	c, _, _ := newTestCollector(t, config.HealthConfig{WindowSize: 3, WindowDuration: time.Minute})
	now := time.Unix(10_000, 0)
	c.now = func() time.Time { return now }

	play(c, "SSSSS")
	if st := c.Stats("A"); st.Samples != 3 {
		t.Errorf("Stats().Samples = %d, want capped at 3", st.Samples)
	}

	now = now.Add(2 * time.Minute)
	if st := c.Stats("A"); st.Samples != 0 {
		t.Errorf("Stats().Samples = %d, want 0 after window duration", st.Samples)
	}
}

func TestCollector_Stats(t *testing.T) {
	c, _, _ := newTestCollector(t, config.HealthConfig{})
	for i := 1; i <= 100; i++ {
		c.Record(Sample{
			ProviderID: "A",
			Outcome:    types.OutcomeSuccess,
			Latency:    time.Duration(i) * time.Millisecond,
			Cost:       2,
		})
	}

	st := c.Stats("A")
	if st.LatencyP50 != 50*time.Millisecond {
		t.Errorf("LatencyP50 = %v, want 50ms", st.LatencyP50)
	}
	if st.LatencyP95 != 95*time.Millisecond {
		t.Errorf("LatencyP95 = %v, want 95ms", st.LatencyP95)
	}
	if st.LatencyP99 != 99*time.Millisecond {
		t.Errorf("LatencyP99 = %v, want 99ms", st.LatencyP99)
	}
	if st.MeanCost != 2 {
		t.Errorf("MeanCost = %v, want 2", st.MeanCost)
	}
	if st.SuccessRate != 1 {
		t.Errorf("SuccessRate = %v, want 1", st.SuccessRate)
	}
}

func TestCollector_Retain(t *testing.T) {
	c, _, _ := newTestCollector(t, config.HealthConfig{})
	play(c, "FFF")
	c.Record(Sample{ProviderID: "gone", Outcome: types.OutcomeError})

	c.Retain([]string{"A"})

	if got := c.Status("A"); got != types.StatusDegraded {
		t.Errorf("Status(A) = %q, want degraded kept", got)
	}
	if st := c.Stats("gone"); st.Samples != 0 {
		t.Errorf("Stats(gone).Samples = %d, want record dropped", st.Samples)
	}
}
