package providers

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
)

// SimulatedProvider stands in for a real backend. It sleeps for a
// configured latency plus jitter and fails with a configured probability,
// which is enough to exercise routing, failover and health transitions
// without network access.
type SimulatedProvider struct {
	id          string
	latency     time.Duration
	jitter      time.Duration
	failureRate float64
	cost        float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedProvider creates a simulated provider from configuration.
func NewSimulatedProvider(cfg config.ProviderConfig) *SimulatedProvider {
	latency := cfg.Simulate.LatencyMs
	if latency == 0 {
		latency = cfg.BaselineLatencyMs
	}
	return &SimulatedProvider{
		id:          cfg.ID,
		latency:     time.Duration(latency) * time.Millisecond,
		jitter:      time.Duration(cfg.Simulate.JitterMs) * time.Millisecond,
		failureRate: cfg.Simulate.FailureRate,
		cost:        cfg.CostPerUnit,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// ID returns the provider id.
func (p *SimulatedProvider) ID() string {
	return p.id
}

type simulatedReply struct {
	Provider string `json:"provider"`
	Object   string `json:"object"`
	Content  string `json:"content"`
}

// Invoke waits out the simulated latency and returns an echo of the payload.
func (p *SimulatedProvider) Invoke(ctx context.Context, inv *Invocation) (*Response, error) {
	delay, fail := p.roll()

	start := time.Now()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Provider: p.id, Timeout: inv.Timeout}
		}
		return nil, ctx.Err()
	case <-timer.C:
	}

	if fail {
		return nil, &ProviderError{
			Provider:   p.id,
			StatusCode: http.StatusServiceUnavailable,
			Message:    "simulated failure",
		}
	}

	body, err := json.Marshal(simulatedReply{
		Provider: p.id,
		Object:   "simulation",
		Content:  truncate(string(inv.Payload), 512),
	})
	if err != nil {
		return nil, &ProviderError{Provider: p.id, Message: "failed to encode reply", Cause: err}
	}

	return &Response{Body: body, Latency: time.Since(start), Cost: p.cost}, nil
}

// HealthCheck fails with the configured failure probability.
func (p *SimulatedProvider) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, fail := p.roll(); fail {
		return &ProviderError{Provider: p.id, StatusCode: http.StatusServiceUnavailable, Message: "simulated probe failure"}
	}
	return nil
}

// roll draws the delay and failure outcome for one call.
func (p *SimulatedProvider) roll() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.latency
	if p.jitter > 0 {
		delay += time.Duration(p.rng.Int64N(int64(p.jitter)))
	}
	return delay, p.failureRate > 0 && p.rng.Float64() < p.failureRate
}
