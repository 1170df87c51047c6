package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/types"
)

// maxConcurrentProbes bounds probe fan-out per round.
const maxConcurrentProbes = 8

// ProviderLookup resolves live provider instances by id.
type ProviderLookup interface {
	Get(id string) (providers.Provider, bool)
}

// Prober periodically probes degraded and unavailable providers so that a
// provider excluded from routing still produces samples and can recover.
// Probe results are recorded like any other attempt.
type Prober struct {
	collector *Collector
	registry  *registry.Registry
	providers ProviderLookup
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewProber creates a prober using the collector's probe settings.
func NewProber(collector *Collector, reg *registry.Registry, lookup ProviderLookup, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		collector: collector,
		registry:  reg,
		providers: lookup,
		interval:  collector.cfg.ProbeInterval,
		timeout:   collector.cfg.ProbeTimeout,
		logger:    logger.With("component", "prober"),
	}
}

// Run probes every interval until ctx is cancelled. It returns immediately
// when probing is disabled.
func (p *Prober) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("provider probing disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("provider prober started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("provider prober stopped")
			return
		case <-ticker.C:
			if n := p.ProbeOnce(ctx); n > 0 {
				p.logger.Debug("probe round complete", "probed", n)
			}
		}
	}
}

// ProbeOnce probes every non-healthy provider that supports health checks
// and returns how many were probed.
func (p *Prober) ProbeOnce(ctx context.Context) int {
	var targets []providers.HealthChecker
	var ids []string
	for _, mp := range p.registry.All() {
		if mp.Status() == types.StatusHealthy {
			continue
		}
		prov, ok := p.providers.Get(mp.ID)
		if !ok {
			continue
		}
		hc, ok := prov.(providers.HealthChecker)
		if !ok {
			continue
		}
		targets = append(targets, hc)
		ids = append(ids, mp.ID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i := range targets {
		hc, id := targets[i], ids[i]
		g.Go(func() error {
			p.probe(gctx, id, hc)
			return nil
		})
	}
	_ = g.Wait()
	return len(targets)
}

func (p *Prober) probe(ctx context.Context, id string, hc providers.HealthChecker) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := hc.HealthCheck(pctx)
	latency := time.Since(start)

	outcome := types.OutcomeSuccess
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// Shutting down; not the provider's fault.
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, providers.ErrTimeout):
		outcome = types.OutcomeTimeout
	default:
		outcome = types.OutcomeError
	}

	if err != nil {
		p.logger.Debug("probe failed", "provider", id, "error", err)
	}
	p.collector.Record(Sample{ProviderID: id, Outcome: outcome, Latency: latency})
}
