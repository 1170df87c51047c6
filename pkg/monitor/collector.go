// Package monitor owns per-provider health records and derives provider
// status from observed attempt outcomes.
//
// Each provider has a rolling window of recent samples and a set of
// hysteresis counters. Samples are grouped into tumbling evaluation
// windows; when a window closes the rolling success rate is compared
// against the configured thresholds, and a status changes only after K
// consecutive windows agree. N consecutive failed samples mark a provider unavailable
// outright. After every sample the derived view is published to the
// provider registry, which is the only place the router reads it from.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/types"
)

// Sample is one observed provider attempt.
type Sample struct {
	ProviderID string
	TaskType   types.TaskType
	Outcome    types.Outcome
	Latency    time.Duration
	Cost       float64

	// At defaults to the time Record is called.
	At time.Time
}

// Publisher receives derived health. *registry.Registry implements it.
type Publisher interface {
	UpdateStatus(id string, status types.Status) error
	PublishHealth(id string, health registry.Health) error
}

// Observer receives every sample and status change, typically a metrics
// exporter.
type Observer interface {
	ObserveAttempt(provider string, outcome types.Outcome, latency time.Duration, cost float64)
	SetProviderStatus(provider string, status types.Status)
}

// Transition describes a status change.
type Transition struct {
	ProviderID string
	From       types.Status
	To         types.Status
	Reason     string
	At         time.Time
}

// record is the health record of one provider.
type record struct {
	mu     sync.Mutex
	window *window
	status types.Status

	consecutiveFailures int

	// samples in the current tumbling evaluation window
	evalSamples int

	// belowStreak counts closed windows under the threshold for the next
	// worse status; aboveStreak counts windows at or above RecoveredAt.
	belowStreak int
	aboveStreak int
}

// Collector records samples and drives status transitions.
type Collector struct {
	cfg       config.HealthConfig
	publisher Publisher
	observer  Observer
	logger    *slog.Logger

	mu      sync.RWMutex
	records map[string]*record

	listenersMu sync.RWMutex
	listeners   []func(Transition)

	now func() time.Time
}

// NewCollector creates a collector publishing into publisher. The observer
// may be nil.
func NewCollector(cfg config.HealthConfig, publisher Publisher, observer Observer, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyHealthDefaults(&cfg)
	return &Collector{
		cfg:       cfg,
		publisher: publisher,
		observer:  observer,
		logger:    logger.With("component", "monitor"),
		records:   make(map[string]*record),
		now:       time.Now,
	}
}

// OnTransition registers fn to be called after every status change.
func (c *Collector) OnTransition(fn func(Transition)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.listeners = append(c.listeners, fn)
}

// Record adds a sample. Outcomes that are not health-bearing (rate limits,
// credential failures, cancellations) are passed to the observer but leave
// the health record untouched.
func (c *Collector) Record(s Sample) {
	if s.At.IsZero() {
		s.At = c.now()
	}
	if c.observer != nil {
		c.observer.ObserveAttempt(s.ProviderID, s.Outcome, s.Latency, s.Cost)
	}
	if !s.Outcome.HealthBearing() {
		return
	}

	rec := c.record(s.ProviderID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	failed := s.Outcome.Failed()
	rec.window.expire(s.At)
	rec.window.add(sample{at: s.At, task: s.TaskType, failed: failed, latency: s.Latency, cost: s.Cost})

	from := rec.status
	reason := c.evaluate(rec, failed)

	if rec.status != from {
		c.transition(s.ProviderID, from, rec.status, reason, s.At)
	}
	c.publish(s.ProviderID, rec, s.At)
}

// evaluate applies one sample to the hysteresis counters and returns the
// reason for a status change, if any.
func (c *Collector) evaluate(rec *record, failed bool) string {
	if failed {
		rec.consecutiveFailures++
	} else {
		rec.consecutiveFailures = 0
	}

	if rec.status != types.StatusUnavailable && rec.consecutiveFailures >= c.cfg.MaxConsecutiveFailures {
		rec.setStatus(types.StatusUnavailable)
		return "consecutive_failures"
	}

	rec.evalSamples++
	if rec.evalSamples < c.cfg.EvaluationWindow {
		return ""
	}
	rec.evalSamples = 0

	rate := rec.window.successRate()

	k := c.cfg.ConsecutiveWindows

	switch rec.status {
	case types.StatusHealthy:
		rec.belowStreak = streak(rec.belowStreak, rate < c.cfg.DegradedBelow)
		if rec.belowStreak >= k {
			rec.setStatus(types.StatusDegraded)
			return "success_rate_below_degraded"
		}

	case types.StatusDegraded:
		rec.belowStreak = streak(rec.belowStreak, rate < c.cfg.UnavailableBelow)
		rec.aboveStreak = streak(rec.aboveStreak, rate >= c.cfg.RecoveredAt)
		if rec.belowStreak >= k {
			rec.setStatus(types.StatusUnavailable)
			return "success_rate_below_unavailable"
		}
		if rec.aboveStreak >= k {
			rec.setStatus(types.StatusHealthy)
			return "recovered"
		}

	case types.StatusUnavailable:
		rec.aboveStreak = streak(rec.aboveStreak, rate >= c.cfg.RecoveredAt)
		if rec.aboveStreak >= k {
			rec.setStatus(types.StatusHealthy)
			return "recovered"
		}
	}
	return ""
}

func streak(n int, hit bool) int {
	if hit {
		return n + 1
	}
	return 0
}

// setStatus moves to status and resets the window streaks.
func (r *record) setStatus(status types.Status) {
	r.status = status
	r.belowStreak, r.aboveStreak = 0, 0
	r.evalSamples = 0
}

func (c *Collector) transition(id string, from, to types.Status, reason string, at time.Time) {
	level := slog.LevelWarn
	if to == types.StatusHealthy {
		level = slog.LevelInfo
	}
	c.logger.Log(context.Background(), level, "provider status changed",
		"provider", id,
		"from", from,
		"to", to,
		"reason", reason,
	)

	if err := c.publisher.UpdateStatus(id, to); err != nil && !errors.Is(err, registry.ErrProviderNotFound) {
		c.logger.Error("failed to update provider status", "provider", id, "error", err)
	}
	if c.observer != nil {
		c.observer.SetProviderStatus(id, to)
	}

	c.listenersMu.RLock()
	listeners := c.listeners
	c.listenersMu.RUnlock()

	t := Transition{ProviderID: id, From: from, To: to, Reason: reason, At: at}
	for _, fn := range listeners {
		fn(t)
	}
}

func (c *Collector) publish(id string, rec *record, at time.Time) {
	st := rec.window.stats()
	err := c.publisher.PublishHealth(id, registry.Health{
		Status:        rec.status,
		ErrorRate:     st.ErrorRate,
		SuccessByTask: st.SuccessByTask,
		Samples:       st.Samples,
		UpdatedAt:     at,
	})
	if err != nil {
		if errors.Is(err, registry.ErrProviderNotFound) {
			c.logger.Debug("sample for unregistered provider", "provider", id)
			return
		}
		c.logger.Error("failed to publish provider health", "provider", id, "error", err)
	}
}

func (c *Collector) record(id string) *record {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if ok {
		return rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[id]; ok {
		return rec
	}
	rec = &record{
		window: newWindow(c.cfg.WindowSize, c.cfg.WindowDuration),
		status: types.StatusHealthy,
	}
	c.records[id] = rec
	return rec
}

// Status returns the collector's view of a provider's status. Providers
// without samples are healthy.
func (c *Collector) Status(id string) types.Status {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if !ok {
		return types.StatusHealthy
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status
}

// Stats returns the rolling window summary for a provider.
func (c *Collector) Stats(id string) Stats {
	c.mu.RLock()
	rec, ok := c.records[id]
	c.mu.RUnlock()
	if !ok {
		return Stats{}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.window.expire(c.now())
	return rec.window.stats()
}

// Retain drops the records of providers not in ids, after a config reload
// removed them.
func (c *Collector) Retain(ids []string) {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.records {
		if !keep[id] {
			delete(c.records, id)
		}
	}
}
