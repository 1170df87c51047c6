// Package registry holds the provider metadata the router scores against.
//
// Reads are lock-free: every read loads an immutable snapshot through an
// atomic pointer, so a concurrent status update can never block or corrupt
// an in-flight read. Writers build a new snapshot under a mutex and swap it
// in. Only the metrics collector writes health; static metadata changes only
// through Replace on configuration reload.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

var (
	// ErrProviderNotFound is returned when an id is not registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrDuplicateProvider is returned when two providers share an id.
	ErrDuplicateProvider = errors.New("duplicate provider id")
)

// Health is the derived health view published by the metrics collector.
// Maps are treated as immutable once published.
type Health struct {
	Status types.Status `json:"status"`

	// ErrorRate is the failure share of the rolling window.
	ErrorRate float64 `json:"error_rate"`

	// SuccessByTask is the rolling success rate per task type. Task types
	// without samples are absent.
	SuccessByTask map[types.TaskType]float64 `json:"success_by_task,omitempty"`

	// Samples is the number of samples in the rolling window.
	Samples int `json:"samples"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ModelProvider is one backend provider as seen by the router.
type ModelProvider struct {
	ID                string        `json:"id"`
	Capabilities      []string      `json:"capabilities"`
	CostPerUnit       float64       `json:"cost_per_unit"`
	BaselineLatency   time.Duration `json:"baseline_latency"`
	Accuracy          float64       `json:"accuracy"`
	QuantizationLevel string        `json:"quantization_level,omitempty"`
	Health            Health        `json:"health"`
}

// Status returns the provider's current status.
func (p ModelProvider) Status() types.Status {
	return p.Health.Status
}

// Has reports whether the provider carries the capability tag.
func (p ModelProvider) Has(tag string) bool {
	return slices.Contains(p.Capabilities, tag)
}

// Serves reports whether the provider can serve the task type.
func (p ModelProvider) Serves(task types.TaskType) bool {
	return p.Has(string(task.Normalize()))
}

// FromConfig converts provider configuration into registry entries. Every
// provider starts healthy.
func FromConfig(cfgs []config.ProviderConfig) []ModelProvider {
	out := make([]ModelProvider, 0, len(cfgs))
	for _, c := range cfgs {
		caps := slices.Clone(c.Capabilities)
		slices.Sort(caps)
		out = append(out, ModelProvider{
			ID:                c.ID,
			Capabilities:      slices.Compact(caps),
			CostPerUnit:       c.CostPerUnit,
			BaselineLatency:   c.BaselineLatency(),
			Accuracy:          c.Accuracy,
			QuantizationLevel: c.QuantizationLevel,
			Health:            Health{Status: types.StatusHealthy},
		})
	}
	return out
}

type snapshot struct {
	byID map[string]ModelProvider
	ids  []string
}

func newSnapshot(providers []ModelProvider) (*snapshot, error) {
	s := &snapshot{
		byID: make(map[string]ModelProvider, len(providers)),
		ids:  make([]string, 0, len(providers)),
	}
	for _, p := range providers {
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateProvider, p.ID)
		}
		if p.Health.Status == "" {
			p.Health.Status = types.StatusHealthy
		}
		s.byID[p.ID] = p
		s.ids = append(s.ids, p.ID)
	}
	slices.Sort(s.ids)
	return s, nil
}

// clone copies the index so a writer can modify it before swapping.
func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		byID: make(map[string]ModelProvider, len(s.byID)),
		ids:  s.ids,
	}
	for id, p := range s.byID {
		c.byID[id] = p
	}
	return c
}

// Registry is a typed, swappable provider collection.
type Registry struct {
	current atomic.Pointer[snapshot]

	// mu serializes writers; readers never take it.
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a registry holding providers.
func New(providers []ModelProvider, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := newSnapshot(providers)
	if err != nil {
		return nil, err
	}
	r := &Registry{logger: logger.With("component", "registry")}
	r.current.Store(s)
	return r, nil
}

// Candidates returns the providers carrying the capability tag for task,
// in id order. Status is not filtered here; unclassified is treated as
// general.
func (r *Registry) Candidates(task types.TaskType) []ModelProvider {
	s := r.current.Load()
	out := make([]ModelProvider, 0, len(s.ids))
	for _, id := range s.ids {
		if p := s.byID[id]; p.Serves(task) {
			out = append(out, p)
		}
	}
	return out
}

// All returns every provider in id order.
func (r *Registry) All() []ModelProvider {
	s := r.current.Load()
	out := make([]ModelProvider, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id])
	}
	return out
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (ModelProvider, bool) {
	p, ok := r.current.Load().byID[id]
	return p, ok
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.current.Load().ids)
}

// UpdateStatus sets the status of a provider, leaving the rest of its
// health view unchanged.
func (r *Registry) UpdateStatus(id string, status types.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return r.update(id, func(h *Health) { h.Status = status })
}

// PublishHealth replaces the derived health view of a provider.
func (r *Registry) PublishHealth(id string, health Health) error {
	if !health.Status.Valid() {
		return fmt.Errorf("invalid status %q", health.Status)
	}
	return r.update(id, func(h *Health) { *h = health })
}

func (r *Registry) update(id string, fn func(*Health)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	p, ok := old.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrProviderNotFound, id)
	}

	next := old.clone()
	fn(&p.Health)
	next.byID[id] = p
	r.current.Store(next)
	return nil
}

// Replace swaps in a new provider set. Providers whose id survives keep
// their health view; new providers start healthy.
func (r *Registry) Replace(providers []ModelProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	merged := make([]ModelProvider, len(providers))
	for i, p := range providers {
		if prev, ok := old.byID[p.ID]; ok {
			p.Health = prev.Health
		}
		merged[i] = p
	}

	next, err := newSnapshot(merged)
	if err != nil {
		return err
	}
	r.current.Store(next)

	r.logger.Info("provider registry replaced", "providers", len(next.ids))
	return nil
}
