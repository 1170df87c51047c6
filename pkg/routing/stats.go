package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/types"
)

// Stats tracks routing decisions with atomic counters. Safe for concurrent
// use.
type Stats struct {
	decisions   atomic.Int64
	noCandidate atomic.Int64
	overrides   atomic.Int64

	// candidateSum accumulates chain lengths for the average.
	candidateSum atomic.Int64

	perTier     sync.Map // map[types.Tier]*atomic.Int64
	perProvider sync.Map // map[string]*atomic.Int64

	// mu protects lastResetTime
	mu            sync.RWMutex
	lastResetTime time.Time
}

// NewStats creates an empty statistics tracker.
func NewStats() *Stats {
	return &Stats{lastResetTime: time.Now()}
}

func (s *Stats) recordDecision(d *RoutingDecision) {
	s.decisions.Add(1)
	s.candidateSum.Add(int64(len(d.Candidates)))
	if d.Objective != d.RequestedObjective {
		s.overrides.Add(1)
	}
	increment(&s.perTier, d.Tier)
	increment(&s.perProvider, d.Candidates[0].ProviderID)
}

func (s *Stats) recordNoCandidate() {
	s.noCandidate.Add(1)
}

func increment[K comparable](m *sync.Map, key K) {
	val, _ := m.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Decisions   int64 `json:"decisions"`
	NoCandidate int64 `json:"no_candidate"`

	// ObjectiveOverrides counts decisions re-scored for accuracy because
	// of their tier.
	ObjectiveOverrides int64 `json:"objective_overrides"`

	AverageCandidates float64              `json:"average_candidates"`
	PerTier           map[types.Tier]int64 `json:"per_tier"`

	// PerProvider counts how often each provider headed the chain.
	PerProvider map[string]int64 `json:"per_provider"`

	LastResetTime time.Time `json:"last_reset_time"`
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatsSnapshot{
		Decisions:          s.decisions.Load(),
		NoCandidate:        s.noCandidate.Load(),
		ObjectiveOverrides: s.overrides.Load(),
		PerTier:            make(map[types.Tier]int64),
		PerProvider:        make(map[string]int64),
		LastResetTime:      s.lastResetTime,
	}
	if snap.Decisions > 0 {
		snap.AverageCandidates = float64(s.candidateSum.Load()) / float64(snap.Decisions)
	}
	s.perTier.Range(func(key, value any) bool {
		snap.PerTier[key.(types.Tier)] = value.(*atomic.Int64).Load()
		return true
	})
	s.perProvider.Range(func(key, value any) bool {
		snap.PerProvider[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return snap
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.decisions.Store(0)
	s.noCandidate.Store(0)
	s.overrides.Store(0)
	s.candidateSum.Store(0)
	s.perTier.Clear()
	s.perProvider.Clear()

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
