package cache

import (
	"sync/atomic"
)

// Stats counts cache outcomes. Safe for concurrent use.
type Stats struct {
	hits        atomic.Int64
	misses      atomic.Int64
	shared      atomic.Int64
	corruptions atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Shared      int64 `json:"shared"`
	Corruptions int64 `json:"corruptions"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Entries     int   `json:"entries"`

	// HitRate counts shared results as hits: neither caused a dispatch.
	HitRate float64 `json:"hit_rate"`
}

func (s *Stats) record(o Outcome) {
	switch o {
	case OutcomeHit:
		s.hits.Add(1)
	case OutcomeShared:
		s.shared.Add(1)
	default:
		s.misses.Add(1)
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Shared:      s.shared.Load(),
		Corruptions: s.corruptions.Load(),
		Evictions:   s.evictions.Load(),
		Expirations: s.expirations.Load(),
	}
	if total := snap.Hits + snap.Misses + snap.Shared; total > 0 {
		snap.HitRate = float64(snap.Hits+snap.Shared) / float64(total)
	}
	return snap
}
