package events

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps the most recent events in memory. When full, the
// oldest event is dropped.
type MemoryStorage struct {
	mu        sync.RWMutex
	events    []*Event
	maxEvents int
	closed    bool
}

// NewMemoryStorage creates a store holding at most maxEvents events. A
// non-positive maxEvents means unbounded.
func NewMemoryStorage(maxEvents int) *MemoryStorage {
	return &MemoryStorage{maxEvents: maxEvents}
}

// Store implements Storage.
func (s *MemoryStorage) Store(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newStorageError("memory", "store", ErrClosed)
	}
	s.events = append(s.events, cloneEvent(e))
	if s.maxEvents > 0 && len(s.events) > s.maxEvents {
		drop := len(s.events) - s.maxEvents
		clear(s.events[:drop])
		s.events = s.events[drop:]
	}
	return nil
}

// Query implements Storage.
func (s *MemoryStorage) Query(ctx context.Context, q *Query) ([]*Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	matched, err := s.filter(ctx, q)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matched, func(a, b *Event) int {
		if q.Ascending {
			return a.Timestamp.Compare(b.Timestamp)
		}
		return b.Timestamp.Compare(a.Timestamp)
	})

	if q.Offset >= len(matched) {
		return []*Event{}, nil
	}
	matched = matched[q.Offset:]
	if limit := q.limit(); len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*Event, len(matched))
	for i, e := range matched {
		out[i] = cloneEvent(e)
	}
	return out, nil
}

// Count implements Storage.
func (s *MemoryStorage) Count(ctx context.Context, q *Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	matched, err := s.filter(ctx, q)
	return int64(len(matched)), err
}

func (s *MemoryStorage) filter(ctx context.Context, q *Query) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageError("memory", "query", ErrClosed)
	}
	var matched []*Event
	for _, e := range s.events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.matches(e) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// DeleteBefore implements Storage.
func (s *MemoryStorage) DeleteBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, newStorageError("memory", "delete", ErrClosed)
	}
	before := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(e *Event) bool {
		return e.Timestamp.Before(t)
	})
	return int64(before - len(s.events)), nil
}

// Len returns the number of stored events.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Ping implements Storage.
func (s *MemoryStorage) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Storage.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.events = nil
	return nil
}

func cloneEvent(e *Event) *Event {
	c := *e
	c.Attempts = slices.Clone(e.Attempts)
	return &c
}
