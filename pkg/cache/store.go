package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// item is one serialized entry as held by a store.
type item struct {
	data      []byte
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// store holds serialized entries. Implementations are safe for concurrent
// use.
type store interface {
	get(key string) (item, bool)

	// add stores it and reports whether another entry was evicted to make
	// room.
	add(key string, it item) bool

	remove(key string)
	removeExpired(now time.Time) int
	len() int
	purge()
}

// lruStore caps the entry count, evicting the least recently used entry.
type lruStore struct {
	lru *lru.Cache[string, item]
}

func newLRUStore(size int) (*lruStore, error) {
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &lruStore{lru: c}, nil
}

func (s *lruStore) get(key string) (item, bool) { return s.lru.Get(key) }

func (s *lruStore) add(key string, it item) bool { return s.lru.Add(key, it) }

func (s *lruStore) remove(key string) { s.lru.Remove(key) }

func (s *lruStore) removeExpired(now time.Time) int {
	n := 0
	for _, key := range s.lru.Keys() {
		// Peek leaves recency untouched.
		if it, ok := s.lru.Peek(key); ok && it.expired(now) {
			s.lru.Remove(key)
			n++
		}
	}
	return n
}

func (s *lruStore) len() int { return s.lru.Len() }

func (s *lruStore) purge() { s.lru.Purge() }

// mapStore is unbounded; entries leave only by expiry.
type mapStore struct {
	mu    sync.RWMutex
	items map[string]item
}

func newMapStore() *mapStore {
	return &mapStore{items: make(map[string]item)}
}

func (s *mapStore) get(key string) (item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[key]
	return it, ok
}

func (s *mapStore) add(key string, it item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = it
	return false
}

func (s *mapStore) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

func (s *mapStore) removeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, it := range s.items {
		if it.expired(now) {
			delete(s.items, key)
			n++
		}
	}
	return n
}

func (s *mapStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *mapStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]item)
}
