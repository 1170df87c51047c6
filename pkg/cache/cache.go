// Package cache stores successful provider responses keyed by request
// fingerprint and collapses concurrent identical requests into one
// computation.
//
// Entries are held JSON-encoded in an LRU-capped (or unbounded) store and
// expire after a per-task TTL. Concurrent callers for the same fingerprint
// share a single in-flight computation that runs under its own context: it
// survives any one caller going away and is cancelled only after every
// waiter has left. A panic inside the computation is returned to every
// waiter as an error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

// ErrComputePanic is returned to every waiter of a computation that
// panicked.
var ErrComputePanic = errors.New("cache: computation panicked")

// Outcome says how a GetOrCompute call was served.
type Outcome string

const (
	// OutcomeHit was served from the store.
	OutcomeHit Outcome = "hit"

	// OutcomeMiss ran the computation.
	OutcomeMiss Outcome = "miss"

	// OutcomeShared waited on a computation started by another caller.
	OutcomeShared Outcome = "shared"
)

// Key identifies a cacheable request.
type Key struct {
	Fingerprint string
	TaskType    types.TaskType
}

// Entry is a cached provider response. Entries handed to callers are
// copies and may be modified freely.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Payload     []byte    `json:"payload"`
	Cost        float64   `json:"cost"`
	ProviderID  string    `json:"provider_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}

// ComputeFunc produces the entry for a miss. Only entries returned with a
// nil error are stored.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// flight tracks the waiters of one in-progress computation.
type flight struct {
	key    string
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// Cache is a single-flight response cache. The zero value is not usable;
// create one with New.
type Cache struct {
	enabled bool
	ttl     time.Duration
	ttlTask map[types.TaskType]time.Duration

	store  store
	group  singleflight.Group
	stats  Stats
	logger *slog.Logger
	now    func() time.Time

	flightsMu sync.Mutex
	flights   map[string]*flight

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a cache and starts its janitor. Close stops the janitor.
func New(cfg config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyCacheDefaults(&cfg)

	var st store = newMapStore()
	if *cfg.MaxEntries > 0 {
		lst, err := newLRUStore(*cfg.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU store: %w", err)
		}
		st = lst
	}

	c := &Cache{
		enabled: cfg.IsEnabled(),
		ttl:     cfg.DefaultTTL,
		ttlTask: cfg.TTLByTask,
		store:   st,
		logger:  logger.With("component", "cache"),
		now:     time.Now,
		flights: make(map[string]*flight),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if c.enabled && cfg.CleanupInterval > 0 {
		go c.janitor(cfg.CleanupInterval)
	} else {
		close(c.doneCh)
	}
	return c, nil
}

// Enabled reports whether responses are cached.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// TTL returns the time-to-live applied to entries of a task type. A
// negative value means the task type is never stored.
func (c *Cache) TTL(task types.TaskType) time.Duration {
	if ttl, ok := c.ttlTask[task.Normalize()]; ok && ttl != 0 {
		return ttl
	}
	return c.ttl
}

// GetOrCompute returns the cached entry for key, or runs compute once for
// all concurrent callers with the same fingerprint and stores a successful
// result.
//
// A caller whose ctx ends while waiting gets ctx.Err(); the computation
// keeps running for the remaining waiters.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) (*Entry, Outcome, error) {
	if !c.enabled {
		e, err := c.run(ctx, compute)
		c.stats.record(OutcomeMiss)
		return e, OutcomeMiss, err
	}

	if e, ok := c.lookup(key.Fingerprint); ok {
		c.stats.record(OutcomeHit)
		return e, OutcomeHit, nil
	}
	return c.await(ctx, key, compute)
}

// await joins or starts the flight for key. A flight that finds the entry
// already stored returns it without computing.
func (c *Cache) await(ctx context.Context, key Key, compute ComputeFunc) (*Entry, Outcome, error) {
	f := c.join(ctx, key.Fingerprint)
	leader, stored := false, false
	ch := c.group.DoChan(key.Fingerprint, func() (any, error) {
		leader = true
		defer c.finish(f)

		// An earlier flight may have stored the entry after our lookup.
		if e, ok := c.lookup(key.Fingerprint); ok {
			stored = true
			return e, nil
		}

		e, err := c.run(f.ctx, compute)
		if err == nil && e != nil {
			e = c.put(key, e)
		}
		return e, err
	})

	select {
	case res := <-ch:
		c.release(f)

		outcome := OutcomeShared
		switch {
		case leader && stored:
			outcome = OutcomeHit
		case leader:
			outcome = OutcomeMiss
		}
		c.stats.record(outcome)

		if res.Err != nil {
			return nil, outcome, res.Err
		}
		e, _ := res.Val.(*Entry)
		if e != nil {
			e = e.clone()
		}
		return e, outcome, nil

	case <-ctx.Done():
		c.release(f)
		return nil, OutcomeMiss, ctx.Err()
	}
}

// run calls compute and converts a panic into ErrComputePanic.
func (c *Cache) run(ctx context.Context, compute ComputeFunc) (e *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cache computation panicked", "panic", r)
			e, err = nil, fmt.Errorf("%w: %v", ErrComputePanic, r)
		}
	}()
	return compute(ctx)
}

// join registers the caller as a waiter on the flight for fp, creating it
// if none is in progress. The flight context keeps the values of the
// creating caller but not its cancellation.
func (c *Cache) join(ctx context.Context, fp string) *flight {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	f, ok := c.flights[fp]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: fp, ctx: fctx, cancel: cancel}
		c.flights[fp] = f
	}
	f.refs++
	return f
}

// release drops one waiter. The last waiter out cancels the flight and
// makes the next caller start a fresh computation.
func (c *Cache) release(f *flight) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	f.refs--
	if f.refs > 0 {
		return
	}
	f.cancel()
	if c.flights[f.key] == f {
		delete(c.flights, f.key)
		c.group.Forget(f.key)
	}
}

// finish unregisters a completed flight so later callers read the store.
func (c *Cache) finish(f *flight) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	if c.flights[f.key] == f {
		delete(c.flights, f.key)
	}
}

func (c *Cache) lookup(fp string) (*Entry, bool) {
	it, ok := c.store.get(fp)
	if !ok {
		return nil, false
	}
	if it.expired(c.now()) {
		c.store.remove(fp)
		c.stats.expirations.Add(1)
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(it.data, &e); err != nil {
		c.store.remove(fp)
		c.stats.corruptions.Add(1)
		c.logger.Warn("evicted corrupt cache entry", "fingerprint", fp, "error", err)
		return nil, false
	}
	return &e, true
}

// put stamps and stores e, returning the stamped entry.
func (c *Cache) put(key Key, e *Entry) *Entry {
	ttl := c.TTL(key.TaskType)
	now := c.now()

	stored := e.clone()
	stored.Fingerprint = key.Fingerprint
	stored.CreatedAt = now
	if ttl < 0 {
		return stored
	}
	stored.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(stored)
	if err != nil {
		c.logger.Error("failed to encode cache entry", "fingerprint", key.Fingerprint, "error", err)
		return stored
	}
	if c.store.add(key.Fingerprint, item{data: data, expiresAt: stored.ExpiresAt}) {
		c.stats.evictions.Add(1)
	}
	return stored
}

// Len returns the number of stored entries, expired ones included until
// the janitor runs.
func (c *Cache) Len() int {
	return c.store.len()
}

// Purge drops every stored entry. In-flight computations are unaffected.
func (c *Cache) Purge() {
	c.store.purge()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() StatsSnapshot {
	snap := c.stats.Snapshot()
	snap.Entries = c.store.len()
	return snap
}

func (c *Cache) janitor(interval time.Duration) {
	defer close(c.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if n := c.store.removeExpired(c.now()); n > 0 {
				c.stats.expirations.Add(int64(n))
				c.logger.Debug("removed expired cache entries", "count", n)
			}
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
	return nil
}
