// Package credentials resolves the per-provider secret the dispatcher
// attaches to each call.
//
// Credentials are looked up by provider id through a chain of sources
// (environment variables, then a directory of secret files) behind a short
// TTL cache. Resolved values live only in memory and are never logged or
// persisted.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"
)

// ErrNotFound is returned when no source holds a credential for a provider.
var ErrNotFound = errors.New("credential not found")

// Store resolves a provider's credential.
type Store interface {
	Get(ctx context.Context, providerID string) (string, error)
}

// Source is one backend in a Chain.
type Source interface {
	Store

	// Name identifies the source in logs ("env", "file").
	Name() string
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Chain tries each source in order and caches the first value found.
type Chain struct {
	sources []Source
	ttl     time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewChain creates a chain over sources. A non-positive ttl disables
// caching.
func NewChain(ttl time.Duration, logger *slog.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		sources: sources,
		ttl:     ttl,
		logger:  logger.With("component", "credentials"),
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the credential for providerID from the cache or the first
// source that has it.
func (c *Chain) Get(ctx context.Context, providerID string) (string, error) {
	if v, ok := c.cached(providerID); ok {
		return v, nil
	}

	var errs []string
	for _, src := range c.sources {
		value, err := src.Get(ctx, providerID)
		if err == nil {
			c.store(providerID, value)
			c.logger.Debug("credential resolved", "provider", providerID, "source", src.Name())
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Sprintf("%s: %v", src.Name(), err))
		}
	}

	if len(errs) > 0 {
		return "", fmt.Errorf("failed to resolve credential for %q: %s", providerID, strings.Join(errs, "; "))
	}
	return "", fmt.Errorf("%w for provider %q", ErrNotFound, providerID)
}

// Clear drops every cached credential.
func (c *Chain) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Close releases source resources such as file watchers.
func (c *Chain) Close() error {
	var errs []error
	for _, src := range c.sources {
		if cl, ok := src.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) cached(id string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *Chain) store(id, value string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// NewFromConfig builds the env and file chain described by cfg. The file
// source is added only when a directory is configured; its changes clear
// the chain cache.
func NewFromConfig(cfg config.CredentialsConfig, logger *slog.Logger) (*Chain, error) {
	sources := []Source{NewEnvStore(cfg.EnvPrefix)}

	var fs *FileStore
	if cfg.Directory != "" {
		var err error
		fs, err = NewFileStore(cfg.Directory, cfg.WatchEnabled(), logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fs)
	}

	chain := NewChain(cfg.CacheTTL, logger, sources...)
	if fs != nil {
		fs.OnChange(chain.Clear)
	}
	return chain, nil
}
