package providers

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"mercator-hq/relay/pkg/config"
)

// Provider types accepted in configuration.
const (
	TypeHTTP      = "http"
	TypeSimulated = "simulated"
)

// New creates a provider from its configuration.
func New(cfg config.ProviderConfig) (Provider, error) {
	typ := cfg.Type
	if typ == "" {
		typ = TypeSimulated
		if cfg.BaseURL != "" {
			typ = TypeHTTP
		}
	}

	switch typ {
	case TypeHTTP:
		return NewHTTPProvider(cfg)
	case TypeSimulated:
		return NewSimulatedProvider(cfg), nil
	default:
		return nil, &ConfigError{
			Provider: cfg.ID,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type %q (supported: http, simulated)", typ),
		}
	}
}

// Manager holds the live provider instances keyed by id. It is safe for
// concurrent use; LoadFromConfig swaps the whole set on config reload.
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		logger:    logger.With("component", "providers"),
	}
}

// LoadFromConfig builds every configured provider and replaces the current
// set. On error the current set is left untouched.
func (m *Manager) LoadFromConfig(cfgs []config.ProviderConfig) error {
	next := make(map[string]Provider, len(cfgs))
	for _, c := range cfgs {
		if _, dup := next[c.ID]; dup {
			return &ConfigError{Provider: c.ID, Field: "id", Message: "duplicate provider id"}
		}
		p, err := New(c)
		if err != nil {
			return fmt.Errorf("failed to create provider %q: %w", c.ID, err)
		}
		next[c.ID] = p
	}

	m.mu.Lock()
	m.providers = next
	m.mu.Unlock()

	m.logger.Info("providers loaded", "count", len(next))
	return nil
}

// Add registers a provider instance, replacing any with the same id.
func (m *Manager) Add(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.providers[p.ID()]; ok {
		m.logger.Warn("replacing existing provider", "provider", p.ID())
	}
	m.providers[p.ID()] = p
}

// Get returns the provider with the given id.
func (m *Manager) Get(id string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[id]
	return p, ok
}

// IDs returns the registered provider ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered providers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.providers)
}
