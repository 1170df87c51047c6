package providers_test

import (
	"errors"
	"testing"

	testproviders "mercator-hq/relay/internal/providers"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		want    string
		wantErr bool
	}{
		{"simulated", config.ProviderConfig{ID: "a", Type: "simulated"}, "*providers.SimulatedProvider", false},
		{"http", config.ProviderConfig{ID: "b", Type: "http", BaseURL: "http://localhost:1"}, "*providers.HTTPProvider", false},
		{"inferred http", config.ProviderConfig{ID: "c", BaseURL: "http://localhost:1"}, "*providers.HTTPProvider", false},
		{"inferred simulated", config.ProviderConfig{ID: "d"}, "*providers.SimulatedProvider", false},
		{"http without url", config.ProviderConfig{ID: "e", Type: "http"}, "", true},
		{"unknown type", config.ProviderConfig{ID: "f", Type: "grpc"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := providers.New(tt.cfg)
			if tt.wantErr {
				var ce *providers.ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("New() error = %v, want *ConfigError", err)
				}
				return
			}
			testproviders.AssertNoError(t, err)
			if p.ID() != tt.cfg.ID {
				t.Errorf("ID() = %q, want %q", p.ID(), tt.cfg.ID)
			}
			if got := typeName(p); got != tt.want {
				t.Errorf("New() type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(p providers.Provider) string {
	switch p.(type) {
	case *providers.SimulatedProvider:
		return "*providers.SimulatedProvider"
	case *providers.HTTPProvider:
		return "*providers.HTTPProvider"
	}
	return "unknown"
}

func TestManager(t *testing.T) {
	m := providers.NewManager(nil)

	err := m.LoadFromConfig([]config.ProviderConfig{
		testproviders.TestConfig("b", 1, 10, 0.9),
		testproviders.TestConfig("a", 1, 10, 0.9),
	})
	testproviders.AssertNoError(t, err)

	if got := m.IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("IDs() = %v, want [a b]", got)
	}

	m.Add(testproviders.NewFake("c"))
	if _, ok := m.Get("c"); !ok {
		t.Error("Get(c) not found after Add")
	}

	dup := []config.ProviderConfig{testproviders.TestConfig("x", 1, 10, 0.9), testproviders.TestConfig("x", 1, 10, 0.9)}
	if err := m.LoadFromConfig(dup); err == nil {
		t.Error("LoadFromConfig(duplicate) error = nil, want error")
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (failed load leaves set untouched)", m.Len())
	}
}
