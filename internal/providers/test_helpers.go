package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

// TestConfig returns a provider configuration serving general tasks.
func TestConfig(id string, cost float64, baselineMs int64, accuracy float64) config.ProviderConfig {
	return config.ProviderConfig{
		ID:                id,
		Type:              providers.TypeSimulated,
		Capabilities:      []string{"general"},
		CostPerUnit:       cost,
		BaselineLatencyMs: baselineMs,
		Accuracy:          accuracy,
	}
}

// TestConfigWithURL returns an http provider configuration for baseURL.
func TestConfigWithURL(id, baseURL string) config.ProviderConfig {
	cfg := TestConfig(id, 1, 100, 0.8)
	cfg.Type = providers.TypeHTTP
	cfg.BaseURL = baseURL
	cfg.Model = "test-model"
	return cfg
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorIs fails the test unless err matches target.
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error matching %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected error matching %v, got %T: %v", target, err, err)
	}
}

// WithTimeout runs fn with a timeout context and fails the test if fn does
// not return in time.
func WithTimeout(t *testing.T, timeout time.Duration, fn func(ctx context.Context)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		fn(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout + time.Second):
		t.Fatalf("test timeout after %s", timeout)
	}
}
