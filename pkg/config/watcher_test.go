package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	w := NewWatcher(path, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	updated := strings.Replace(minimalYAML, "cost_per_unit: 2", "cost_per_unit: 7", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if got := cfg.Providers[1].CostPerUnit; got != 7 {
			t.Errorf("reloaded CostPerUnit = %v, want 7", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	w := NewWatcher(path, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	go func() {
		_ = w.Watch(ctx, func(*Config) { called <- struct{}{} })
	}()
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("providers: []\n"), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case <-called:
		t.Fatal("onReload called for invalid configuration")
	case <-time.After(300 * time.Millisecond):
	}
}
