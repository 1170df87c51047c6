package events

import (
	"context"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
)

func TestPruner_Prune(t *testing.T) {
	tests := []struct {
		name        string
		days        int
		wantDeleted int64
	}{
		{"seven days", 7, 2},
		{"thirty days", 30, 1},
		{"disabled", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewMemoryStorage(0)
			ctx := context.Background()
			for id, age := range map[string]time.Duration{
				"fresh":  time.Hour,
				"week":   8 * 24 * time.Hour,
				"months": 60 * 24 * time.Hour,
			} {
				if err := storage.Store(ctx, testEvent(id, -age)); err != nil {
					t.Fatal(err)
				}
			}

			p := NewPruner(storage, config.RetentionConfig{Days: tt.days}, nil)
			p.now = func() time.Time { return baseTime }

			deleted, err := p.Prune(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() = %d, want %d", deleted, tt.wantDeleted)
			}
			if storage.Len() != 3-int(tt.wantDeleted) {
				t.Errorf("remaining = %d", storage.Len())
			}
		})
	}
}

func TestPruner_PruneClosedStorage(t *testing.T) {
	storage := NewMemoryStorage(0)
	storage.Close()

	p := NewPruner(storage, config.RetentionConfig{Days: 1}, nil)
	if _, err := p.Prune(context.Background()); err == nil {
		t.Error("Prune() on closed storage succeeded")
	}
}

func TestPruner_Schedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPruner(NewMemoryStorage(0), config.RetentionConfig{Days: 30, Schedule: "0 3 * * *"}, nil)
	if p.NextRun() != nil {
		t.Error("NextRun() before Start should be nil")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !p.Running() {
		t.Fatal("pruner not running after Start")
	}

	next := p.NextRun()
	if next == nil {
		t.Fatal("NextRun() = nil")
	}
	if next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("NextRun() = %v, want 03:00", next)
	}

	p.Stop()
	if p.Running() {
		t.Error("pruner still running after Stop")
	}
	p.Stop()
}

func TestPruner_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPruner(NewMemoryStorage(0), config.RetentionConfig{Days: 1, Schedule: "@hourly"}, nil)
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatal("pruner still running after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPruner_StartErrors(t *testing.T) {
	p := NewPruner(NewMemoryStorage(0), config.RetentionConfig{Days: 1, Schedule: "not a cron"}, nil)
	if err := p.Start(context.Background()); err == nil {
		t.Error("Start() with an invalid schedule succeeded")
	}

	unscheduled := NewPruner(NewMemoryStorage(0), config.RetentionConfig{Days: 1}, nil)
	if err := unscheduled.Start(context.Background()); err != nil || unscheduled.Running() {
		t.Errorf("Start() without schedule = %v, running %v", err, unscheduled.Running())
	}
}
