package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/types"
)

// blockingStorage holds every Store until release is closed.
type blockingStorage struct {
	*MemoryStorage
	release chan struct{}
}

func (b *blockingStorage) Store(ctx context.Context, e *Event) error {
	<-b.release
	return b.MemoryStorage.Store(ctx, e)
}

type failingStorage struct{ *MemoryStorage }

func (failingStorage) Store(context.Context, *Event) error {
	return errors.New("disk full")
}

func TestRecorder_WritesAndDrainsOnClose(t *testing.T) {
	storage := NewMemoryStorage(0)
	r := NewRecorder(storage, RecorderConfig{BufferSize: 100}, nil)

	for i := 0; i < 50; i++ {
		r.Emit(Event{RequestID: "req", TaskType: types.TaskGeneral, Outcome: OutcomeSuccess})
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if storage.Len() != 50 {
		t.Errorf("stored %d events, want 50", storage.Len())
	}
	stats := r.Stats()
	if stats.Emitted != 50 || stats.Written != 50 || stats.Dropped != 0 || stats.Pending != 0 {
		t.Errorf("Stats() = %+v", stats)
	}

	got, _ := storage.Query(context.Background(), &Query{})
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Errorf("ID and Timestamp not filled: %+v", got[0])
	}
}

func TestRecorder_EmitNeverBlocks(t *testing.T) {
	storage := &blockingStorage{MemoryStorage: NewMemoryStorage(0), release: make(chan struct{})}
	r := NewRecorder(storage, RecorderConfig{BufferSize: 2}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			r.Emit(Event{RequestID: "req"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	close(storage.release)
	r.Close()

	stats := r.Stats()
	if stats.Dropped == 0 {
		t.Errorf("expected drops with a full queue, got %+v", stats)
	}
	if stats.Written+stats.Dropped != 20 {
		t.Errorf("written %d + dropped %d != 20", stats.Written, stats.Dropped)
	}
}

func TestRecorder_StoreFailureCounted(t *testing.T) {
	r := NewRecorder(failingStorage{NewMemoryStorage(0)}, RecorderConfig{}, nil)
	r.Emit(Event{RequestID: "req"})
	r.Close()

	if stats := r.Stats(); stats.Failed != 1 || stats.Written != 0 {
		t.Errorf("Stats() = %+v, want one failure", stats)
	}
}

func TestRecorder_EmitAfterClose(t *testing.T) {
	storage := NewMemoryStorage(0)
	r := NewRecorder(storage, RecorderConfig{}, nil)
	r.Close()
	r.Close()

	r.Emit(Event{RequestID: "late"})
	if storage.Len() != 0 {
		t.Error("event stored after Close")
	}
	if r.Stats().Dropped != 1 {
		t.Errorf("late event not counted as dropped: %+v", r.Stats())
	}
}

func TestRecorder_ConcurrentEmit(t *testing.T) {
	storage := NewMemoryStorage(0)
	r := NewRecorder(storage, RecorderConfig{BufferSize: 1000}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Emit(Event{RequestID: "req"})
			}
		}()
	}
	wg.Wait()
	r.Close()

	if storage.Len() != 500 {
		t.Errorf("stored %d events, want 500", storage.Len())
	}
}

func TestLogSink(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewLogSink(slog.New(slog.NewJSONHandler(buf, nil)))

	sink.Emit(*testEvent("ok", 0))
	failed := testEvent("bad", 0)
	failed.Outcome = OutcomeBudgetExceeded
	failed.Error = "budget exceeded"
	sink.Emit(*failed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"INFO"`) || !strings.Contains(lines[0], `"selected_provider":"alpha"`) {
		t.Errorf("success line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"WARN"`) || !strings.Contains(lines[1], `"error":"budget exceeded"`) {
		t.Errorf("failure line = %s", lines[1])
	}
}

func TestFanout(t *testing.T) {
	a, b := NewMemoryStorage(0), NewMemoryStorage(0)
	ra := NewRecorder(a, RecorderConfig{}, nil)
	rb := NewRecorder(b, RecorderConfig{}, nil)

	Fanout{ra, rb, Discard{}}.Emit(Event{RequestID: "req"})
	ra.Close()
	rb.Close()

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("fanout delivered %d and %d events", a.Len(), b.Len())
	}
}
