package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RecorderConfig contains configuration for the async recorder.
type RecorderConfig struct {
	// BufferSize is the queue length between Emit and the storage writer.
	BufferSize int

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration
}

// RecorderStats are cumulative recorder counters.
type RecorderStats struct {
	Emitted int64 `json:"emitted"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Pending int   `json:"pending"`
}

// Recorder is a Sink that writes events to a Storage from a background
// worker. Emit never blocks: when the queue is full the event is dropped
// and counted.
type Recorder struct {
	storage Storage
	config  RecorderConfig
	queue   chan *Event
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	emitted atomic.Int64
	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder starts a recorder writing to storage.
func NewRecorder(storage Storage, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		queue:   make(chan *Event, cfg.BufferSize),
		done:    make(chan struct{}),
		logger:  logger.With("component", "events.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("event recorder started",
		"buffer_size", cfg.BufferSize,
		"write_timeout", cfg.WriteTimeout,
	)
	return r
}

// Emit implements Sink. Missing ID and Timestamp are filled in.
func (r *Recorder) Emit(e Event) {
	r.emitted.Add(1)
	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	select {
	case r.queue <- &e:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("event queue full, dropping event",
			"request_id", e.RequestID,
			"queue_capacity", r.config.BufferSize,
			"dropped_total", n,
		)
	}
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Emitted: r.emitted.Load(),
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Pending: len(r.queue),
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
// It does not close the underlying storage.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()

		stats := r.Stats()
		r.logger.Info("event recorder stopped",
			"written", stats.Written,
			"dropped", stats.Dropped,
			"failed", stats.Failed,
		)
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.done:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, e); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to store event",
			"event_id", e.ID,
			"request_id", e.RequestID,
			"error", err,
		)
		return
	}
	r.written.Add(1)

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow event write",
			"event_id", e.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
