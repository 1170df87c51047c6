package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/relay/pkg/config"
)

// Pipeline bundles the configured sink with its storage and pruner.
// Storage and Pruner are nil for the "log" backend and when events are
// disabled.
type Pipeline struct {
	Sink     Sink
	Storage  Storage
	Recorder *Recorder
	Pruner   *Pruner
}

// NewPipeline builds the event pipeline described by cfg.
func NewPipeline(cfg config.EventsConfig, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsEnabled() {
		return &Pipeline{Sink: Discard{}}, nil
	}

	backend := cfg.Backend
	if backend == "" {
		backend = config.DefaultEventsBackend
	}

	var storage Storage
	switch backend {
	case "log":
		return &Pipeline{Sink: NewLogSink(logger)}, nil
	case "memory":
		maxEvents := cfg.MaxEvents
		if maxEvents == 0 {
			maxEvents = config.DefaultEventsMaxEvents
		}
		storage = NewMemoryStorage(maxEvents)
	case "sqlite":
		s, err := NewSQLiteStorage(cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		storage = s
	default:
		return nil, fmt.Errorf("unknown events backend %q", backend)
	}

	recorder := NewRecorder(storage, RecorderConfig{
		BufferSize:   cfg.BufferSize,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)

	return &Pipeline{
		Sink:     recorder,
		Storage:  storage,
		Recorder: recorder,
		Pruner:   NewPruner(storage, cfg.Retention, logger),
	}, nil
}

// Start begins scheduled retention when there is storage to prune.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.Pruner == nil {
		return nil
	}
	return p.Pruner.Start(ctx)
}

// Close stops the pruner, drains the recorder and closes storage.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Pruner != nil {
		p.Pruner.Stop()
	}
	if p.Recorder != nil {
		errs = append(errs, p.Recorder.Close())
	}
	if p.Storage != nil {
		errs = append(errs, p.Storage.Close())
	}
	return errors.Join(errs...)
}
