package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/relay/pkg/config"
)

// Pruner deletes events older than the retention window, on demand or on
// a cron schedule.
type Pruner struct {
	storage Storage
	config  config.RetentionConfig
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPruner creates a pruner for storage.
func NewPruner(storage Storage, cfg config.RetentionConfig, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		storage: storage,
		config:  cfg,
		logger:  logger.With("component", "events.retention"),
		now:     time.Now,
	}
}

// Prune deletes events older than the configured number of days and
// returns how many were removed. A non-positive retention keeps everything.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.Days <= 0 {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.config.Days)
	deleted, err := p.storage.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		p.logger.Info("pruned events",
			"deleted_count", deleted,
			"retention_days", p.config.Days,
		)
	} else {
		p.logger.Debug("no events pruned", "retention_days", p.config.Days)
	}
	return deleted, nil
}

// Start schedules Prune. It is a no-op when no schedule is configured or
// retention is disabled. The schedule stops when ctx is done or Stop is
// called.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.config.Schedule == "" || p.config.Days <= 0 {
		p.logger.Info("event retention not scheduled",
			"schedule", p.config.Schedule,
			"retention_days", p.config.Days,
		)
		return nil
	}

	schedule, err := cron.ParseStandard(p.config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.config.Schedule, err)
	}

	p.cron = cron.New()
	p.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled pruning failed", "error", err)
		}
	}))
	p.cron.Start()
	p.running = true

	p.logger.Info("event retention scheduled",
		"schedule", p.config.Schedule,
		"retention_days", p.config.Days,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
	p.logger.Info("event retention stopped")
}

// Running reports whether the schedule is active.
func (p *Pruner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled prune, or nil when not running.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
