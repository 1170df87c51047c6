// Package notify delivers NOTIFY and BLOCK routing escalations to an
// approval channel.
//
// Escalations are informational. The router dispatches regardless of the
// tier and never waits for a delivery; Async sends them from background
// goroutines with a bounded timeout.
package notify

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

// Escalation describes a routing decision whose confidence fell below the
// AUTO tier.
type Escalation struct {
	RequestID         string          `json:"request_id"`
	TaskType          types.TaskType  `json:"task_type"`
	Tier              types.Tier      `json:"tier"`
	Confidence        float64         `json:"classification_confidence"`
	BlendedConfidence float64         `json:"blended_confidence"`
	Objective         types.Objective `json:"objective"`
	Candidates        []string        `json:"candidates"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Notifier delivers escalations.
type Notifier interface {
	Notify(ctx context.Context, e Escalation) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Escalation) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, e Escalation) error {
	return f(ctx, e)
}

// New returns a webhook notifier when cfg names a URL and a log notifier
// otherwise.
func New(cfg config.NotifyConfig, logger *slog.Logger) Notifier {
	if cfg.WebhookURL == "" {
		return NewLogNotifier(logger)
	}
	return NewWebhookNotifier(cfg, logger)
}

// LogNotifier writes escalations to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, e Escalation) error {
	level := slog.LevelInfo
	if e.Tier == types.TierBlock {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "routing escalation",
		"request_id", e.RequestID,
		"tier", e.Tier,
		"task_type", e.TaskType,
		"confidence", e.Confidence,
		"blended_confidence", e.BlendedConfidence,
		"candidates", e.Candidates,
	)
	return nil
}
