package events

import (
	"context"
	"log/slog"
)

// LogSink writes each event as one structured log line. It backs the "log"
// backend and keeps nothing for querying.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	attrs := []slog.Attr{
		slog.String("request_id", e.RequestID),
		slog.String("task_type", string(e.TaskType)),
		slog.Float64("confidence", e.Confidence),
		slog.Int("candidates_considered", e.CandidatesConsidered),
		slog.String("outcome", e.Outcome),
		slog.Int64("total_latency_ms", e.TotalLatencyMs),
		slog.Float64("total_cost", e.TotalCost),
		slog.Bool("cache_hit", e.CacheHit),
		slog.Int("attempts", len(e.Attempts)),
	}
	if e.SelectedProvider != "" {
		attrs = append(attrs, slog.String("selected_provider", e.SelectedProvider))
	}
	if e.Tier != "" {
		attrs = append(attrs, slog.String("confidence_tier", string(e.Tier)))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	level := slog.LevelInfo
	if e.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(context.Background(), level, "routing event", attrs...)
}

// Fanout emits to every sink in order.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(e Event) {
	for _, s := range f {
		s.Emit(e)
	}
}
