package events

import (
	"context"
	"time"

	"mercator-hq/relay/pkg/types"
)

// Request outcomes recorded on events. Success is types.OutcomeSuccess;
// the others name the terminal error class returned to the caller.
const (
	OutcomeSuccess        = string(types.OutcomeSuccess)
	OutcomeNoCandidate    = "no_candidate"
	OutcomeChainDepleted  = "chain_depleted"
	OutcomeBudgetExceeded = "budget_exceeded"
	OutcomeCancelled      = "cancelled"
	OutcomeError          = "error"
)

// Event is the per-request observability record.
type Event struct {
	ID                   string          `json:"id"`
	RequestID            string          `json:"request_id"`
	TaskType             types.TaskType  `json:"task_type"`
	Confidence           float64         `json:"confidence"`
	CandidatesConsidered int             `json:"candidates_considered"`
	SelectedProvider     string          `json:"selected_provider,omitempty"`
	Outcome              string          `json:"outcome"`
	TotalLatencyMs       int64           `json:"total_latency_ms"`
	TotalCost            float64         `json:"total_cost"`
	Tier                 types.Tier      `json:"confidence_tier,omitempty"`
	Objective            types.Objective `json:"objective,omitempty"`
	CacheHit             bool            `json:"cache_hit"`
	Cache                string          `json:"cache,omitempty"`
	Attempts             []AttemptRecord `json:"attempts,omitempty"`
	Error                string          `json:"error,omitempty"`
	Timestamp            time.Time       `json:"timestamp"`
}

// AttemptRecord is one dispatch attempt as stored on an event.
type AttemptRecord struct {
	ProviderID string        `json:"provider_id"`
	Outcome    types.Outcome `json:"outcome"`
	LatencyMs  int64         `json:"latency_ms"`
	Cost       float64       `json:"cost,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Sink receives events. Emit must not block the caller and never fails
// from the caller's point of view.
type Sink interface {
	Emit(e Event)
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(Event) {}

// Storage is a queryable event store. Implementations are safe for
// concurrent use.
type Storage interface {
	Store(ctx context.Context, e *Event) error
	Query(ctx context.Context, q *Query) ([]*Event, error)
	Count(ctx context.Context, q *Query) (int64, error)

	// DeleteBefore removes events with a timestamp before t and returns how
	// many were removed.
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
