package events

import (
	"fmt"
	"time"

	"mercator-hq/relay/pkg/types"
)

const (
	// DefaultLimit applies when a query sets no limit.
	DefaultLimit = 100

	// MaxLimit is the largest page a query may request.
	MaxLimit = 10000
)

// Query filters events. Zero fields do not filter.
type Query struct {
	Since     *time.Time     `json:"since,omitempty"` // inclusive
	Until     *time.Time     `json:"until,omitempty"` // exclusive
	RequestID string         `json:"request_id,omitempty"`
	TaskType  types.TaskType `json:"task_type,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Tier      types.Tier     `json:"tier,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Ascending returns oldest first. The default is newest first.
	Ascending bool `json:"ascending,omitempty"`
}

// Validate reports an invalid query as a *QueryError.
func (q *Query) Validate() error {
	switch {
	case q.Limit < 0:
		return &QueryError{Query: q, Cause: fmt.Errorf("limit must be >= 0, got %d", q.Limit)}
	case q.Limit > MaxLimit:
		return &QueryError{Query: q, Cause: fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit)}
	case q.Offset < 0:
		return &QueryError{Query: q, Cause: fmt.Errorf("offset must be >= 0, got %d", q.Offset)}
	case q.Since != nil && q.Until != nil && !q.Since.Before(*q.Until):
		return &QueryError{Query: q, Cause: fmt.Errorf("since must be before until")}
	case q.Tier != "" && q.Tier != types.TierAuto && q.Tier != types.TierNotify && q.Tier != types.TierBlock:
		return &QueryError{Query: q, Cause: fmt.Errorf("invalid tier: %s", q.Tier)}
	}
	return nil
}

func (q *Query) limit() int {
	if q.Limit == 0 {
		return DefaultLimit
	}
	return q.Limit
}

// matches is the in-memory form of the filter.
func (q *Query) matches(e *Event) bool {
	if q.Since != nil && e.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !e.Timestamp.Before(*q.Until) {
		return false
	}
	if q.RequestID != "" && e.RequestID != q.RequestID {
		return false
	}
	if q.TaskType != "" && e.TaskType != q.TaskType {
		return false
	}
	if q.Provider != "" && e.SelectedProvider != q.Provider {
		return false
	}
	if q.Outcome != "" && e.Outcome != q.Outcome {
		return false
	}
	if q.Tier != "" && e.Tier != q.Tier {
		return false
	}
	return true
}
