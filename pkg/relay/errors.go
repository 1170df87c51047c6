package relay

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/events"
	"mercator-hq/relay/pkg/routing"
)

// ErrInvalidRequest is matched by InvalidRequestError.
var ErrInvalidRequest = errors.New("invalid request")

// InvalidRequestError reports a request rejected before classification.
type InvalidRequestError struct {
	Field   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is().
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// OutcomeOf names the terminal outcome of a request for events and
// metrics.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return events.OutcomeSuccess
	case errors.Is(err, routing.ErrNoCandidateAvailable):
		return events.OutcomeNoCandidate
	case errors.Is(err, dispatch.ErrChainDepleted):
		return events.OutcomeChainDepleted
	case errors.Is(err, dispatch.ErrBudgetExceeded):
		return events.OutcomeBudgetExceeded
	case errors.Is(err, dispatch.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return events.OutcomeCancelled
	default:
		return events.OutcomeError
	}
}
