package dispatch

import (
	"errors"
	"fmt"
	"time"

	"mercator-hq/relay/pkg/routing"
)

var (
	// ErrChainDepleted is matched by ChainDepletedError.
	ErrChainDepleted = errors.New("fallback chain depleted")

	// ErrBudgetExceeded is matched by BudgetExceededError.
	ErrBudgetExceeded = errors.New("request budget exceeded")

	// ErrCancelled is matched by CancelledError.
	ErrCancelled = errors.New("request cancelled")
)

// ChainDepletedError is returned when every candidate was tried and failed.
type ChainDepletedError struct {
	Decision *routing.RoutingDecision
	Attempts Trace
}

// Error implements the error interface.
func (e *ChainDepletedError) Error() string {
	return fmt.Sprintf("fallback chain depleted after %d attempts %s", len(e.Attempts), e.Attempts)
}

// Is implements error matching for errors.Is().
func (e *ChainDepletedError) Is(target error) bool {
	return target == ErrChainDepleted
}

// BudgetExceededError is returned when the request budget ran out with
// candidates left untried.
type BudgetExceededError struct {
	Decision *routing.RoutingDecision
	Attempts Trace
	Budget   time.Duration

	// Remaining lists the candidates never attempted.
	Remaining []string
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("request budget %v exceeded after %d attempts %s, %d candidates untried",
		e.Budget, len(e.Attempts), e.Attempts, len(e.Remaining))
}

// Is implements error matching for errors.Is().
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// CancelledError is returned when the caller's context ended mid-chain. It
// unwraps to the context error, so errors.Is(err, context.Canceled) holds.
type CancelledError struct {
	Decision *routing.RoutingDecision
	Attempts Trace
	Cause    error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("request cancelled after %d attempts %s: %v", len(e.Attempts), e.Attempts, e.Cause)
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is().
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// TraceOf returns the attempt trace carried by a dispatch error, or nil.
func TraceOf(err error) Trace {
	var depleted *ChainDepletedError
	if errors.As(err, &depleted) {
		return depleted.Attempts
	}
	var budget *BudgetExceededError
	if errors.As(err, &budget) {
		return budget.Attempts
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return cancelled.Attempts
	}
	return nil
}
