package routing

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/relay/pkg/types"
)

// ErrNoCandidateAvailable is matched by NoCandidateAvailableError.
var ErrNoCandidateAvailable = errors.New("no candidate provider available")

// NoCandidateAvailableError is returned when the eligibility filter leaves
// no provider to route to.
type NoCandidateAvailableError struct {
	TaskType types.TaskType

	// Exclusions lists every registered provider and why it was filtered.
	Exclusions []Exclusion
}

// Error implements the error interface.
func (e *NoCandidateAvailableError) Error() string {
	if len(e.Exclusions) == 0 {
		return fmt.Sprintf("no candidate provider available for task %q (no providers registered)", e.TaskType)
	}
	parts := make([]string, len(e.Exclusions))
	for i, ex := range e.Exclusions {
		parts[i] = ex.ProviderID + ":" + string(ex.Reason)
	}
	return fmt.Sprintf("no candidate provider available for task %q (excluded: %s)",
		e.TaskType, strings.Join(parts, ", "))
}

// Is implements error matching for errors.Is().
func (e *NoCandidateAvailableError) Is(target error) bool {
	return target == ErrNoCandidateAvailable
}
