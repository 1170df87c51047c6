package dispatch

import (
	"strings"
	"time"

	"mercator-hq/relay/pkg/types"
)

// Attempt is one provider call within a request.
type Attempt struct {
	// Number is the 1-based position in the attempt trace.
	Number     int           `json:"number"`
	ProviderID string        `json:"provider_id"`
	Outcome    types.Outcome `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
	Cost       float64       `json:"cost"`
	StartedAt  time.Time     `json:"started_at"`
}

// Trace is an ordered attempt trace.
type Trace []Attempt

// String renders the trace as "[A:timeout, B:success]".
func (t Trace) String() string {
	parts := make([]string, len(t))
	for i, a := range t {
		parts[i] = a.ProviderID + ":" + string(a.Outcome)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Cost sums the cost of every attempt.
func (t Trace) Cost() float64 {
	var total float64
	for _, a := range t {
		total += a.Cost
	}
	return total
}
