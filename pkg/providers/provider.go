// Package providers defines the contract between the router and its model
// inference backends, and ships the two backends the relay binary can run:
// an OpenAI-compatible HTTP provider and a simulated provider for local runs.
//
// A Provider knows nothing about routing. It receives an opaque payload, a
// deadline and an optional credential, and either returns a response with
// its measured latency and cost or a typed error describing why it failed.
// Failover, timeouts and health accounting are the dispatcher's job.
package providers

import (
	"context"
	"time"
)

// Provider is a single model inference backend.
//
// Invoke must honor ctx cancellation. The dispatcher stops waiting on the
// attempt deadline regardless, but a provider that keeps running after its
// context is done wastes a connection.
type Provider interface {
	// ID returns the provider id from configuration.
	ID() string

	// Invoke sends the payload to the backend and returns its response.
	Invoke(ctx context.Context, inv *Invocation) (*Response, error)
}

// HealthChecker is implemented by providers that can answer a lightweight
// liveness probe. The monitor uses it to let excluded providers recover.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Invocation is one call to a provider.
type Invocation struct {
	// Payload is the request body as received by the router.
	Payload []byte

	// Timeout is the attempt budget. It is informational; ctx carries the
	// actual deadline.
	Timeout time.Duration

	// Credential is the resolved secret for the provider, empty when the
	// provider does not need one.
	Credential string
}

// Response is a successful provider reply.
type Response struct {
	// Body is the backend response payload.
	Body []byte `json:"body"`

	// Latency is the wall time of the call as measured by the provider.
	Latency time.Duration `json:"latency"`

	// Cost is the cost of the call in the provider's cost units.
	Cost float64 `json:"cost"`
}
