package providers

import (
	"context"
	"sync"
	"time"

	"mercator-hq/relay/pkg/providers"
)

// Behavior scripts one Fake invocation.
type Behavior struct {
	// Delay is waited out before replying. The wait honors ctx unless
	// IgnoreContext is set.
	Delay         time.Duration
	IgnoreContext bool

	// Gate, when set, blocks the call until it is closed or ctx is done.
	Gate <-chan struct{}

	Body []byte
	Cost float64
	Err  error

	// Panic makes the call panic with the given value.
	Panic interface{}
}

// Fake is a scripted provider. Calls consume the script in order; once it
// is exhausted every call uses the default behavior.
type Fake struct {
	id string

	mu          sync.Mutex
	script      []Behavior
	def         Behavior
	calls       int
	invocations []providers.Invocation
	healthErr   error
}

// NewFake creates a fake that succeeds with body {"provider":"<id>"}.
func NewFake(id string) *Fake {
	return &Fake{
		id:  id,
		def: Behavior{Body: []byte(`{"provider":"` + id + `"}`), Cost: 1},
	}
}

// Then appends behaviors to the script.
func (f *Fake) Then(b ...Behavior) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.script = append(f.script, b...)
	return f
}

// Always replaces the default behavior.
func (f *Fake) Always(b Behavior) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b.Body == nil && b.Err == nil && b.Panic == nil {
		b.Body = f.def.Body
	}
	f.def = b
	return f
}

// SetHealthErr sets the error HealthCheck returns.
func (f *Fake) SetHealthErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.healthErr = err
}

// ID returns the provider id.
func (f *Fake) ID() string {
	return f.id
}

// Calls returns the number of Invoke calls so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// Invocations returns a copy of every invocation received.
func (f *Fake) Invocations() []providers.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]providers.Invocation, len(f.invocations))
	copy(out, f.invocations)
	return out
}

// Invoke plays the next scripted behavior.
func (f *Fake) Invoke(ctx context.Context, inv *providers.Invocation) (*providers.Response, error) {
	f.mu.Lock()
	b := f.def
	if len(f.script) > 0 {
		b = f.script[0]
		f.script = f.script[1:]
	}
	f.calls++
	f.invocations = append(f.invocations, *inv)
	f.mu.Unlock()

	start := time.Now()

	if b.Gate != nil {
		select {
		case <-b.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if b.Delay > 0 {
		if b.IgnoreContext {
			time.Sleep(b.Delay)
		} else {
			t := time.NewTimer(b.Delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			}
		}
	}

	if b.Panic != nil {
		panic(b.Panic)
	}
	if b.Err != nil {
		return nil, b.Err
	}

	body := make([]byte, len(b.Body))
	copy(body, b.Body)
	return &providers.Response{Body: body, Latency: time.Since(start), Cost: b.Cost}, nil
}

// HealthCheck returns the error set by SetHealthErr.
func (f *Fake) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.healthErr
}
