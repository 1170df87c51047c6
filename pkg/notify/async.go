package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async sends escalations from background goroutines so the request path
// never waits on the approval channel.
type Async struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger

	// done is called once per escalation with the delivery result.
	done func(e Escalation, err error)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync wraps notifier. Each delivery is bounded by timeout.
func NewAsync(notifier Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.With("component", "notify"),
	}
}

// OnDelivery registers fn to observe every delivery result. It must be
// called before the first Send.
func (a *Async) OnDelivery(fn func(e Escalation, err error)) {
	a.done = fn
}

// Send starts delivering e and returns immediately. Sends after Close are
// dropped.
func (a *Async) Send(e Escalation) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warn("notifier closed, dropping escalation", "request_id", e.RequestID)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		err := a.notifier.Notify(ctx, e)
		if err != nil {
			a.logger.Warn("escalation delivery failed",
				"request_id", e.RequestID,
				"tier", e.Tier,
				"error", err,
			)
		}
		if a.done != nil {
			a.done(e, err)
		}
	}()
}

// Close stops accepting escalations and waits for in-flight deliveries.
func (a *Async) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}
