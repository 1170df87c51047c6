// Package dispatch executes a routing decision's fallback chain.
//
// Candidates are tried in ranked order until one succeeds, the chain is
// depleted, the request budget runs out, or the caller goes away. Each
// attempt has its own deadline derived from the provider's baseline latency
// and clipped to the remaining budget. The provider call runs in its own
// goroutine, so a provider that ignores cancellation still cannot hold the
// request past its deadline. Every attempt is reported to the health
// recorder before the next one starts.
//
// In race mode the top two candidates are called concurrently; the first
// success wins and the other call is cancelled. When both fail the rest of
// the chain is tried sequentially.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/credentials"
	"mercator-hq/relay/pkg/monitor"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/types"
)

var (
	errCredentialLookup = errors.New("credential lookup failed")
	errRateLimitWait    = errors.New("rate limiter wait failed")
)

// ProviderLookup resolves live provider instances by id.
// *providers.Manager implements it.
type ProviderLookup interface {
	Get(id string) (providers.Provider, bool)
}

// Recorder receives every attempt outcome. *monitor.Collector implements
// it.
type Recorder interface {
	Record(s monitor.Sample)
}

// Options carries the dispatcher's collaborators.
type Options struct {
	Providers ProviderLookup

	// Credentials is consulted for providers configured with credential:
	// true. Without a store such providers fail with credential_error.
	Credentials credentials.Store

	// Recorder may be nil.
	Recorder Recorder

	Logger *slog.Logger
}

// target holds the dispatch settings of one provider.
type target struct {
	baseline   time.Duration
	timeout    time.Duration
	credential bool
	rateLimit  config.RateLimitConfig
	limiter    *rate.Limiter
}

// Result is a successful dispatch.
type Result struct {
	ProviderID string
	Response   *providers.Response
	Attempts   Trace

	// Latency is the wall time of the whole chain.
	Latency time.Duration
}

// Dispatcher runs fallback chains. It is safe for concurrent use.
type Dispatcher struct {
	providers ProviderLookup
	creds     credentials.Store
	recorder  Recorder
	logger    *slog.Logger

	mu      sync.RWMutex
	cfg     config.DispatchConfig
	targets map[string]*target
}

// New creates a dispatcher for the given providers.
func New(cfg config.DispatchConfig, provs []config.ProviderConfig, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyDispatchDefaults(&cfg)

	d := &Dispatcher{
		providers: opts.Providers,
		creds:     opts.Credentials,
		recorder:  opts.Recorder,
		logger:    logger.With("component", "dispatch"),
		cfg:       cfg,
	}
	d.UpdateProviders(provs)
	return d
}

// UpdateConfig swaps in new timeout and budget settings.
func (d *Dispatcher) UpdateConfig(cfg config.DispatchConfig) {
	config.ApplyDispatchDefaults(&cfg)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
}

// UpdateProviders rebuilds per-provider settings. Rate limiters whose
// settings did not change keep their state.
func (d *Dispatcher) UpdateProviders(provs []config.ProviderConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()

	targets := make(map[string]*target, len(provs))
	for _, p := range provs {
		t := &target{
			baseline:   p.BaselineLatency(),
			timeout:    p.Timeout,
			credential: p.Credential,
			rateLimit:  p.RateLimit,
		}
		if p.RateLimit.RequestsPerSecond > 0 {
			if old, ok := d.targets[p.ID]; ok && old.limiter != nil && old.rateLimit == p.RateLimit {
				t.limiter = old.limiter
			} else {
				t.limiter = rate.NewLimiter(rate.Limit(p.RateLimit.RequestsPerSecond), max(p.RateLimit.Burst, 1))
			}
		}
		targets[p.ID] = t
	}
	d.targets = targets
}

func (d *Dispatcher) snapshot() (config.DispatchConfig, map[string]*target) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.targets
}

// AttemptTimeout returns the per-attempt timeout for a provider before
// budget clipping.
func (d *Dispatcher) AttemptTimeout(id string) time.Duration {
	cfg, targets := d.snapshot()
	return attemptTimeout(cfg, targets[id])
}

func attemptTimeout(cfg config.DispatchConfig, t *target) time.Duration {
	var timeout time.Duration
	if t != nil {
		timeout = t.timeout
		if timeout <= 0 {
			timeout = time.Duration(float64(t.baseline) * cfg.TimeoutMultiplier)
		}
	}
	return max(timeout, cfg.MinAttemptTimeout)
}

// Budget returns the total time allowed for a chain headed by first.
func (d *Dispatcher) Budget(first string) time.Duration {
	cfg, targets := d.snapshot()
	return budget(cfg, targets, first)
}

func budget(cfg config.DispatchConfig, targets map[string]*target, first string) time.Duration {
	if cfg.RequestBudget > 0 {
		return cfg.RequestBudget
	}
	return time.Duration(float64(attemptTimeout(cfg, targets[first])) * cfg.BudgetMultiplier)
}

// Dispatch runs the decision's chain with payload. It returns a Result on
// the first success, or a *ChainDepletedError, *BudgetExceededError or
// *CancelledError carrying the attempt trace.
func (d *Dispatcher) Dispatch(ctx context.Context, decision *routing.RoutingDecision, payload []byte) (*Result, error) {
	cfg, targets := d.snapshot()
	chain := decision.ProviderIDs()
	if len(chain) == 0 {
		return nil, &ChainDepletedError{Decision: decision}
	}

	start := time.Now()
	r := &run{
		d:        d,
		cfg:      cfg,
		targets:  targets,
		decision: decision,
		payload:  payload,
		budget:   budget(cfg, targets, chain[0]),
	}
	r.deadline = start.Add(r.budget)

	var trace Trace
	next := 0
	budgetCut := false

	if cfg.RaceMode && len(chain) >= 2 {
		winner, resp, attempts, cut := r.race(ctx, chain[0], chain[1])
		trace = append(trace, attempts...)
		if resp != nil {
			return r.result(winner, resp, trace, start), nil
		}
		next, budgetCut = 2, cut
	}

	for i := next; i < len(chain); i++ {
		if err := ctx.Err(); err != nil {
			return nil, r.cancelled(trace, err)
		}
		if time.Until(r.deadline) <= 0 {
			return nil, r.budgetExceeded(trace, chain[i:])
		}

		resp, att, cut := r.attempt(ctx, len(trace)+1, chain[i])
		trace = append(trace, att)
		if resp != nil {
			return r.result(chain[i], resp, trace, start), nil
		}
		budgetCut = cut
	}

	if err := ctx.Err(); err != nil {
		return nil, r.cancelled(trace, err)
	}
	if budgetCut {
		return nil, r.budgetExceeded(trace, nil)
	}

	d.logger.Warn("fallback chain depleted",
		"request_id", decision.RequestID,
		"task_type", decision.TaskType,
		"attempts", trace.String(),
	)
	return nil, &ChainDepletedError{Decision: decision, Attempts: trace}
}

// run is the state of one Dispatch call.
type run struct {
	d        *Dispatcher
	cfg      config.DispatchConfig
	targets  map[string]*target
	decision *routing.RoutingDecision
	payload  []byte
	budget   time.Duration
	deadline time.Time
}

func (r *run) result(providerID string, resp *providers.Response, trace Trace, start time.Time) *Result {
	return &Result{
		ProviderID: providerID,
		Response:   resp,
		Attempts:   trace,
		Latency:    time.Since(start),
	}
}

func (r *run) cancelled(trace Trace, cause error) error {
	r.d.logger.Info("request cancelled during dispatch",
		"request_id", r.decision.RequestID,
		"attempts", trace.String(),
	)
	return &CancelledError{Decision: r.decision, Attempts: trace, Cause: cause}
}

func (r *run) budgetExceeded(trace Trace, remaining []string) error {
	r.d.logger.Warn("request budget exceeded",
		"request_id", r.decision.RequestID,
		"budget", r.budget,
		"attempts", trace.String(),
		"untried", len(remaining),
	)
	return &BudgetExceededError{Decision: r.decision, Attempts: trace, Budget: r.budget, Remaining: remaining}
}

// race calls a and b concurrently. It returns the winner and its response,
// both attempts in chain order, and whether a failure was cut short by the
// budget.
func (r *run) race(ctx context.Context, a, b string) (string, *providers.Response, []Attempt, bool) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type raced struct {
		idx  int
		resp *providers.Response
		att  Attempt
		cut  bool
	}
	results := make(chan raced, 2)
	for i, id := range []string{a, b} {
		go func() {
			resp, att, cut := r.attempt(rctx, i+1, id)
			results <- raced{idx: i, resp: resp, att: att, cut: cut}
		}()
	}

	attempts := make([]Attempt, 2)
	var winner string
	var win *providers.Response
	cut := false
	for range 2 {
		res := <-results
		attempts[res.idx] = res.att
		cut = cut || res.cut
		if res.resp != nil && win == nil {
			winner, win = res.att.ProviderID, res.resp
			cancel()
		}
	}
	return winner, win, attempts, cut && win == nil
}

// attempt makes one provider call. It returns the response on success, the
// attempt record, and whether a failure was caused by budget clipping.
func (r *run) attempt(ctx context.Context, n int, id string) (*providers.Response, Attempt, bool) {
	t := r.targets[id]
	timeout := attemptTimeout(r.cfg, t)
	clipped := false
	if remaining := time.Until(r.deadline); remaining < timeout {
		timeout, clipped = remaining, true
	}

	ctx, span := tracing.Start(ctx, "dispatch.attempt",
		attribute.String(tracing.AttrRequestID, r.decision.RequestID),
		attribute.String(tracing.AttrProvider, id),
		attribute.Int(tracing.AttrAttempt, n),
	)
	defer span.End()

	att := Attempt{Number: n, ProviderID: id, StartedAt: time.Now()}

	actx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := r.d.call(actx, id, t, r.payload, timeout)
	cancel()

	att.Latency = time.Since(att.StartedAt)
	att.Outcome = classify(ctx, err, clipped)
	if err != nil {
		att.Error = err.Error()
	}
	if resp != nil {
		att.Cost = resp.Cost
	}

	if r.d.recorder != nil {
		r.d.recorder.Record(monitor.Sample{
			ProviderID: id,
			TaskType:   r.decision.TaskType,
			Outcome:    att.Outcome,
			Latency:    att.Latency,
			Cost:       att.Cost,
			At:         att.StartedAt.Add(att.Latency),
		})
	}

	span.SetAttributes(
		attribute.String(tracing.AttrOutcome, string(att.Outcome)),
		attribute.Float64(tracing.AttrCost, att.Cost),
	)

	if att.Outcome != types.OutcomeSuccess {
		tracing.SetError(span, err)
		r.d.logger.Warn("provider attempt failed",
			"request_id", r.decision.RequestID,
			"provider", id,
			"attempt", n,
			"outcome", att.Outcome,
			"timeout", timeout,
			"latency", att.Latency,
			"error", err,
		)
		cut := clipped && att.Outcome == types.OutcomeCancelled && ctx.Err() == nil
		return nil, att, cut
	}

	r.d.logger.Debug("provider attempt succeeded",
		"request_id", r.decision.RequestID,
		"provider", id,
		"attempt", n,
		"latency", att.Latency,
		"cost", att.Cost,
	)
	return resp, att, false
}

type invokeResult struct {
	resp *providers.Response
	err  error
}

// call resolves the credential, waits on the rate limiter and invokes the
// provider. It returns when the provider answers or ctx ends, whichever
// comes first.
func (d *Dispatcher) call(ctx context.Context, id string, t *target, payload []byte, timeout time.Duration) (*providers.Response, error) {
	p, ok := d.providers.Get(id)
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", id)
	}

	inv := &providers.Invocation{Payload: payload, Timeout: timeout}

	if t != nil && t.credential {
		if d.creds == nil {
			return nil, fmt.Errorf("%w for %s: no credential store configured", errCredentialLookup, id)
		}
		cred, err := d.creds.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %w", errCredentialLookup, id, err)
		}
		inv.Credential = cred
	}

	if t != nil && t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w for %s: %w", errRateLimitWait, id, err)
		}
	}

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- invokeResult{err: &providers.ProviderError{Provider: id, Message: fmt.Sprintf("panic: %v", rec)}}
			}
		}()
		resp, err := p.Invoke(ctx, inv)
		if err == nil && resp == nil {
			err = &providers.ProviderError{Provider: id, Message: "empty response"}
		}
		done <- invokeResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classify maps an attempt error to its outcome. parent is the context the
// attempt ran under, before the attempt deadline was applied.
func classify(parent context.Context, err error, clipped bool) types.Outcome {
	switch {
	case err == nil:
		return types.OutcomeSuccess
	case parent.Err() != nil:
		return types.OutcomeCancelled
	case errors.Is(err, errCredentialLookup), errors.Is(err, providers.ErrAuth):
		return types.OutcomeCredentialError
	case errors.Is(err, errRateLimitWait), errors.Is(err, providers.ErrRateLimit):
		return types.OutcomeRateLimited
	case errors.Is(err, providers.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		if clipped {
			return types.OutcomeCancelled
		}
		return types.OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return types.OutcomeCancelled
	default:
		return types.OutcomeError
	}
}
