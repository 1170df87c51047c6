// Package relay wires the router's components into the request path:
// classify, fingerprint, cache lookup, route, dispatch, cache write and
// event emission.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/relay/pkg/cache"
	"mercator-hq/relay/pkg/classifier"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/events"
	"mercator-hq/relay/pkg/notify"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/types"
)

// Classifier assigns a task type. *classifier.Classifier implements it.
type Classifier interface {
	Classify(in classifier.Input) classifier.Result
}

// Router ranks providers. *routing.Engine implements it.
type Router interface {
	Route(ctx context.Context, req *routing.RoutingRequest) (*routing.RoutingDecision, error)
}

// Dispatcher runs a fallback chain. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, decision *routing.RoutingDecision, payload []byte) (*dispatch.Result, error)
}

// Cache collapses and stores identical requests. *cache.Cache implements
// it.
type Cache interface {
	GetOrCompute(ctx context.Context, key cache.Key, compute cache.ComputeFunc) (*cache.Entry, cache.Outcome, error)
}

// Escalator delivers NOTIFY and BLOCK decisions without blocking.
// *notify.Async implements it.
type Escalator interface {
	Send(e notify.Escalation)
}

// Metrics records request-level metrics. *metrics.Collector implements
// it.
type Metrics interface {
	RecordRequest(task types.TaskType, status string, duration time.Duration, cost float64)
	RecordDecision(tier types.Tier, objective types.Objective, candidates int)
	RecordNoCandidate(task types.TaskType)
	RecordCacheOutcome(outcome string)
}

// Options carries the service's collaborators. Classifier, Router and
// Dispatcher are required.
type Options struct {
	Classifier Classifier
	Router     Router
	Dispatcher Dispatcher

	// Cache may be nil to dispatch every request.
	Cache Cache

	// Events, Escalator and Metrics may be nil.
	Events    events.Sink
	Escalator Escalator
	Metrics   Metrics

	Logger *slog.Logger
}

// Request is one inbound routing request.
type Request struct {
	// RequestID is generated when empty.
	RequestID string

	Payload  []byte
	TaskHint string
	Tags     []string

	Objective    types.Objective
	MaxCost      float64
	MaxLatency   time.Duration
	RequiredTags []string
}

// Response is a successfully served request.
type Response struct {
	RequestID  string          `json:"request_id"`
	ProviderID string          `json:"provider"`
	Body       []byte          `json:"-"`
	TaskType   types.TaskType  `json:"task_type"`
	Confidence float64         `json:"confidence"`
	Tier       types.Tier      `json:"tier,omitempty"`
	Objective  types.Objective `json:"objective,omitempty"`
	Cache      cache.Outcome   `json:"cache"`
	Attempts   dispatch.Trace  `json:"attempts"`

	// Cost is what this request spent on providers; zero when the answer
	// came from the cache or from another caller's flight.
	Cost    float64       `json:"cost"`
	Latency time.Duration `json:"-"`
}

// Explanation is a classification and routing decision without dispatch.
type Explanation struct {
	RequestID      string                   `json:"request_id"`
	Classification classifier.Result        `json:"classification"`
	Fingerprint    string                   `json:"fingerprint"`
	Decision       *routing.RoutingDecision `json:"decision"`
}

// Service serves routing requests. It is safe for concurrent use.
type Service struct {
	classifier Classifier
	router     Router
	dispatcher Dispatcher
	cache      Cache
	events     events.Sink
	escalator  Escalator
	metrics    Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a service.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Classifier == nil:
		return nil, errors.New("relay: classifier is required")
	case opts.Router == nil:
		return nil, errors.New("relay: router is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("relay: dispatcher is required")
	}

	s := &Service{
		classifier: opts.Classifier,
		router:     opts.Router,
		dispatcher: opts.Dispatcher,
		cache:      opts.Cache,
		events:     opts.Events,
		escalator:  opts.Escalator,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        time.Now,
	}
	if s.cache == nil {
		s.cache = passthrough{}
	}
	if s.events == nil {
		s.events = events.Discard{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "relay")
	return s, nil
}

// prepared is a validated, classified request.
type prepared struct {
	id             string
	payload        []byte
	classification classifier.Result
	routing        *routing.RoutingRequest
}

func (s *Service) prepare(req *Request) (*prepared, error) {
	switch {
	case req == nil || len(req.Payload) == 0:
		return nil, &InvalidRequestError{Field: "payload", Message: "must not be empty"}
	case req.Objective != "" && !req.Objective.Valid():
		return nil, &InvalidRequestError{Field: "objective", Message: "must be cost, latency, or accuracy"}
	case req.MaxCost < 0:
		return nil, &InvalidRequestError{Field: "max_cost", Message: "must not be negative"}
	case req.MaxLatency < 0:
		return nil, &InvalidRequestError{Field: "max_latency_ms", Message: "must not be negative"}
	}

	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	result := s.classifier.Classify(classifier.Input{
		Payload:  string(req.Payload),
		TaskHint: req.TaskHint,
		Tags:     req.Tags,
	})

	return &prepared{
		id:             id,
		payload:        req.Payload,
		classification: result,
		routing: &routing.RoutingRequest{
			ID:                       id,
			TaskType:                 result.TaskType,
			ClassificationConfidence: result.Confidence,
			Objective:                req.Objective,
			MaxCost:                  req.MaxCost,
			MaxLatency:               req.MaxLatency,
			RequiredTags:             req.RequiredTags,
			Fingerprint:              routing.Fingerprint(req.Payload, result.TaskType, req.RequiredTags),
		},
	}, nil
}

// Explain classifies and routes req without dispatching it.
func (s *Service) Explain(ctx context.Context, req *Request) (*Explanation, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithRequestID(ctx, p.id)

	decision, err := s.router.Route(ctx, p.routing)
	if err != nil {
		return nil, err
	}
	return &Explanation{
		RequestID:      p.id,
		Classification: p.classification,
		Fingerprint:    p.routing.Fingerprint,
		Decision:       decision,
	}, nil
}

// computation records what the cache computation did on behalf of its
// leader. It may still be written after the leader has given up waiting.
type computation struct {
	mu       sync.Mutex
	decision *routing.RoutingDecision
	result   *dispatch.Result
	trace    dispatch.Trace
}

func (c *computation) set(d *routing.RoutingDecision, r *dispatch.Result, trace dispatch.Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decision, c.result, c.trace = d, r, trace
}

func (c *computation) get() (*routing.RoutingDecision, *dispatch.Result, dispatch.Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision, c.result, c.trace
}

// Handle serves req: a cached answer when one exists, otherwise the
// response of the first provider in the ranked chain that succeeds.
//
// Errors are *InvalidRequestError, *routing.NoCandidateAvailableError,
// *dispatch.ChainDepletedError, *dispatch.BudgetExceededError or
// *dispatch.CancelledError (or the bare context error when the caller left
// while waiting on a shared computation).
func (s *Service) Handle(ctx context.Context, req *Request) (*Response, error) {
	start := s.now()

	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	task := p.classification.TaskType

	ctx = logging.WithRequestID(ctx, p.id)
	ctx, span := tracing.Start(ctx, "relay.handle",
		attribute.String(tracing.AttrRequestID, p.id),
		attribute.String(tracing.AttrTaskType, string(task)),
		attribute.Float64(tracing.AttrConfidence, p.classification.Confidence),
		attribute.String(tracing.AttrFingerprint, p.routing.Fingerprint),
	)
	defer span.End()

	comp := &computation{}
	entry, outcome, err := s.cache.GetOrCompute(ctx,
		cache.Key{Fingerprint: p.routing.Fingerprint, TaskType: task},
		func(fctx context.Context) (*cache.Entry, error) {
			return s.compute(fctx, p, comp)
		})
	s.metrics.RecordCacheOutcome(string(outcome))

	resp := &Response{
		RequestID:  p.id,
		TaskType:   task,
		Confidence: p.classification.Confidence,
		Cache:      outcome,
		Attempts:   dispatch.Trace{},
	}

	var decision *routing.RoutingDecision
	if outcome == cache.OutcomeMiss {
		var result *dispatch.Result
		var trace dispatch.Trace
		decision, result, trace = comp.get()
		if decision != nil {
			resp.Tier = decision.Tier
			resp.Objective = decision.Objective
		}
		if result != nil {
			trace = result.Attempts
		}
		if trace != nil {
			resp.Attempts = trace
		}
		resp.Cost = resp.Attempts.Cost()
	} else if err != nil {
		// Waiters on a failed flight report its attempts at no cost.
		if trace := dispatch.TraceOf(err); trace != nil {
			resp.Attempts = trace
		}
	}
	if entry != nil {
		resp.ProviderID = entry.ProviderID
		resp.Body = entry.Payload
	}
	resp.Latency = s.now().Sub(start)

	status := OutcomeOf(err)
	s.metrics.RecordRequest(task, status, resp.Latency, resp.Cost)
	s.emit(p, resp, decision, status, err)

	span.SetAttributes(
		attribute.String(tracing.AttrCacheResult, string(outcome)),
		attribute.String(tracing.AttrOutcome, status),
	)
	if err != nil {
		tracing.SetError(span, err)
		s.logger.WarnContext(ctx, "request failed",
			"task_type", task,
			"outcome", status,
			"cache", outcome,
			"attempts", resp.Attempts.String(),
			"latency_ms", resp.Latency.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String(tracing.AttrProvider, resp.ProviderID))
	s.logger.InfoContext(ctx, "request served",
		"provider", resp.ProviderID,
		"task_type", task,
		"tier", resp.Tier,
		"cache", outcome,
		"attempts", len(resp.Attempts),
		"cost", resp.Cost,
		"latency_ms", resp.Latency.Milliseconds(),
	)
	return resp, nil
}

// compute routes and dispatches a cache miss. It runs once per flight.
func (s *Service) compute(ctx context.Context, p *prepared, comp *computation) (*cache.Entry, error) {
	decision, err := s.router.Route(ctx, p.routing)
	if err != nil {
		if errors.Is(err, routing.ErrNoCandidateAvailable) {
			s.metrics.RecordNoCandidate(p.routing.TaskType.Normalize())
		}
		return nil, err
	}
	s.metrics.RecordDecision(decision.Tier, decision.Objective, len(decision.Candidates))

	if decision.Tier.Escalated() {
		s.escalate(p, decision)
	}

	result, err := s.dispatcher.Dispatch(ctx, decision, p.payload)
	if err != nil {
		comp.set(decision, nil, dispatch.TraceOf(err))
		return nil, err
	}
	comp.set(decision, result, nil)

	return &cache.Entry{
		Fingerprint: p.routing.Fingerprint,
		Payload:     result.Response.Body,
		Cost:        result.Response.Cost,
		ProviderID:  result.ProviderID,
	}, nil
}

func (s *Service) escalate(p *prepared, d *routing.RoutingDecision) {
	if s.escalator == nil {
		return
	}
	s.escalator.Send(notify.Escalation{
		RequestID:         p.id,
		TaskType:          d.TaskType,
		Tier:              d.Tier,
		Confidence:        p.classification.Confidence,
		BlendedConfidence: d.BlendedConfidence,
		Objective:         d.Objective,
		Candidates:        d.ProviderIDs(),
		Timestamp:         s.now().UTC(),
	})
}

func (s *Service) emit(p *prepared, resp *Response, d *routing.RoutingDecision, status string, err error) {
	e := events.Event{
		RequestID:        p.id,
		TaskType:         resp.TaskType,
		Confidence:       resp.Confidence,
		SelectedProvider: resp.ProviderID,
		Outcome:          status,
		TotalLatencyMs:   resp.Latency.Milliseconds(),
		TotalCost:        resp.Cost,
		Tier:             resp.Tier,
		Objective:        resp.Objective,
		CacheHit:         resp.Cache == cache.OutcomeHit || resp.Cache == cache.OutcomeShared,
		Cache:            string(resp.Cache),
		Timestamp:        s.now().UTC(),
	}
	if d != nil {
		e.CandidatesConsidered = len(d.Candidates)
	}
	if err != nil {
		e.Error = err.Error()
	}
	for _, a := range resp.Attempts {
		e.Attempts = append(e.Attempts, events.AttemptRecord{
			ProviderID: a.ProviderID,
			Outcome:    a.Outcome,
			LatencyMs:  a.Latency.Milliseconds(),
			Cost:       a.Cost,
			Error:      a.Error,
		})
	}
	s.events.Emit(e)
}

// passthrough computes every request.
type passthrough struct{}

func (passthrough) GetOrCompute(ctx context.Context, _ cache.Key, compute cache.ComputeFunc) (*cache.Entry, cache.Outcome, error) {
	e, err := compute(ctx)
	return e, cache.OutcomeMiss, err
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(types.TaskType, string, time.Duration, float64) {}
func (nopMetrics) RecordDecision(types.Tier, types.Objective, int)              {}
func (nopMetrics) RecordNoCandidate(types.TaskType)                             {}
func (nopMetrics) RecordCacheOutcome(string)                                    {}
