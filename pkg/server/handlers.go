package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"mercator-hq/relay/pkg/cache"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/types"
)

// StatusClientClosedRequest is reported when the caller went away before
// the request finished.
const StatusClientClosedRequest = 499

// RouteRequest is the body of POST /v1/route and /v1/route/explain.
//
// Payload may be a JSON string, which is routed as its text, or any other
// JSON value, which is routed as raw JSON.
type RouteRequest struct {
	Payload      json.RawMessage `json:"payload"`
	TaskHint     string          `json:"task_hint,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Objective    types.Objective `json:"objective,omitempty"`
	MaxCost      float64         `json:"max_cost,omitempty"`
	MaxLatencyMs int64           `json:"max_latency_ms,omitempty"`
	RequiredTags []string        `json:"required_tags,omitempty"`
}

// RouteResponse is the body of a served request.
type RouteResponse struct {
	RequestID string `json:"request_id"`
	Provider  string `json:"provider"`

	// Response is the provider's reply: embedded as-is when it is JSON,
	// otherwise as a string.
	Response json.RawMessage `json:"response"`

	TaskType   types.TaskType  `json:"task_type"`
	Confidence float64         `json:"confidence"`
	Tier       types.Tier      `json:"tier,omitempty"`
	Objective  types.Objective `json:"objective,omitempty"`
	Cache      cache.Outcome   `json:"cache"`
	Attempts   dispatch.Trace  `json:"attempts"`
	Cost       float64         `json:"cost"`
	LatencyMs  int64           `json:"latency_ms"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure. Attempts and Exclusions are set when the
// failure happened after routing.
type ErrorDetail struct {
	Type       string              `json:"type"`
	Message    string              `json:"message"`
	RequestID  string              `json:"request_id,omitempty"`
	Attempts   dispatch.Trace      `json:"attempts,omitempty"`
	Exclusions []routing.Exclusion `json:"exclusions,omitempty"`
}

// ProvidersResponse is the body of GET /v1/providers.
type ProvidersResponse struct {
	Providers []registry.ModelProvider `json:"providers"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Routing *routing.StatsSnapshot `json:"routing,omitempty"`
	Cache   *cache.StatsSnapshot   `json:"cache,omitempty"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRoute(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.opts.Service.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RouteResponse{
		RequestID:  resp.RequestID,
		Provider:   resp.ProviderID,
		Response:   providerBody(resp.Body),
		TaskType:   resp.TaskType,
		Confidence: resp.Confidence,
		Tier:       resp.Tier,
		Objective:  resp.Objective,
		Cache:      resp.Cache,
		Attempts:   resp.Attempts,
		Cost:       resp.Cost,
		LatencyMs:  resp.Latency.Milliseconds(),
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRoute(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	exp, err := s.opts.Service.Explain(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if s.opts.Providers == nil {
		http.NotFound(w, r)
		return
	}
	all := s.opts.Providers.All()
	slices.SortFunc(all, func(a, b registry.ModelProvider) int {
		return strings.Compare(a.ID, b.ID)
	})
	writeJSON(w, http.StatusOK, ProvidersResponse{Providers: all})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Routing == nil && s.opts.Cache == nil {
		http.NotFound(w, r)
		return
	}

	var resp StatsResponse
	if s.opts.Routing != nil {
		snap := s.opts.Routing.Stats().Snapshot()
		resp.Routing = &snap
	}
	if s.opts.Cache != nil {
		snap := s.opts.Cache.Stats()
		resp.Cache = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeRoute reads a RouteRequest into a relay request. The request id
// comes from the request-id middleware.
func decodeRoute(r *http.Request) (*relay.Request, error) {
	var body RouteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &relay.InvalidRequestError{Field: "body", Message: fmt.Sprintf("exceeds %d bytes", tooLarge.Limit)}
		}
		return nil, &relay.InvalidRequestError{Field: "body", Message: err.Error()}
	}

	payload, err := payloadBytes(body.Payload)
	if err != nil {
		return nil, err
	}

	return &relay.Request{
		RequestID:    logging.GetRequestID(r.Context()),
		Payload:      payload,
		TaskHint:     body.TaskHint,
		Tags:         body.Tags,
		Objective:    body.Objective,
		MaxCost:      body.MaxCost,
		MaxLatency:   time.Duration(body.MaxLatencyMs) * time.Millisecond,
		RequiredTags: body.RequiredTags,
	}, nil
}

func payloadBytes(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, &relay.InvalidRequestError{Field: "payload", Message: err.Error()}
		}
		return []byte(text), nil
	}
	return []byte(raw), nil
}

// providerBody returns body as embeddable JSON.
func providerBody(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// statusFor maps a request error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, relay.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, routing.ErrNoCandidateAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, dispatch.ErrChainDepleted):
		return http.StatusBadGateway
	case errors.Is(err, dispatch.ErrBudgetExceeded),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, dispatch.ErrCancelled),
		errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{
		Type:      relay.OutcomeOf(err),
		Message:   err.Error(),
		RequestID: logging.GetRequestID(r.Context()),
		Attempts:  dispatch.TraceOf(err),
	}
	if errors.Is(err, relay.ErrInvalidRequest) {
		detail.Type = "invalid_request"
	}
	var nc *routing.NoCandidateAvailableError
	if errors.As(err, &nc) {
		detail.Exclusions = nc.Exclusions
	}

	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "unexpected request error", "error", err)
		detail.Message = "internal error"
	}
	writeJSON(w, code, ErrorResponse{Error: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
