package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/cache"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/types"
)

// stubService answers with a fixed response or error and remembers the last
// request.
type stubService struct {
	resp *relay.Response
	err  error
	last *relay.Request
}

func (s *stubService) Handle(_ context.Context, req *relay.Request) (*relay.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	r := *s.resp
	r.RequestID = req.RequestID
	return &r, nil
}

func (s *stubService) Explain(_ context.Context, req *relay.Request) (*relay.Explanation, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &relay.Explanation{
		RequestID:   req.RequestID,
		Fingerprint: "fp",
		Decision: &routing.RoutingDecision{
			Candidates: []routing.Candidate{{ProviderID: "A"}},
			Tier:       types.TierAuto,
		},
	}, nil
}

type stubProviders []registry.ModelProvider

func (p stubProviders) All() []registry.ModelProvider {
	return append([]registry.ModelProvider(nil), p...)
}

type stubCache struct{}

func (stubCache) Stats() cache.StatsSnapshot {
	return cache.StatsSnapshot{Hits: 3, Misses: 1, HitRate: 0.75}
}

func newTestServer(t *testing.T, svc Service) *Server {
	t.Helper()
	s, err := New(config.ServerConfig{MaxBodyBytes: 1024}, Options{
		Service: svc,
		Providers: stubProviders{
			{ID: "b", Health: registry.Health{Status: types.StatusDegraded}},
			{ID: "a", Health: registry.Health{Status: types.StatusHealthy}},
		},
		Routing: routing.NewEngine(config.RoutingConfig{}, stubProviders{}, nil),
		Cache:   stubCache{},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("relay_requests_total 1\n"))
		}),
		Version: health.NewVersionInfo("1.2.3", "abc", "today"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresService(t *testing.T) {
	if _, err := New(config.ServerConfig{}, Options{}); err == nil {
		t.Error("New() without service succeeded")
	}
}

func TestRoute_Success(t *testing.T) {
	svc := &stubService{resp: &relay.Response{
		ProviderID: "A",
		Body:       []byte(`{"answer":42}`),
		TaskType:   types.TaskGeneral,
		Confidence: 1,
		Tier:       types.TierAuto,
		Objective:  types.ObjectiveCost,
		Cache:      cache.OutcomeMiss,
		Attempts:   dispatch.Trace{{Number: 1, ProviderID: "A", Outcome: types.OutcomeSuccess}},
		Cost:       1.5,
		Latency:    120 * time.Millisecond,
	}}
	s := newTestServer(t, svc)

	rec := do(t, s, http.MethodPost, "/v1/route",
		`{"payload":"hello","task_hint":"general","max_cost":2,"max_latency_ms":500,"required_tags":["eu"]}`,
		RequestIDHeader, "req-42")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(RequestIDHeader) != "req-42" {
		t.Errorf("X-Request-ID = %q", rec.Header().Get(RequestIDHeader))
	}

	if string(svc.last.Payload) != "hello" || svc.last.RequestID != "req-42" ||
		svc.last.MaxLatency != 500*time.Millisecond || svc.last.MaxCost != 2 || svc.last.RequiredTags[0] != "eu" {
		t.Errorf("decoded request = %+v", svc.last)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["request_id"] != "req-42" || got["provider"] != "A" || got["cache"] != "miss" || got["tier"] != "AUTO" {
		t.Errorf("response = %v", got)
	}
	if resp, ok := got["response"].(map[string]any); !ok || resp["answer"] != float64(42) {
		t.Errorf("embedded response = %v", got["response"])
	}
	if got["latency_ms"] != float64(120) || got["cost"] != 1.5 {
		t.Errorf("latency/cost = %v/%v", got["latency_ms"], got["cost"])
	}
}

func TestRoute_PlainTextBody(t *testing.T) {
	svc := &stubService{resp: &relay.Response{ProviderID: "A", Body: []byte("plain words")}}
	s := newTestServer(t, svc)

	rec := do(t, s, http.MethodPost, "/v1/route", `{"payload":{"messages":[]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if string(svc.last.Payload) != `{"messages":[]}` {
		t.Errorf("raw JSON payload = %s", svc.last.Payload)
	}
	if svc.last.RequestID == "" || rec.Header().Get(RequestIDHeader) != svc.last.RequestID {
		t.Errorf("generated request id not propagated")
	}

	var got struct {
		Response string `json:"response"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Response != "plain words" {
		t.Errorf("response = %q", got.Response)
	}
}

func TestRoute_Errors(t *testing.T) {
	trace := dispatch.Trace{
		{Number: 1, ProviderID: "A", Outcome: types.OutcomeTimeout},
		{Number: 2, ProviderID: "B", Outcome: types.OutcomeError},
	}

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType string
		attempts int
	}{
		{"invalid", &relay.InvalidRequestError{Field: "payload", Message: "empty"}, 400, "invalid_request", 0},
		{"no candidate", &routing.NoCandidateAvailableError{Exclusions: []routing.Exclusion{{ProviderID: "A", Reason: routing.ReasonMaxCost}}}, 503, "no_candidate", 0},
		{"depleted", &dispatch.ChainDepletedError{Attempts: trace}, 502, "chain_depleted", 2},
		{"budget", &dispatch.BudgetExceededError{Attempts: trace[:1], Budget: time.Second}, 504, "budget_exceeded", 1},
		{"cancelled", &dispatch.CancelledError{Attempts: trace[:1], Cause: context.Canceled}, StatusClientClosedRequest, "cancelled", 1},
		{"unexpected", errors.New("boom"), 500, "error", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubService{err: tt.err})
			rec := do(t, s, http.MethodPost, "/v1/route", `{"payload":"x"}`)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var got ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Error.Type != tt.wantType || len(got.Error.Attempts) != tt.attempts {
				t.Errorf("error = %+v", got.Error)
			}
			if got.Error.RequestID == "" {
				t.Error("error missing request id")
			}
			if tt.wantCode == 503 && len(got.Error.Exclusions) != 1 {
				t.Errorf("exclusions = %v", got.Error.Exclusions)
			}
			if tt.wantCode == 500 && got.Error.Message != "internal error" {
				t.Errorf("internal error leaked: %q", got.Error.Message)
			}
		})
	}
}

func TestRoute_BadBodies(t *testing.T) {
	s := newTestServer(t, &stubService{resp: &relay.Response{}})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `payload=x`},
		{"unknown field", `{"payload":"x","model":"gpt"}`},
		{"too large", `{"payload":"` + strings.Repeat("x", 2048) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/route", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	if rec := do(t, s, http.MethodGet, "/v1/route", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/route = %d", rec.Code)
	}
}

func TestExplain(t *testing.T) {
	svc := &stubService{}
	s := newTestServer(t, svc)

	rec := do(t, s, http.MethodPost, "/v1/route/explain", `{"payload":"why"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got relay.Explanation
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Fingerprint != "fp" || got.Decision.Candidates[0].ProviderID != "A" {
		t.Errorf("explanation = %+v", got)
	}
}

func TestProvidersAndStats(t *testing.T) {
	s := newTestServer(t, &stubService{})

	rec := do(t, s, http.MethodGet, "/v1/providers", "")
	var providers ProvidersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &providers); err != nil {
		t.Fatal(err)
	}
	if len(providers.Providers) != 2 || providers.Providers[0].ID != "a" || providers.Providers[1].Status() != types.StatusDegraded {
		t.Errorf("providers = %+v", providers)
	}

	rec = do(t, s, http.MethodGet, "/v1/stats", "")
	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Routing == nil || stats.Cache == nil || stats.Cache.Hits != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, &stubService{})

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, `"status"`},
		{"/ready", http.StatusOK, `"status"`},
		{"/version", http.StatusOK, `"version":"1.2.3"`},
		{"/metrics", http.StatusOK, "relay_requests_total"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodGet, tt.path, "")
		if rec.Code != tt.wantCode || !strings.Contains(rec.Body.String(), tt.contains) {
			t.Errorf("GET %s = %d %s", tt.path, rec.Code, rec.Body)
		}
	}
}

func TestReady_FailingCheck(t *testing.T) {
	checker := health.New(time.Second)
	checker.RegisterCheck("events", func(context.Context) error { return errors.New("disk full") })

	s, err := New(config.ServerConfig{}, Options{Service: &stubService{}, Health: checker})
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, s, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/providers", ""); rec.Code != http.StatusNotFound {
		t.Errorf("providers without source = %d, want 404", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t, panicService{})
	rec := do(t, s, http.MethodPost, "/v1/route", `{"payload":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panicService struct{}

func (panicService) Handle(context.Context, *relay.Request) (*relay.Response, error) {
	panic("handler bug")
}

func (panicService) Explain(context.Context, *relay.Request) (*relay.Explanation, error) {
	panic("handler bug")
}

func TestStartShutdown(t *testing.T) {
	s, err := New(config.ServerConfig{ListenAddress: "127.0.0.1:0"}, Options{Service: &stubService{}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Addr() == nil {
		t.Fatal("server never bound")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health = %d", resp.StatusCode)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if s.IsRunning() {
		t.Error("still running after shutdown")
	}
}

func TestStart_BindError(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()

	addr := strings.TrimPrefix(ln.URL, "http://")
	s, _ := New(config.ServerConfig{ListenAddress: addr}, Options{Service: &stubService{}})
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() on a bound port succeeded")
	}
}
