package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/relay/pkg/config"
)

// record installs a span recorder as the global provider for one test.
func record(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	Install(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(config.TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_Enabled(t *testing.T) {
	tr, err := New(config.TracingConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		ServiceName: "relay-test",
		SampleRatio: 0.5,
		Insecure:    true,
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !tr.Enabled() {
		t.Error("Enabled() = false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_ = tr.Shutdown(ctx)
}

func TestStart_RecordsAttributes(t *testing.T) {
	sr := record(t)

	ctx, span := Start(context.Background(), "routing.route",
		attribute.String(AttrRequestID, "req-1"),
		attribute.String(AttrTaskType, "code"),
	)
	if TraceID(ctx) == "" {
		t.Error("TraceID() is empty inside a recorded span")
	}
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name() != "routing.route" {
		t.Errorf("Name() = %q", got.Name())
	}

	attrs := make(map[attribute.Key]string)
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value.AsString()
	}
	if attrs[AttrRequestID] != "req-1" || attrs[AttrTaskType] != "code" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestSetError(t *testing.T) {
	sr := record(t)

	_, span := Start(context.Background(), "dispatch")
	SetError(span, nil)
	SetError(span, errors.New("chain depleted"))
	span.End()

	got := sr.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", got.Status().Code)
	}
	if got.Status().Description != "chain depleted" {
		t.Errorf("description = %q", got.Status().Description)
	}
	if len(got.Events()) != 1 {
		t.Errorf("events = %d, want 1 recorded error", len(got.Events()))
	}
}

func TestTraceID_NoSpan(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID() = %q, want empty", id)
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "ParentBased{root:AlwaysOnSampler"},
		{0, "ParentBased{root:AlwaysOffSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		desc := newSampler(tt.ratio).Description()
		if len(desc) < len(tt.want) || desc[:len(tt.want)] != tt.want {
			t.Errorf("newSampler(%v) = %q, want prefix %q", tt.ratio, desc, tt.want)
		}
	}
}

func TestMiddleware_PropagatesParent(t *testing.T) {
	sr := record(t)

	parentCtx, parent := Start(context.Background(), "client")
	headers := http.Header{}
	Inject(parentCtx, headers)
	parent.End()

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/route", nil)
	req.Header = headers
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	want := TraceID(parentCtx)
	if seen != want {
		t.Errorf("handler trace id = %q, want %q", seen, want)
	}
	if rec.Header().Get("X-Trace-ID") != want {
		t.Errorf("X-Trace-ID = %q, want %q", rec.Header().Get("X-Trace-ID"), want)
	}
	if n := len(sr.Ended()); n != 2 {
		t.Errorf("ended spans = %d, want 2", n)
	}
}
