package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

const (
	// maxResponseSize bounds how much of a backend reply is read.
	maxResponseSize = 10 << 20

	// tokensPerUnit converts reported token usage into cost units.
	tokensPerUnit = 1000.0
)

// HTTPProvider calls an OpenAI-compatible chat completion endpoint.
//
// It makes exactly one request per Invoke. Retrying is the dispatcher's
// decision, made by moving to the next candidate.
type HTTPProvider struct {
	id          string
	baseURL     string
	model       string
	costPerUnit float64
	client      *http.Client
}

// NewHTTPProvider creates an HTTP provider with a pooled transport.
func NewHTTPProvider(cfg config.ProviderConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, &ConfigError{Provider: cfg.ID, Field: "base_url", Message: "required for http providers"}
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		id:          cfg.ID,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		costPerUnit: cfg.CostPerUnit,
		// Deadlines come from the attempt context, never from the client.
		client: &http.Client{Transport: transport},
	}, nil
}

// ID returns the provider id.
func (p *HTTPProvider) ID() string {
	return p.id
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type chatReply struct {
	Usage *chatUsage `json:"usage"`
}

// Invoke posts the payload to {base_url}/chat/completions.
//
// A payload that is already a chat completion request (a JSON object with a
// "messages" field) is forwarded with the configured model filled in when
// missing. Anything else is sent as a single user message.
func (p *HTTPProvider) Invoke(ctx context.Context, inv *Invocation) (*Response, error) {
	body, err := p.requestBody(inv.Payload)
	if err != nil {
		return nil, &ProviderError{Provider: p.id, Message: "failed to encode request", Cause: err}
	}

	start := time.Now()
	raw, err := p.do(ctx, http.MethodPost, "/chat/completions", body, inv.Credential)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Provider: p.id, Timeout: inv.Timeout}
		}
		return nil, err
	}

	var reply chatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &ParseError{Provider: p.id, RawResponse: truncate(string(raw), 256), Cause: err}
	}

	cost := p.costPerUnit
	if reply.Usage != nil && reply.Usage.TotalTokens > 0 {
		cost = float64(reply.Usage.TotalTokens) * p.costPerUnit / tokensPerUnit
	}

	return &Response{Body: raw, Latency: latency, Cost: cost}, nil
}

// HealthCheck lists models, which every compatible backend serves cheaply.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	_, err := p.do(ctx, http.MethodGet, "/models", nil, "")
	return err
}

func (p *HTTPProvider) requestBody(payload []byte) ([]byte, error) {
	var req map[string]any
	if json.Unmarshal(payload, &req) == nil {
		if _, ok := req["messages"]; ok {
			if _, ok := req["model"]; !ok && p.model != "" {
				req["model"] = p.model
			}
			return json.Marshal(req)
		}
	}

	return json.Marshal(map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": string(payload)},
		},
	})
}

// do executes one request and maps non-2xx statuses to typed errors.
func (p *HTTPProvider) do(ctx context.Context, method, path string, body []byte, credential string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, &ProviderError{Provider: p.id, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ProviderError{Provider: p.id, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ProviderError{Provider: p.id, StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Provider: p.id, Message: truncate(string(raw), 256)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Provider:   p.id,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    truncate(string(raw), 256),
		}
	default:
		return nil, &ProviderError{
			Provider:   p.id,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(raw), 256),
		}
	}
}

// parseRetryAfter parses a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
