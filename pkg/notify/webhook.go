package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/config"
)

// Webhook headers.
const (
	HeaderTier      = "X-Relay-Tier"
	HeaderRequestID = "X-Relay-Request-ID"
	HeaderSignature = "X-Relay-Signature"
)

const webhookAttempts = 3

// WebhookError is a failed webhook delivery.
type WebhookError struct {
	URL        string
	StatusCode int
	Attempts   int
	Cause      error
}

func (e *WebhookError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook %s: HTTP %d after %d attempts", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("webhook %s: %v after %d attempts", e.URL, e.Cause, e.Attempts)
}

func (e *WebhookError) Unwrap() error {
	return e.Cause
}

// WebhookNotifier POSTs escalations as JSON. 5xx responses and transport
// errors are retried; 4xx responses are not.
type WebhookNotifier struct {
	url     string
	secret  string
	client  *http.Client
	backoff time.Duration
	logger  *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier for cfg.WebhookURL.
func NewWebhookNotifier(cfg config.NotifyConfig, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultNotifyTimeout
	}
	return &WebhookNotifier{
		url:     cfg.WebhookURL,
		secret:  cfg.Secret,
		client:  &http.Client{Timeout: timeout},
		backoff: 200 * time.Millisecond,
		logger:  logger.With("component", "notify.webhook"),
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, e Escalation) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}

	var last *WebhookError
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &WebhookError{URL: n.url, Attempts: attempt - 1, Cause: ctx.Err()}
			case <-time.After(time.Duration(attempt-1) * n.backoff):
			}
		}

		status, err := n.post(ctx, e, body)
		if err == nil && status/100 == 2 {
			n.logger.Debug("escalation delivered",
				"request_id", e.RequestID,
				"tier", e.Tier,
				"attempt", attempt,
			)
			return nil
		}

		last = &WebhookError{URL: n.url, StatusCode: status, Attempts: attempt, Cause: err}
		if err == nil && status/100 == 4 {
			break
		}
	}
	return last
}

func (n *WebhookNotifier) post(ctx context.Context, e Escalation, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "relay-notify/1.0")
	req.Header.Set(HeaderTier, string(e.Tier))
	req.Header.Set(HeaderRequestID, e.RequestID)
	if n.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
