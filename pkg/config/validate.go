package config

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/relay/pkg/types"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateClassifier(&cfg.Classifier)...)
	errs = append(errs, validateRouting(&cfg.Routing)...)
	errs = append(errs, validateDispatch(&cfg.Dispatch)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateEvents(&cfg.Events)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError
	if s.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "field is required"})
	}
	if s.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if s.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}
	return errs
}

func validateProviders(providers []ProviderConfig) []FieldError {
	var errs []FieldError

	if len(providers) == 0 {
		return append(errs, FieldError{Field: "providers", Message: "at least one provider is required"})
	}

	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		field := fmt.Sprintf("providers[%d]", i)
		if p.ID != "" {
			field = fmt.Sprintf("providers.%s", p.ID)
		}

		if p.ID == "" {
			errs = append(errs, FieldError{Field: field + ".id", Message: "field is required"})
		} else if seen[p.ID] {
			errs = append(errs, FieldError{Field: field + ".id", Message: "duplicate provider id"})
		}
		seen[p.ID] = true

		switch p.Type {
		case "http":
			if p.BaseURL == "" {
				errs = append(errs, FieldError{Field: field + ".base_url", Message: "field is required for http providers"})
			} else if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{Field: field + ".base_url", Message: fmt.Sprintf("invalid URL %q", p.BaseURL)})
			}
		case "simulated":
		default:
			errs = append(errs, FieldError{Field: field + ".type", Message: fmt.Sprintf("unknown provider type %q (must be http or simulated)", p.Type)})
		}

		if p.CostPerUnit < 0 {
			errs = append(errs, FieldError{Field: field + ".cost_per_unit", Message: "must not be negative"})
		}
		if p.BaselineLatencyMs <= 0 {
			errs = append(errs, FieldError{Field: field + ".baseline_latency_ms", Message: "must be positive"})
		}
		if p.Accuracy < 0 || p.Accuracy > 1 {
			errs = append(errs, FieldError{Field: field + ".accuracy", Message: "must be between 0 and 1"})
		}
		if p.Timeout < 0 {
			errs = append(errs, FieldError{Field: field + ".timeout", Message: "must not be negative"})
		}
		if p.RateLimit.RequestsPerSecond < 0 {
			errs = append(errs, FieldError{Field: field + ".rate_limit.requests_per_second", Message: "must not be negative"})
		}
		if p.Simulate.FailureRate < 0 || p.Simulate.FailureRate > 1 {
			errs = append(errs, FieldError{Field: field + ".simulate.failure_rate", Message: "must be between 0 and 1"})
		}
		for _, capability := range p.Capabilities {
			if strings.TrimSpace(capability) == "" {
				errs = append(errs, FieldError{Field: field + ".capabilities", Message: "capability tags must not be empty"})
				break
			}
		}
	}

	return errs
}

func validateClassifier(c *ClassifierConfig) []FieldError {
	var errs []FieldError
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		errs = append(errs, FieldError{Field: "classifier.confidence_floor", Message: "must be between 0 and 1"})
	}
	if c.DefaultConfidence < 0 || c.DefaultConfidence > 1 {
		errs = append(errs, FieldError{Field: "classifier.default_confidence", Message: "must be between 0 and 1"})
	}
	for i, r := range c.Rules {
		field := fmt.Sprintf("classifier.rules[%d]", i)
		if r.ID == "" {
			errs = append(errs, FieldError{Field: field + ".id", Message: "field is required"})
		}
		if !types.TaskType(r.Task).Valid() {
			errs = append(errs, FieldError{Field: field + ".task", Message: fmt.Sprintf("unknown task type %q", r.Task)})
		}
		if len(r.Keywords) == 0 && r.Pattern == "" {
			errs = append(errs, FieldError{Field: field, Message: "keywords or pattern is required"})
		}
		if r.Pattern != "" {
			if _, err := regexp.Compile(r.Pattern); err != nil {
				errs = append(errs, FieldError{Field: field + ".pattern", Message: fmt.Sprintf("invalid regular expression: %v", err)})
			}
		}
		if r.Confidence <= 0 || r.Confidence > 1 {
			errs = append(errs, FieldError{Field: field + ".confidence", Message: "must be in (0, 1]"})
		}
	}
	return errs
}

func validateRouting(r *RoutingConfig) []FieldError {
	var errs []FieldError

	if !r.DefaultObjective.Valid() {
		errs = append(errs, FieldError{Field: "routing.default_objective", Message: fmt.Sprintf("unknown objective %q", r.DefaultObjective)})
	}
	if r.Normalization != "relative" && r.Normalization != "minmax" {
		errs = append(errs, FieldError{Field: "routing.normalization", Message: fmt.Sprintf("must be relative or minmax, got %q", r.Normalization)})
	}
	for objective, w := range r.Weights {
		field := fmt.Sprintf("routing.weights.%s", objective)
		if !objective.Valid() {
			errs = append(errs, FieldError{Field: field, Message: "unknown objective"})
			continue
		}
		if w.Cost < 0 || w.Latency < 0 || w.Accuracy < 0 {
			errs = append(errs, FieldError{Field: field, Message: "weights must not be negative"})
		}
		if sum := w.Cost + w.Latency + w.Accuracy; math.Abs(sum-1) > 1e-6 {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("weights must sum to 1, got %.3f", sum)})
		}
	}

	t := r.Tiers
	if t.Auto <= 0 || t.Auto > 1 {
		errs = append(errs, FieldError{Field: "routing.tiers.auto", Message: "must be in (0, 1]"})
	}
	if t.Notify <= 0 || t.Notify > t.Auto {
		errs = append(errs, FieldError{Field: "routing.tiers.notify", Message: "must be in (0, routing.tiers.auto]"})
	}
	if t.ClassificationWeight < 0 || t.ClassificationWeight > 1 {
		errs = append(errs, FieldError{Field: "routing.tiers.classification_weight", Message: "must be between 0 and 1"})
	}
	if t.PriorSuccessRate < 0 || t.PriorSuccessRate > 1 {
		errs = append(errs, FieldError{Field: "routing.tiers.prior_success_rate", Message: "must be between 0 and 1"})
	}

	return errs
}

func validateDispatch(d *DispatchConfig) []FieldError {
	var errs []FieldError
	if d.TimeoutMultiplier <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.timeout_multiplier", Message: "must be positive"})
	}
	if d.BudgetMultiplier <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.budget_multiplier", Message: "must be positive"})
	}
	if d.RequestBudget < 0 {
		errs = append(errs, FieldError{Field: "dispatch.request_budget", Message: "must not be negative"})
	}
	return errs
}

func validateCache(c *CacheConfig) []FieldError {
	var errs []FieldError
	if c.DefaultTTL < 0 {
		errs = append(errs, FieldError{Field: "cache.default_ttl", Message: "must not be negative"})
	}
	for task, ttl := range c.TTLByTask {
		if !task.Valid() {
			errs = append(errs, FieldError{Field: fmt.Sprintf("cache.ttl_by_task.%s", task), Message: "unknown task type"})
		}
		if ttl <= 0 {
			errs = append(errs, FieldError{Field: fmt.Sprintf("cache.ttl_by_task.%s", task), Message: "must be positive"})
		}
	}
	if c.MaxEntries != nil && *c.MaxEntries < 0 {
		errs = append(errs, FieldError{Field: "cache.max_entries", Message: "must not be negative"})
	}
	return errs
}

func validateHealth(h *HealthConfig) []FieldError {
	var errs []FieldError
	if h.WindowSize <= 0 {
		errs = append(errs, FieldError{Field: "health.window_size", Message: "must be positive"})
	}
	if h.EvaluationWindow <= 0 {
		errs = append(errs, FieldError{Field: "health.evaluation_window", Message: "must be positive"})
	}
	if h.ConsecutiveWindows <= 0 {
		errs = append(errs, FieldError{Field: "health.consecutive_windows", Message: "must be positive"})
	}
	if h.MaxConsecutiveFailures <= 0 {
		errs = append(errs, FieldError{Field: "health.max_consecutive_failures", Message: "must be positive"})
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"health.degraded_below", h.DegradedBelow},
		{"health.unavailable_below", h.UnavailableBelow},
		{"health.recovered_at", h.RecoveredAt},
	} {
		if f.value <= 0 || f.value > 1 {
			errs = append(errs, FieldError{Field: f.name, Message: "must be in (0, 1]"})
		}
	}
	if h.UnavailableBelow > h.DegradedBelow {
		errs = append(errs, FieldError{Field: "health.unavailable_below", Message: "must not exceed health.degraded_below"})
	}
	if h.RecoveredAt < h.DegradedBelow {
		errs = append(errs, FieldError{Field: "health.recovered_at", Message: "must not be below health.degraded_below"})
	}
	return errs
}

func validateEvents(e *EventsConfig) []FieldError {
	var errs []FieldError
	switch e.Backend {
	case "memory", "log":
	case "sqlite":
		if e.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "events.sqlite.path", Message: "field is required"})
		}
		if e.SQLite.Driver != "sqlite" && e.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{Field: "events.sqlite.driver", Message: fmt.Sprintf("must be sqlite or sqlite3, got %q", e.SQLite.Driver)})
		}
	default:
		errs = append(errs, FieldError{Field: "events.backend", Message: fmt.Sprintf("unknown backend %q (must be memory, sqlite, or log)", e.Backend)})
	}
	if e.BufferSize <= 0 {
		errs = append(errs, FieldError{Field: "events.buffer_size", Message: "must be positive"})
	}
	if _, err := cron.ParseStandard(e.Retention.Schedule); err != nil {
		errs = append(errs, FieldError{Field: "events.retention.schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}
	return errs
}

func validateNotify(n *NotifyConfig) []FieldError {
	if n.WebhookURL == "" {
		return nil
	}
	if u, err := url.Parse(n.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
		return []FieldError{{Field: "notify.webhook_url", Message: fmt.Sprintf("invalid URL %q", n.WebhookURL)}}
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError
	switch strings.ToLower(t.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown log level %q", t.Logging.Level)})
	}
	switch strings.ToLower(t.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown log format %q", t.Logging.Format)})
	}
	if !strings.HasPrefix(t.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	if t.Tracing.SampleRatio < 0 || t.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
	}
	return errs
}
