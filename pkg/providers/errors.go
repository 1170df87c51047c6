package providers

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrProvider  = errors.New("provider error")
	ErrAuth      = errors.New("provider authentication failed")
	ErrRateLimit = errors.New("provider rate limit exceeded")
	ErrTimeout   = errors.New("provider timeout")
)

// ProviderError represents a general provider failure.
type ProviderError struct {
	// Provider is the id of the provider that failed.
	Provider string

	// StatusCode is the HTTP status code (0 if not applicable).
	StatusCode int

	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// AuthError represents a rejected credential (HTTP 401 or 403), or a
// credential that could not be resolved before the call.
type AuthError struct {
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// Is reports whether target is ErrAuth.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// RateLimitError represents a rate limit hit, either reported by the backend
// (HTTP 429) or by the local per-provider limiter.
type RateLimitError struct {
	Provider string

	// RetryAfter is the backend's retry hint, if it sent one.
	RetryAfter time.Duration

	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// Is reports whether target is ErrRateLimit.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimit
}

// TimeoutError represents an attempt that did not finish within its budget.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ParseError represents a malformed backend response.
type ParseError struct {
	Provider string

	// RawResponse is the body that failed to parse, truncated.
	RawResponse string

	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q response parse error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrProvider. A malformed response counts as
// a provider failure.
func (e *ParseError) Is(target error) bool {
	return target == ErrProvider
}

// ConfigError represents a provider that cannot be built from its
// configuration.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error in field %q: %s", e.Provider, e.Field, e.Message)
}

// truncate shortens s for inclusion in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
