package config

import (
	"time"

	"mercator-hq/relay/pkg/types"
)

// Config is the root configuration structure for Relay.
// It contains the provider list and the tuning knobs for every router
// component, plus the server, event store, and telemetry settings.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Providers is the declarative provider list. Order is preserved for
	// display only; routing order is always computed.
	Providers []ProviderConfig `yaml:"providers"`

	// Classifier contains the task classifier floor and custom rules.
	Classifier ClassifierConfig `yaml:"classifier"`

	// Routing contains weight tables and confidence-tier thresholds.
	Routing RoutingConfig `yaml:"routing"`

	// Dispatch contains per-attempt and per-request timeout policy.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Cache contains response cache TTLs and size limits.
	Cache CacheConfig `yaml:"cache"`

	// Health contains rolling window and hysteresis thresholds used by the
	// metrics collector.
	Health HealthConfig `yaml:"health"`

	// Credentials configures where provider credentials are looked up.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Events configures the per-request event sink and its storage.
	Events EventsConfig `yaml:"events"`

	// Notify configures the approval/notification channel for NOTIFY and
	// BLOCK decisions.
	Notify NotifyConfig `yaml:"notify"`

	// Telemetry contains configuration for logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must cover the longest request budget.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps the size of a routed payload.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// ProviderConfig describes one backend model provider.
type ProviderConfig struct {
	// ID uniquely identifies the provider.
	ID string `yaml:"id"`

	// Type selects the provider implementation: "http" or "simulated".
	// Default: "http" when base_url is set, otherwise "simulated".
	Type string `yaml:"type"`

	// BaseURL is the OpenAI-compatible API root for http providers.
	BaseURL string `yaml:"base_url"`

	// Model is the upstream model name sent with each request.
	Model string `yaml:"model"`

	// Capabilities lists the task categories (and any extra tags) the
	// provider can serve.
	Capabilities []string `yaml:"capabilities"`

	// CostPerUnit is the relative cost of one request unit.
	CostPerUnit float64 `yaml:"cost_per_unit"`

	// BaselineLatencyMs is the expected latency in milliseconds. It drives
	// scoring and the default per-attempt timeout.
	BaselineLatencyMs int64 `yaml:"baseline_latency_ms"`

	// Accuracy is the static quality estimate in [0,1].
	// Default: 0.8
	Accuracy float64 `yaml:"accuracy"`

	// QuantizationLevel is informational (e.g. "fp16", "int8").
	QuantizationLevel string `yaml:"quantization_level"`

	// Timeout overrides the computed per-attempt timeout when positive.
	Timeout time.Duration `yaml:"timeout"`

	// Credential enables a credential lookup before each call.
	Credential bool `yaml:"credential"`

	// RateLimit bounds the outbound request rate to this provider.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Simulate configures the simulated provider type.
	Simulate SimulateConfig `yaml:"simulate"`
}

// BaselineLatency returns BaselineLatencyMs as a duration.
func (p ProviderConfig) BaselineLatency() time.Duration {
	return time.Duration(p.BaselineLatencyMs) * time.Millisecond
}

// RateLimitConfig is a token bucket. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SimulateConfig drives a simulated provider.
type SimulateConfig struct {
	// LatencyMs is the mean simulated latency. Defaults to the baseline.
	LatencyMs int64 `yaml:"latency_ms"`

	// JitterMs is added uniformly in [0, JitterMs).
	JitterMs int64 `yaml:"jitter_ms"`

	// FailureRate is the probability in [0,1] that a call fails.
	FailureRate float64 `yaml:"failure_rate"`
}

// ClassifierConfig contains task classifier settings.
type ClassifierConfig struct {
	// ConfidenceFloor is the minimum confidence for a rule match to stand.
	// Below it the result falls back to "general".
	// Default: 0.5
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// DefaultConfidence is reported for the "general" fallback when nothing
	// matched at all.
	// Default: 0.4
	DefaultConfidence float64 `yaml:"default_confidence"`

	// Rules are evaluated before the built-in rule table.
	Rules []ClassifierRule `yaml:"rules"`
}

// ClassifierRule is a keyword/regex heuristic.
type ClassifierRule struct {
	ID         string   `yaml:"id"`
	Task       string   `yaml:"task"`
	Keywords   []string `yaml:"keywords"`
	Pattern    string   `yaml:"pattern"`
	Confidence float64  `yaml:"confidence"`
}

// RoutingConfig contains routing engine settings.
type RoutingConfig struct {
	// DefaultObjective applies when a request does not name one.
	// Default: "cost"
	DefaultObjective types.Objective `yaml:"default_objective"`

	// Normalization selects how sub-scores are normalized across the
	// eligible set: "relative" (value relative to the best) or "minmax".
	// Default: "relative"
	Normalization string `yaml:"normalization"`

	// Weights maps each objective to its weight triple.
	Weights map[types.Objective]Weights `yaml:"weights"`

	// Tiers contains the confidence-tier thresholds.
	Tiers TierConfig `yaml:"tiers"`
}

// Weights is a (cost, latency, accuracy) weight triple.
type Weights struct {
	Cost     float64 `yaml:"cost" json:"cost"`
	Latency  float64 `yaml:"latency" json:"latency"`
	Accuracy float64 `yaml:"accuracy" json:"accuracy"`
}

// TierConfig contains confidence-tier thresholds.
type TierConfig struct {
	// Auto is the minimum blended confidence for AUTO.
	// Default: 0.85
	Auto float64 `yaml:"auto"`

	// Notify is the minimum blended confidence for NOTIFY. Below it: BLOCK.
	// Default: 0.65
	Notify float64 `yaml:"notify"`

	// ClassificationWeight is the share of classification confidence in the
	// blend; the rest is the top candidate's historical success rate.
	// Default: 0.5
	ClassificationWeight float64 `yaml:"classification_weight"`

	// PriorSuccessRate is assumed when a provider has no history for the
	// task type.
	// Default: 1.0
	PriorSuccessRate float64 `yaml:"prior_success_rate"`
}

// DispatchConfig contains failover manager settings.
type DispatchConfig struct {
	// TimeoutMultiplier scales baseline latency into the per-attempt timeout.
	// Default: 1.5
	TimeoutMultiplier float64 `yaml:"timeout_multiplier"`

	// BudgetMultiplier scales the first candidate's timeout into the
	// request budget when RequestBudget is zero.
	// Default: 5
	BudgetMultiplier float64 `yaml:"budget_multiplier"`

	// RequestBudget is an absolute per-request budget. Zero derives it from
	// BudgetMultiplier.
	RequestBudget time.Duration `yaml:"request_budget"`

	// MinAttemptTimeout keeps very fast baselines from producing unusable
	// timeouts.
	// Default: 10ms
	MinAttemptTimeout time.Duration `yaml:"min_attempt_timeout"`

	// RaceMode dispatches the top two candidates concurrently.
	// Default: false
	RaceMode bool `yaml:"race_mode"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	// Enabled toggles the response cache.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// DefaultTTL applies when a task type has no override.
	// Default: 10m
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// TTLByTask overrides the TTL per task type.
	TTLByTask map[types.TaskType]time.Duration `yaml:"ttl_by_task"`

	// MaxEntries caps the entry count with LRU eviction. Zero means
	// unbounded.
	// Default: 10000
	MaxEntries *int `yaml:"max_entries"`

	// CleanupInterval is how often expired entries are swept.
	// Default: 1m
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// IsEnabled reports whether the cache is enabled.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HealthConfig contains metrics collector settings.
type HealthConfig struct {
	// WindowSize is the rolling window sample count.
	// Default: 500
	WindowSize int `yaml:"window_size"`

	// WindowDuration drops samples older than this from the rolling window.
	// Default: 15m
	WindowDuration time.Duration `yaml:"window_duration"`

	// EvaluationWindow is the number of samples per evaluation window. The
	// rolling success rate is checked each time one closes.
	// Default: 1
	EvaluationWindow int `yaml:"evaluation_window"`

	// ConsecutiveWindows is K: windows required to confirm a transition.
	// Default: 3
	ConsecutiveWindows int `yaml:"consecutive_windows"`

	// DegradedBelow is the success rate below which a healthy provider
	// accumulates degrade windows.
	// Default: 0.95
	DegradedBelow float64 `yaml:"degraded_below"`

	// UnavailableBelow is the success rate below which a degraded provider
	// accumulates unavailable windows.
	// Default: 0.80
	UnavailableBelow float64 `yaml:"unavailable_below"`

	// RecoveredAt is the success rate at or above which a provider
	// accumulates recovery windows.
	// Default: 0.95
	RecoveredAt float64 `yaml:"recovered_at"`

	// MaxConsecutiveFailures is N: outright failures that mark a provider
	// unavailable regardless of windows.
	// Default: 5
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// ProbeInterval is how often degraded and unavailable providers are
	// probed. A negative value disables probing.
	// Default: 30s
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// ProbeTimeout bounds a single probe.
	// Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// CredentialsConfig contains credential store settings.
type CredentialsConfig struct {
	// EnvPrefix is prepended to the upper-cased provider id.
	// Default: "RELAY_CREDENTIAL_"
	EnvPrefix string `yaml:"env_prefix"`

	// Directory holds one file per provider id. Empty disables the file
	// source.
	Directory string `yaml:"directory"`

	// Watch reloads credential files on change.
	// Default: true
	Watch *bool `yaml:"watch"`

	// CacheTTL bounds how long a resolved credential is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// WatchEnabled reports whether credential files are watched.
func (c CredentialsConfig) WatchEnabled() bool {
	return c.Watch == nil || *c.Watch
}

// EventsConfig contains event sink settings.
type EventsConfig struct {
	// Enabled toggles event emission.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend selects event storage: "memory", "sqlite", or "log".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// BufferSize is the async recorder queue length.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds one storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxEvents caps the memory backend.
	// Default: 10000
	MaxEvents int `yaml:"max_events"`

	// Retention configures periodic pruning.
	Retention RetentionConfig `yaml:"retention"`
}

// IsEnabled reports whether event emission is enabled.
func (c EventsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SQLiteConfig contains sqlite event store settings.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/events.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is the sqlite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains event retention settings.
type RetentionConfig struct {
	// Days keeps events newer than this many days. A negative value
	// disables pruning.
	// Default: 30
	Days int `yaml:"days"`

	// Schedule is a standard cron expression for the pruner.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// NotifyConfig contains approval/notification channel settings.
type NotifyConfig struct {
	// WebhookURL receives NOTIFY and BLOCK escalations as JSON. Empty logs
	// them instead.
	WebhookURL string `yaml:"webhook_url"`

	// Secret signs webhook bodies with HMAC-SHA256 when set.
	Secret string `yaml:"secret"`

	// Timeout bounds one webhook delivery.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled toggles metric collection and the /metrics endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// IsEnabled reports whether metrics are enabled.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled toggles span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`
}
