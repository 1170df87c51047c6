package config

import (
	"time"

	"mercator-hq/relay/pkg/types"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 1 << 20

	// Provider defaults
	DefaultProviderAccuracy = 0.8

	// Classifier defaults
	DefaultConfidenceFloor    = 0.5
	DefaultFallbackConfidence = 0.4

	// Routing defaults
	DefaultObjective            = types.ObjectiveCost
	DefaultNormalization        = "relative"
	DefaultTierAuto             = 0.85
	DefaultTierNotify           = 0.65
	DefaultClassificationWeight = 0.5
	DefaultPriorSuccessRate     = 1.0

	// Dispatch defaults
	DefaultTimeoutMultiplier = 1.5
	DefaultBudgetMultiplier  = 5.0
	DefaultMinAttemptTimeout = 10 * time.Millisecond

	// Cache defaults
	DefaultCacheTTL             = 10 * time.Minute
	DefaultCacheMaxEntries      = 10000
	DefaultCacheCleanupInterval = time.Minute

	// Health defaults
	DefaultWindowSize             = 500
	DefaultWindowDuration         = 15 * time.Minute
	DefaultEvaluationWindow       = 1
	DefaultConsecutiveWindows     = 3
	DefaultDegradedBelow          = 0.95
	DefaultUnavailableBelow       = 0.80
	DefaultRecoveredAt            = 0.95
	DefaultMaxConsecutiveFailures = 5
	DefaultProbeInterval          = 30 * time.Second
	DefaultProbeTimeout           = 5 * time.Second

	// Credentials defaults
	DefaultCredentialEnvPrefix = "RELAY_CREDENTIAL_"
	DefaultCredentialCacheTTL  = 5 * time.Minute

	// Events defaults
	DefaultEventsBackend      = "memory"
	DefaultEventsSQLitePath   = "data/events.db"
	DefaultEventsSQLiteDriver = "sqlite"
	DefaultEventsBusyTimeout  = 5 * time.Second
	DefaultEventsBufferSize   = 1000
	DefaultEventsWriteTimeout = 5 * time.Second
	DefaultEventsMaxEvents    = 10000
	DefaultRetentionDays      = 30
	DefaultRetentionSchedule  = "0 3 * * *"

	// Notify defaults
	DefaultNotifyTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "relay"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "relay"
	DefaultTracingSampleRatio = 1.0
)

// DefaultWeights returns the built-in weight table.
func DefaultWeights() map[types.Objective]Weights {
	return map[types.Objective]Weights{
		types.ObjectiveCost:     {Cost: 0.7, Latency: 0.2, Accuracy: 0.1},
		types.ObjectiveLatency:  {Cost: 0.1, Latency: 0.7, Accuracy: 0.2},
		types.ObjectiveAccuracy: {Cost: 0.1, Latency: 0.2, Accuracy: 0.7},
	}
}

// ApplyDefaults fills zero-valued fields with their defaults. Pointer fields
// distinguish "unset" from an explicit false or zero.
func ApplyDefaults(cfg *Config) {
	ApplyServerDefaults(&cfg.Server)

	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
	}

	if cfg.Classifier.ConfidenceFloor == 0 {
		cfg.Classifier.ConfidenceFloor = DefaultConfidenceFloor
	}
	if cfg.Classifier.DefaultConfidence == 0 {
		cfg.Classifier.DefaultConfidence = DefaultFallbackConfidence
	}

	ApplyRoutingDefaults(&cfg.Routing)
	ApplyDispatchDefaults(&cfg.Dispatch)
	ApplyCacheDefaults(&cfg.Cache)
	ApplyHealthDefaults(&cfg.Health)
	applyCredentialsDefaults(&cfg.Credentials)
	applyEventsDefaults(&cfg.Events)

	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = DefaultNotifyTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

// ApplyServerDefaults fills unset HTTP server settings.
func ApplyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Type == "" {
		if p.BaseURL != "" {
			p.Type = "http"
		} else {
			p.Type = "simulated"
		}
	}
	if p.Accuracy == 0 {
		p.Accuracy = DefaultProviderAccuracy
	}
	if len(p.Capabilities) == 0 {
		p.Capabilities = []string{string(types.TaskGeneral)}
	}
	if p.RateLimit.RequestsPerSecond > 0 && p.RateLimit.Burst == 0 {
		p.RateLimit.Burst = 1
	}
	if p.Type == "simulated" && p.Simulate.LatencyMs == 0 {
		p.Simulate.LatencyMs = p.BaselineLatencyMs
	}
}

// ApplyRoutingDefaults fills unset routing settings. Components call it so a
// zero-valued section is usable on its own.
func ApplyRoutingDefaults(r *RoutingConfig) {
	if r.DefaultObjective == "" {
		r.DefaultObjective = DefaultObjective
	}
	if r.Normalization == "" {
		r.Normalization = DefaultNormalization
	}
	if r.Weights == nil {
		r.Weights = make(map[types.Objective]Weights, len(types.Objectives))
	}
	for objective, w := range DefaultWeights() {
		if _, ok := r.Weights[objective]; !ok {
			r.Weights[objective] = w
		}
	}
	if r.Tiers.Auto == 0 {
		r.Tiers.Auto = DefaultTierAuto
	}
	if r.Tiers.Notify == 0 {
		r.Tiers.Notify = DefaultTierNotify
	}
	if r.Tiers.ClassificationWeight == 0 {
		r.Tiers.ClassificationWeight = DefaultClassificationWeight
	}
	if r.Tiers.PriorSuccessRate == 0 {
		r.Tiers.PriorSuccessRate = DefaultPriorSuccessRate
	}
}

// ApplyDispatchDefaults fills unset dispatch settings.
func ApplyDispatchDefaults(d *DispatchConfig) {
	if d.TimeoutMultiplier == 0 {
		d.TimeoutMultiplier = DefaultTimeoutMultiplier
	}
	if d.BudgetMultiplier == 0 {
		d.BudgetMultiplier = DefaultBudgetMultiplier
	}
	if d.MinAttemptTimeout == 0 {
		d.MinAttemptTimeout = DefaultMinAttemptTimeout
	}
}

// ApplyCacheDefaults fills unset cache settings.
func ApplyCacheDefaults(c *CacheConfig) {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = DefaultCacheTTL
	}
	if c.MaxEntries == nil {
		n := DefaultCacheMaxEntries
		c.MaxEntries = &n
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCacheCleanupInterval
	}
}

// ApplyHealthDefaults fills unset health settings.
func ApplyHealthDefaults(h *HealthConfig) {
	if h.WindowSize == 0 {
		h.WindowSize = DefaultWindowSize
	}
	if h.WindowDuration == 0 {
		h.WindowDuration = DefaultWindowDuration
	}
	if h.EvaluationWindow == 0 {
		h.EvaluationWindow = DefaultEvaluationWindow
	}
	if h.ConsecutiveWindows == 0 {
		h.ConsecutiveWindows = DefaultConsecutiveWindows
	}
	if h.DegradedBelow == 0 {
		h.DegradedBelow = DefaultDegradedBelow
	}
	if h.UnavailableBelow == 0 {
		h.UnavailableBelow = DefaultUnavailableBelow
	}
	if h.RecoveredAt == 0 {
		h.RecoveredAt = DefaultRecoveredAt
	}
	if h.MaxConsecutiveFailures == 0 {
		h.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if h.ProbeInterval == 0 {
		h.ProbeInterval = DefaultProbeInterval
	}
	if h.ProbeTimeout == 0 {
		h.ProbeTimeout = DefaultProbeTimeout
	}
}

func applyCredentialsDefaults(c *CredentialsConfig) {
	if c.EnvPrefix == "" {
		c.EnvPrefix = DefaultCredentialEnvPrefix
	}
	if c.Watch == nil {
		watch := true
		c.Watch = &watch
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCredentialCacheTTL
	}
}

func applyEventsDefaults(e *EventsConfig) {
	if e.Enabled == nil {
		enabled := true
		e.Enabled = &enabled
	}
	if e.Backend == "" {
		e.Backend = DefaultEventsBackend
	}
	if e.SQLite.Path == "" {
		e.SQLite.Path = DefaultEventsSQLitePath
	}
	if e.SQLite.Driver == "" {
		e.SQLite.Driver = DefaultEventsSQLiteDriver
	}
	if e.SQLite.BusyTimeout == 0 {
		e.SQLite.BusyTimeout = DefaultEventsBusyTimeout
	}
	if e.BufferSize == 0 {
		e.BufferSize = DefaultEventsBufferSize
	}
	if e.WriteTimeout == 0 {
		e.WriteTimeout = DefaultEventsWriteTimeout
	}
	if e.MaxEvents == 0 {
		e.MaxEvents = DefaultEventsMaxEvents
	}
	if e.Retention.Days == 0 {
		e.Retention.Days = DefaultRetentionDays
	}
	if e.Retention.Schedule == "" {
		e.Retention.Schedule = DefaultRetentionSchedule
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Metrics.Enabled == nil {
		enabled := true
		t.Metrics.Enabled = &enabled
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
