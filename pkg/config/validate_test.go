package config

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/relay/pkg/types"
)

func validConfig() *Config {
	cfg := &Config{
		Providers: []ProviderConfig{
			{ID: "A", CostPerUnit: 1, BaselineLatencyMs: 50, Accuracy: 0.9},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:      "negative latency",
			mutate:    func(c *Config) { c.Providers[0].BaselineLatencyMs = -1 },
			wantField: "providers.A.baseline_latency_ms",
		},
		{
			name:      "accuracy out of range",
			mutate:    func(c *Config) { c.Providers[0].Accuracy = 1.5 },
			wantField: "providers.A.accuracy",
		},
		{
			name:      "http without base url",
			mutate:    func(c *Config) { c.Providers[0].Type = "http" },
			wantField: "providers.A.base_url",
		},
		{
			name:      "unknown provider type",
			mutate:    func(c *Config) { c.Providers[0].Type = "grpc" },
			wantField: "providers.A.type",
		},
		{
			name: "weights do not sum to one",
			mutate: func(c *Config) {
				c.Routing.Weights[types.ObjectiveCost] = Weights{Cost: 0.5, Latency: 0.2, Accuracy: 0.1}
			},
			wantField: "routing.weights.cost",
		},
		{
			name:      "notify above auto",
			mutate:    func(c *Config) { c.Routing.Tiers.Notify = 0.9 },
			wantField: "routing.tiers.notify",
		},
		{
			name:      "unknown normalization",
			mutate:    func(c *Config) { c.Routing.Normalization = "zscore" },
			wantField: "routing.normalization",
		},
		{
			name:      "unavailable threshold above degraded",
			mutate:    func(c *Config) { c.Health.UnavailableBelow = 0.99 },
			wantField: "health.unavailable_below",
		},
		{
			name:      "unknown task in ttl map",
			mutate:    func(c *Config) { c.Cache.TTLByTask = map[types.TaskType]time.Duration{"poetry": time.Minute} },
			wantField: "cache.ttl_by_task.poetry",
		},
		{
			name: "classifier rule with bad regex",
			mutate: func(c *Config) {
				c.Classifier.Rules = []ClassifierRule{{ID: "x", Task: "coding", Pattern: "(", Confidence: 0.8}}
			},
			wantField: "classifier.rules[0].pattern",
		},
		{
			name:      "bad cron schedule",
			mutate:    func(c *Config) { c.Events.Retention.Schedule = "every day" },
			wantField: "events.retention.schedule",
		},
		{
			name:      "unknown sqlite driver",
			mutate:    func(c *Config) { c.Events.Backend = "sqlite"; c.Events.SQLite.Driver = "pgx" },
			wantField: "events.sqlite.driver",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					return
				}
			}
			t.Errorf("Validate() errors = %v, want field %q", verr.Errors, tt.wantField)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got, want := single.Error(), "configuration validation failed: a: bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if got, want := multi.Error(), "configuration validation failed with 2 errors:\n  - a: bad\n  - b: worse\n"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
