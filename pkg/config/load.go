package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/relay/pkg/types"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "RELAY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_SERVER_LISTEN_ADDRESS).
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	if val := os.Getenv(EnvPrefix + "ROUTING_DEFAULT_OBJECTIVE"); val != "" {
		if o, err := types.ParseObjective(val); err == nil {
			cfg.Routing.DefaultObjective = o
		}
	}
	envString("ROUTING_NORMALIZATION", &cfg.Routing.Normalization)

	envFloat("DISPATCH_TIMEOUT_MULTIPLIER", &cfg.Dispatch.TimeoutMultiplier)
	envDuration("DISPATCH_REQUEST_BUDGET", &cfg.Dispatch.RequestBudget)
	envBool("DISPATCH_RACE_MODE", &cfg.Dispatch.RaceMode)

	envBoolPtr("CACHE_ENABLED", &cfg.Cache.Enabled)
	envDuration("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)
	if val := os.Getenv(EnvPrefix + "CACHE_MAX_ENTRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Cache.MaxEntries = &n
		}
	}

	envString("CREDENTIALS_DIRECTORY", &cfg.Credentials.Directory)

	envBoolPtr("EVENTS_ENABLED", &cfg.Events.Enabled)
	envString("EVENTS_BACKEND", &cfg.Events.Backend)
	envString("EVENTS_SQLITE_PATH", &cfg.Events.SQLite.Path)
	envString("EVENTS_SQLITE_DRIVER", &cfg.Events.SQLite.Driver)

	envString("NOTIFY_WEBHOOK_URL", &cfg.Notify.WebhookURL)
	envString("NOTIFY_SECRET", &cfg.Notify.Secret)

	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBoolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	for i := range cfg.Providers {
		applyProviderEnvOverrides(&cfg.Providers[i])
	}
}

// applyProviderEnvOverrides applies RELAY_PROVIDERS_<ID>_* overrides.
func applyProviderEnvOverrides(p *ProviderConfig) {
	prefix := "PROVIDERS_" + EnvKey(p.ID) + "_"
	envString(prefix+"BASE_URL", &p.BaseURL)
	envString(prefix+"MODEL", &p.Model)
	envFloat(prefix+"COST_PER_UNIT", &p.CostPerUnit)
	if val := os.Getenv(EnvPrefix + prefix + "BASELINE_LATENCY_MS"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			p.BaselineLatencyMs = n
		}
	}
}

// EnvKey upper-cases an identifier and replaces characters that are not
// valid in environment variable names.
func EnvKey(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(key string, dst **bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}
