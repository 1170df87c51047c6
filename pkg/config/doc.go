// Package config provides configuration management for Relay.
//
// This package handles loading, validating, and watching configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - RELAY_PROVIDERS_FAST_LOCAL_BASE_URL overrides the base_url of provider "fast-local"
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// Validation collects every problem before failing:
//
//	configuration validation failed with 2 errors:
//	  - providers.fast.baseline_latency_ms: must be positive
//	  - routing.weights.cost: weights must sum to 1, got 0.900
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and hands every
// valid new configuration to a callback. The router uses it to replace the
// provider registry's static metadata without restarting.
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	providers:
//	  - id: fast-local
//	    type: simulated
//	    capabilities: [general, speed]
//	    cost_per_unit: 0.5
//	    baseline_latency_ms: 40
//	    accuracy: 0.7
//	  - id: frontier
//	    base_url: "https://api.example.com/v1"
//	    model: "frontier-large"
//	    credential: true
//	    capabilities: [general, coding, reasoning]
//	    cost_per_unit: 3
//	    baseline_latency_ms: 900
//	    accuracy: 0.95
//
//	routing:
//	  default_objective: cost
//
//	events:
//	  backend: sqlite
package config
