// Package telemetry groups Relay's observability packages.
//
//   - logging: slog logger with credential redaction and request-scoped
//     fields
//   - metrics: Prometheus collector, also the health monitor's observer
//   - tracing: OpenTelemetry tracer provider and HTTP propagation
//   - health: liveness, readiness and version probes
package telemetry
