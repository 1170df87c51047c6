// Package metrics exposes Relay's Prometheus metrics.
//
// # Metrics Categories
//
//   - Request metrics: routed requests by task type and status, end-to-end
//     duration
//   - Provider metrics: health status gauge, attempts by outcome, attempt
//     latency
//   - Routing metrics: decisions by tier and objective, chain length,
//     unroutable requests, escalations
//   - Cost metrics: spend by provider and per request
//   - Cache metrics: lookups by outcome, entry count
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	monitor := monitor.NewCollector(cfg.Health, registry, collector, logger)
//	router.Handle("/metrics", collector.Handler())
//
// All metric names are prefixed with the configured namespace ("relay" by
// default). Label values are bounded by the configured providers and the
// fixed task type, tier and outcome vocabularies.
package metrics
