// Package health provides the liveness, readiness and version probes.
//
// Liveness (/health) only says the process is up. Readiness (/ready) runs
// every registered check concurrently, each bounded by the checker
// timeout, and answers 503 when any fails:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("providers", health.ProvidersCheck(registry))
//	checker.RegisterCheck("events", health.PingCheck(store))
//
//	r.Get("/health", checker.LivenessHandler())
//	r.Get("/ready", checker.ReadinessHandler())
//	r.Get("/version", health.VersionHandler(health.NewVersionInfo(version, commit, date)))
//
// ProvidersCheck fails only when every provider is unavailable; a degraded
// provider is still routable.
package health
