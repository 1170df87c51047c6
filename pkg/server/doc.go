// Package server is the HTTP front end of the router.
//
// # Endpoints
//
//	POST /v1/route           classify, route and dispatch a payload
//	POST /v1/route/explain   classification and ranked chain, no dispatch
//	GET  /v1/providers       registry snapshot with derived health
//	GET  /v1/stats           routing and cache counters
//	GET  /health             liveness probe
//	GET  /ready              readiness probe
//	GET  /version            build information
//	GET  /metrics            Prometheus exposition
//
// # Errors
//
// Failed requests answer with an ErrorResponse. The status follows the
// error class:
//
//	400  invalid request
//	499  caller went away
//	502  every candidate failed (attempts included)
//	503  no eligible provider (exclusions included)
//	504  request budget exhausted (attempts included)
//	500  anything else, with a generic message
//
// # Request IDs
//
// A caller-supplied X-Request-ID is used as the request id; otherwise one
// is generated. Either way it is echoed in the response header, returned
// in the body and attached to every log line for the request.
//
// # Usage
//
//	srv, err := server.New(cfg.Server, server.Options{
//	    Service:   svc,
//	    Providers: reg,
//	    Routing:   engine,
//	    Cache:     responses,
//	    Health:    checker,
//	    Metrics:   collector.Handler(),
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
package server
