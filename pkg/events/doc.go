// Package events records one observability event per routing request.
//
// The router emits events through a Sink. Emit never blocks and never
// fails from the caller's point of view: the Recorder queues events for a
// background writer and drops them when the queue is full.
//
// Storage backends:
//
//   - memory: a bounded in-process ring, queryable
//   - sqlite: a durable store using the pure-Go "sqlite" driver or the cgo
//     "sqlite3" driver
//   - log: no storage, one structured log line per event
//
// Stored events can be filtered with Query, exported as JSON, JSON lines
// or CSV, and pruned on a cron schedule by Pruner.
package events
