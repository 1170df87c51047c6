package events

// SchemaVersion is the current event database schema version.
const SchemaVersion = 1

// Timestamps are stored as unix milliseconds so both sqlite drivers read
// them back identically.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    task_type TEXT NOT NULL,
    confidence REAL NOT NULL,
    candidates_considered INTEGER NOT NULL,
    selected_provider TEXT,
    outcome TEXT NOT NULL,
    total_latency_ms INTEGER NOT NULL,
    total_cost REAL NOT NULL,
    tier TEXT,
    objective TEXT,
    cache_hit INTEGER NOT NULL,
    cache TEXT,
    attempts TEXT,
    error TEXT,
    timestamp_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_events_request_id ON events(request_id);
CREATE INDEX IF NOT EXISTS idx_events_provider ON events(selected_provider);
CREATE INDEX IF NOT EXISTS idx_events_outcome ON events(outcome);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

const insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`

const getSchemaVersion = `SELECT MAX(version) FROM schema_version`

const eventColumns = `id, request_id, task_type, confidence, candidates_considered,
    selected_provider, outcome, total_latency_ms, total_cost, tier, objective,
    cache_hit, cache, attempts, error, timestamp_ms`
