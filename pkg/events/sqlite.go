package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver (cgo)
	_ "modernc.org/sqlite"          // "sqlite" driver (pure Go)

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/types"
)

// SQLite driver names accepted in SQLiteConfig.Driver.
const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// SQLiteStorage is a durable event store. It works with either the pure-Go
// modernc driver or the cgo mattn driver.
type SQLiteStorage struct {
	db     *sql.DB
	driver string
	path   string
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at cfg.Path and
// applies the schema.
func NewSQLiteStorage(cfg config.SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultEventsSQLitePath
	}
	if cfg.Driver == "" {
		cfg.Driver = config.DefaultEventsSQLiteDriver
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = config.DefaultEventsBusyTimeout
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverCgo {
		return nil, newStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", cfg.Driver))
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newStorageError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}
	// Single writer; pragmas below are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{
		db:     db,
		driver: cfg.Driver,
		path:   cfg.Path,
		logger: logger.With("component", "events.sqlite"),
	}
	if err := s.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("sqlite event store opened", "path", cfg.Path, "driver", cfg.Driver)
	return s, nil
}

func (s *SQLiteStorage) initialize(busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return newStorageError("sqlite", "pragma", err)
		}
	}

	if _, err := s.db.Exec(schema); err != nil {
		return newStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion, time.Now().UnixMilli()); err != nil {
		return newStorageError("sqlite", "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return newStorageError("sqlite", "get_schema_version", err)
	}
	if version.Int64 != SchemaVersion {
		return newStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}

// Store implements Storage.
func (s *SQLiteStorage) Store(ctx context.Context, e *Event) error {
	attempts, err := json.Marshal(e.Attempts)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, string(e.TaskType), e.Confidence, e.CandidatesConsidered,
		nullString(e.SelectedProvider), e.Outcome, e.TotalLatencyMs, e.TotalCost,
		nullString(string(e.Tier)), nullString(string(e.Objective)),
		e.CacheHit, nullString(e.Cache), string(attempts), nullString(e.Error),
		e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return newStorageError("sqlite", "store", err)
	}
	return nil
}

// Query implements Storage.
func (s *SQLiteStorage) Query(ctx context.Context, q *Query) ([]*Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhereClause(q)
	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}
	stmt := "SELECT " + eventColumns + " FROM events" + where +
		fmt.Sprintf(" ORDER BY timestamp_ms %s, rowid %s LIMIT %d OFFSET %d", order, order, q.limit(), q.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, newStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	out := []*Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, newStorageError("sqlite", "scan", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", "query", err)
	}
	return out, nil
}

// Count implements Storage.
func (s *SQLiteStorage) Count(ctx context.Context, q *Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	where, args := buildWhereClause(q)

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&n); err != nil {
		return 0, newStorageError("sqlite", "count", err)
	}
	return n, nil
}

// DeleteBefore implements Storage.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp_ms < ?", t.UnixMilli())
	if err != nil {
		return 0, newStorageError("sqlite", "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Ping implements Storage.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return newStorageError("sqlite", "close", err)
	}
	s.logger.Info("sqlite event store closed")
	return nil
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(q *Query) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if q.Since != nil {
		add("timestamp_ms >= ?", q.Since.UnixMilli())
	}
	if q.Until != nil {
		add("timestamp_ms < ?", q.Until.UnixMilli())
	}
	if q.RequestID != "" {
		add("request_id = ?", q.RequestID)
	}
	if q.TaskType != "" {
		add("task_type = ?", string(q.TaskType))
	}
	if q.Provider != "" {
		add("selected_provider = ?", q.Provider)
	}
	if q.Outcome != "" {
		add("outcome = ?", q.Outcome)
	}
	if q.Tier != "" {
		add("tier = ?", string(q.Tier))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e                                   Event
		taskType                            string
		provider, tier, objective, cacheStr sql.NullString
		attempts, errText                   sql.NullString
		cacheHit                            bool
		timestampMs                         int64
	)
	err := rows.Scan(
		&e.ID, &e.RequestID, &taskType, &e.Confidence, &e.CandidatesConsidered,
		&provider, &e.Outcome, &e.TotalLatencyMs, &e.TotalCost, &tier, &objective,
		&cacheHit, &cacheStr, &attempts, &errText, &timestampMs,
	)
	if err != nil {
		return nil, err
	}

	e.TaskType = types.TaskType(taskType)
	e.SelectedProvider = provider.String
	e.Tier = types.Tier(tier.String)
	e.Objective = types.Objective(objective.String)
	e.CacheHit = cacheHit
	e.Cache = cacheStr.String
	e.Error = errText.String
	e.Timestamp = time.UnixMilli(timestampMs).UTC()

	if attempts.Valid && attempts.String != "" && attempts.String != "null" {
		if err := json.Unmarshal([]byte(attempts.String), &e.Attempts); err != nil {
			return nil, errors.Join(errors.New("corrupt attempts column"), err)
		}
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
