package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"erpcore/pkg/kernel"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// sqliteConfig holds internal configuration for the SQLite event store.
type sqliteConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultSQLiteConfig() sqliteConfig {
	return sqliteConfig{
		dsn:          "eventstore.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures a SQLiteStore.
type Option func(*sqliteConfig)

func WithDSN(dsn string) Option              { return func(c *sqliteConfig) { c.dsn = dsn } }
func WithMemoryDatabase() Option             { return func(c *sqliteConfig) { c.dsn = ":memory:" } }
func WithMaxOpenConns(n int) Option          { return func(c *sqliteConfig) { c.maxOpenConns = n } }
func WithMaxIdleConns(n int) Option          { return func(c *sqliteConfig) { c.maxIdleConns = n } }
func WithWALMode(enabled bool) Option        { return func(c *sqliteConfig) { c.walMode = enabled } }
func WithAutoMigrate(enabled bool) Option    { return func(c *sqliteConfig) { c.autoMigrate = enabled } }

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id        TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	aggregate_id    TEXT NOT NULL,
	aggregate_type  TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	event_type      TEXT NOT NULL,
	event_version   INTEGER NOT NULL,
	occurred_at     TEXT NOT NULL,
	payload         TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	UNIQUE(tenant_id, aggregate_id, sequence_number)
);
CREATE INDEX IF NOT EXISTS idx_events_tenant_aggregate ON events(tenant_id, aggregate_id);
CREATE INDEX IF NOT EXISTS idx_events_tenant_occurred ON events(tenant_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS stream_aggregate_types (
	tenant_id      TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	PRIMARY KEY (tenant_id, aggregate_id)
);

CREATE TABLE IF NOT EXISTS snapshots (
	tenant_id      TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	state          TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	UNIQUE(tenant_id, aggregate_id, version)
);
`

// SQLiteStore is a relational EventStore backed by the pure-Go modernc.org/sqlite
// driver. Appends run inside a transaction that reads MAX(sequence_number),
// validates the expected version, and inserts; a unique-constraint violation
// on (tenant_id, aggregate_id, sequence_number) is mapped to Concurrency.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and, unless disabled, migrates) a SQLite-backed store.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := defaultSQLiteConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open sqlite: %w", err)
	}

	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if cfg.walMode {
		if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL; PRAGMA foreign_keys = ON;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("eventstore: set wal mode: %w", err)
		}
	}

	if cfg.autoMigrate {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("eventstore: migrate: %w", err)
		}
	}

	return store, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) LoadStream(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, tenant_id, aggregate_id, aggregate_type, sequence_number,
		       event_type, event_version, occurred_at, payload, created_at
		FROM events
		WHERE tenant_id = ? AND aggregate_id = ?
		ORDER BY sequence_number ASC`, string(tenant), string(aggregate))
	if err != nil {
		return nil, wrapBackendError(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) Append(ctx context.Context, events []UncommittedEvent, expected kernel.ExpectedVersion) ([]StoredEvent, error) {
	if storeErr, _, _, _ := validateBatch(events); storeErr != nil {
		return nil, storeErr
	}
	first := events[0]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapBackendError(err)
	}
	defer tx.Rollback()

	var existingType sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT aggregate_type FROM stream_aggregate_types WHERE tenant_id = ? AND aggregate_id = ?`,
		string(first.TenantID), string(first.AggregateID)).Scan(&existingType)
	if err != nil && err != sql.ErrNoRows {
		return nil, wrapBackendError(err)
	}
	if existingType.Valid && existingType.String != first.AggregateType {
		return nil, newStoreError(KindAggregateTypeMismatch,
			"stream %s/%s has aggregate_type %q, batch has %q", first.TenantID, first.AggregateID, existingType.String, first.AggregateType)
	}

	var currentVersion int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?`,
		string(first.TenantID), string(first.AggregateID)).Scan(&currentVersion)
	if err != nil {
		return nil, wrapBackendError(err)
	}

	if err := expected.Check(currentVersion); err != nil {
		return nil, newStoreError(KindConcurrency, "%v", err)
	}

	committed := make([]StoredEvent, 0, len(events))
	createdAt := kernel.Now()
	for i, e := range events {
		seq := currentVersion + int64(i) + 1
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (event_id, tenant_id, aggregate_id, aggregate_type, sequence_number,
			                     event_type, event_version, occurred_at, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EventID, string(e.TenantID), string(e.AggregateID), e.AggregateType, seq,
			e.EventType, e.EventVersion, e.OccurredAt.Format(time.RFC3339Nano), string(e.Payload), createdAt.Format(time.RFC3339Nano))
		if err != nil {
			if isUniqueConstraintErr(err) {
				return nil, newStoreError(KindConcurrency, "concurrent append won the race on sequence %d", seq)
			}
			return nil, wrapBackendError(err)
		}
		committed = append(committed, StoredEvent{
			Envelope: Envelope{
				EventID: e.EventID, TenantID: e.TenantID, AggregateID: e.AggregateID,
				AggregateType: e.AggregateType, SequenceNumber: seq, EventType: e.EventType,
				EventVersion: e.EventVersion, OccurredAt: e.OccurredAt, Payload: e.Payload,
			},
			CreatedAt: createdAt,
		})
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stream_aggregate_types (tenant_id, aggregate_id, aggregate_type) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, aggregate_id) DO NOTHING`,
		string(first.TenantID), string(first.AggregateID), first.AggregateType)
	if err != nil {
		return nil, wrapBackendError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapBackendError(err)
	}
	return committed, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]StoredEvent, error) {
	clauses := []string{"tenant_id = ?"}
	args := []any{string(q.Tenant)}

	if q.AggregateID != nil {
		clauses = append(clauses, "aggregate_id = ?")
		args = append(args, string(*q.AggregateID))
	}
	if q.AggregateType != "" {
		clauses = append(clauses, "aggregate_type = ?")
		args = append(args, q.AggregateType)
	}
	if q.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, q.EventType)
	}
	if q.From != nil {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, time.Unix(0, *q.From).UTC().Format(time.RFC3339Nano))
	}
	if q.To != nil {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, time.Unix(0, *q.To).UTC().Format(time.RFC3339Nano))
	}

	query := fmt.Sprintf(`
		SELECT event_id, tenant_id, aggregate_id, aggregate_type, sequence_number,
		       event_type, event_version, occurred_at, payload, created_at
		FROM events WHERE %s
		ORDER BY tenant_id, aggregate_id, sequence_number ASC`, strings.Join(clauses, " AND "))

	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapBackendError(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) GetAggregateEvents(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, limit, offset int) ([]StoredEvent, error) {
	return s.Query(ctx, Query{Tenant: tenant, AggregateID: &aggregate, Limit: limit, Offset: offset})
}

func (s *SQLiteStore) GetEventByID(ctx context.Context, tenant kernel.TenantID, eventID string) (*StoredEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, tenant_id, aggregate_id, aggregate_type, sequence_number,
		       event_type, event_version, occurred_at, payload, created_at
		FROM events WHERE tenant_id = ? AND event_id = ?`, string(tenant), eventID)

	var e StoredEvent
	var tid, aid, occurredAt, createdAt string
	if err := row.Scan(&e.EventID, &tid, &aid, &e.AggregateType, &e.SequenceNumber,
		&e.EventType, &e.EventVersion, &occurredAt, &e.Payload, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapBackendError(err)
	}
	e.TenantID = kernel.TenantID(tid)
	e.AggregateID = kernel.AggregateID(aid)
	e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]StoredEvent, error) {
	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var tid, aid, occurredAt, createdAt string
		var payload string
		if err := rows.Scan(&e.EventID, &tid, &aid, &e.AggregateType, &e.SequenceNumber,
			&e.EventType, &e.EventVersion, &occurredAt, &payload, &createdAt); err != nil {
			return nil, wrapBackendError(err)
		}
		e.TenantID = kernel.TenantID(tid)
		e.AggregateID = kernel.AggregateID(aid)
		e.Payload = []byte(payload)
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapBackendError(err)
	}
	if out == nil {
		out = []StoredEvent{}
	}
	return out, nil
}
