package projection

import (
	"context"
	"database/sql"
	"sync"

	"erpcore/pkg/kernel"
)

// CursorStore maps (tenant, aggregate, projection_name) -> last_applied_sequence.
// Ensures idempotency and enables resume after restart.
type CursorStore interface {
	Get(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, projectionName string) (int64, error)
	Advance(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, projectionName string, sequence int64) error
	ClearTenant(ctx context.Context, tenant kernel.TenantID, projectionName string) error
}

type cursorKey struct {
	tenant         kernel.TenantID
	aggregate      kernel.AggregateID
	projectionName string
}

// MemoryCursorStore is an in-memory CursorStore guarded by a read-write lock
// (spec.md §5: "the projection cursor map is protected by a read-write
// lock; writes are short").
type MemoryCursorStore struct {
	mu   sync.RWMutex
	byID map[cursorKey]int64
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{byID: make(map[cursorKey]int64)}
}

func (s *MemoryCursorStore) Get(_ context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, projectionName string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[cursorKey{tenant, aggregate, projectionName}], nil
}

func (s *MemoryCursorStore) Advance(_ context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, projectionName string, sequence int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cursorKey{tenant, aggregate, projectionName}] = sequence
	return nil
}

func (s *MemoryCursorStore) ClearTenant(_ context.Context, tenant kernel.TenantID, projectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.byID {
		if key.tenant == tenant && key.projectionName == projectionName {
			delete(s.byID, key)
		}
	}
	return nil
}

// SQLiteCursorStore persists cursors in a relational backend, surviving
// restarts so crash recovery resumes exactly where it left off.
type SQLiteCursorStore struct {
	db *sql.DB
}

const cursorSchema = `
CREATE TABLE IF NOT EXISTS projection_cursors (
	tenant_id       TEXT NOT NULL,
	aggregate_id    TEXT NOT NULL,
	projection_name TEXT NOT NULL,
	last_applied    INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, aggregate_id, projection_name)
);
`

// NewSQLiteCursorStore migrates the cursor table (if absent) into db and
// returns a store over it. db is expected to be shared with the rest of the
// projection's tenant store, matching the teacher's single-database style.
func NewSQLiteCursorStore(db *sql.DB) (*SQLiteCursorStore, error) {
	if _, err := db.Exec(cursorSchema); err != nil {
		return nil, err
	}
	return &SQLiteCursorStore{db: db}, nil
}

func (s *SQLiteCursorStore) Get(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, projectionName string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_applied FROM projection_cursors
		WHERE tenant_id = ? AND aggregate_id = ? AND projection_name = ?`,
		string(tenant), string(aggregate), projectionName).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *SQLiteCursorStore) Advance(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, projectionName string, sequence int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_cursors (tenant_id, aggregate_id, projection_name, last_applied)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, aggregate_id, projection_name) DO UPDATE SET last_applied = excluded.last_applied`,
		string(tenant), string(aggregate), projectionName, sequence)
	return err
}

func (s *SQLiteCursorStore) ClearTenant(ctx context.Context, tenant kernel.TenantID, projectionName string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM projection_cursors WHERE tenant_id = ? AND projection_name = ?`,
		string(tenant), projectionName)
	return err
}
