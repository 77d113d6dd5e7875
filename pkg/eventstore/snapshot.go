package eventstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"erpcore/pkg/kernel"
)

// Snapshot is a serialized aggregate state at a specific version, tenant-scoped.
type Snapshot struct {
	TenantID      kernel.TenantID
	AggregateID   kernel.AggregateID
	AggregateType string
	Version       int64
	State         []byte // JSON-shaped aggregate state
	CreatedAt     time.Time
}

// SnapshotStore persists (tenant, aggregate, version) -> state. Snapshots are
// a pure optimization: the dispatcher's Load path prefers the latest
// snapshot plus events after it, but replay from zero must always produce
// the same state.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID) (*Snapshot, error)
}

// SnapshotStrategy decides whether a fresh snapshot should be taken after an
// append of eventsSinceLastSnapshot events.
type SnapshotStrategy interface {
	ShouldSnapshot(eventsSinceLastSnapshot int64) bool
}

// IntervalSnapshotStrategy snapshots every N events; Interval <= 0 disables
// snapshotting entirely.
type IntervalSnapshotStrategy struct {
	Interval int64
}

func (s IntervalSnapshotStrategy) ShouldSnapshot(eventsSinceLastSnapshot int64) bool {
	if s.Interval <= 0 {
		return false
	}
	return eventsSinceLastSnapshot >= s.Interval
}

type memorySnapshotKey struct {
	tenant    kernel.TenantID
	aggregate kernel.AggregateID
}

// MemorySnapshotStore is an in-memory SnapshotStore keeping only the latest
// snapshot per stream.
type MemorySnapshotStore struct {
	mu   sync.RWMutex
	byID map[memorySnapshotKey]Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{byID: make(map[memorySnapshotKey]Snapshot)}
}

func (s *MemorySnapshotStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memorySnapshotKey{snap.TenantID, snap.AggregateID}
	if existing, ok := s.byID[key]; ok && existing.Version >= snap.Version {
		return nil
	}
	s.byID[key] = snap
	return nil
}

func (s *MemorySnapshotStore) Latest(_ context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[memorySnapshotKey{tenant, aggregate}]
	if !ok {
		return nil, nil
	}
	out := snap
	return &out, nil
}

// SQLiteSnapshotStore persists snapshots in the same database as the event
// store, matching the `snapshots` table defined in the schema.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

func NewSQLiteSnapshotStore(db *sql.DB) *SQLiteSnapshotStore {
	return &SQLiteSnapshotStore{db: db}
}

func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (tenant_id, aggregate_id, aggregate_type, version, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, aggregate_id, version) DO NOTHING`,
		string(snap.TenantID), string(snap.AggregateID), snap.AggregateType, snap.Version,
		string(snap.State), kernel.Now().Format(time.RFC3339Nano))
	if err != nil {
		return wrapBackendError(err)
	}
	return nil
}

func (s *SQLiteSnapshotStore) Latest(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT aggregate_type, version, state, created_at FROM snapshots
		WHERE tenant_id = ? AND aggregate_id = ?
		ORDER BY version DESC LIMIT 1`, string(tenant), string(aggregate))

	var snap Snapshot
	var state, createdAt string
	if err := row.Scan(&snap.AggregateType, &snap.Version, &state, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapBackendError(err)
	}
	snap.TenantID = tenant
	snap.AggregateID = aggregate
	snap.State = []byte(state)
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &snap, nil
}
