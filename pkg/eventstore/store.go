package eventstore

import (
	"context"

	"erpcore/pkg/kernel"
)

// EventStore is the append-only, tenant-scoped log contract. Both operations
// are tenant-scoped: a stream is addressed by (tenant, aggregate) together.
type EventStore interface {
	// LoadStream returns all events for (tenant, aggregate) in ascending
	// sequence order, or an empty slice if the stream does not exist.
	LoadStream(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID) ([]StoredEvent, error)

	// Append persists a batch of uncommitted events as one transaction,
	// assigning dense sequence numbers starting at current_version+1.
	// events must be non-empty and share one (tenant, aggregate, aggregate_type).
	Append(ctx context.Context, events []UncommittedEvent, expected kernel.ExpectedVersion) ([]StoredEvent, error)

	// Query implements the admin/audit query API.
	Query(ctx context.Context, q Query) ([]StoredEvent, error)

	// GetAggregateEvents is LoadStream with pagination, for the query API.
	GetAggregateEvents(ctx context.Context, tenant kernel.TenantID, aggregate kernel.AggregateID, limit, offset int) ([]StoredEvent, error)

	// GetEventByID looks up a single stored event by its id, scoped to tenant.
	GetEventByID(ctx context.Context, tenant kernel.TenantID, eventID string) (*StoredEvent, error)

	Close() error
}

// Query filters the admin/audit query API.
type Query struct {
	Tenant        kernel.TenantID
	AggregateID   *kernel.AggregateID
	AggregateType string
	EventType     string
	From, To      *int64 // unix nanos; nil = unbounded
	Limit, Offset int
}

func validateBatch(events []UncommittedEvent) (*StoreError, kernel.TenantID, kernel.AggregateID, string) {
	if len(events) == 0 {
		return newStoreError(KindInvalidAppend, "append batch must be non-empty"), "", "", ""
	}
	first := events[0]
	for _, e := range events[1:] {
		if e.TenantID != first.TenantID || e.AggregateID != first.AggregateID || e.AggregateType != first.AggregateType {
			return newStoreError(KindInvalidAppend, "append batch must share one (tenant, aggregate, aggregate_type)"), "", "", ""
		}
	}
	return nil, first.TenantID, first.AggregateID, first.AggregateType
}
