// Package projection implements the engine that folds committed envelopes
// into tenant-isolated read models: idempotent, monotonic, at-least-once
// application with cursor-based resume, plus a rebuild-from-scratch path.
// Grounded on the teacher's pkg/eventsourcing/projection.go
// ProjectionManager (Start/Rebuild/Stop) and pkg/store/checkpoint.go
// (CheckpointStore), generalized to spec.md §4.5's per-envelope contract.
package projection

import (
	"context"
	"fmt"
	"sort"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"
)

// Projection is a reader that consumes envelopes for one aggregate_type and
// maintains a tenant-scoped read model.
type Projection interface {
	// Name is this projection's identity in the cursor store.
	Name() string

	// AggregateType is the sole aggregate_type this projection handles;
	// envelopes of any other type are ignored by the engine before Apply is
	// ever called.
	AggregateType() string

	// Apply performs the projection-specific read-model update for one
	// already-validated envelope. It must not advance the cursor itself —
	// the engine does that only after Apply succeeds.
	Apply(ctx context.Context, envelope eventstore.Envelope) error
}

// ErrorKind classifies a projection-engine failure.
type ErrorKind string

const (
	KindNonMonotonicSequence ErrorKind = "non_monotonic_sequence"
	KindTenantIsolation      ErrorKind = "tenant_isolation"
	KindDeserialize          ErrorKind = "deserialize_error"
	KindApply                ErrorKind = "apply_error"
)

// Error is returned by Engine.Handle.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("projection: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("projection: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && e.Kind == other.Kind
}

// Engine drives one Projection's per-envelope contract and cursor advances.
type Engine struct {
	Projection Projection
	Cursors    CursorStore
}

// NewEngine constructs an Engine for the given projection and cursor store.
func NewEngine(p Projection, cursors CursorStore) *Engine {
	return &Engine{Projection: p, Cursors: cursors}
}

// Handle implements spec.md §4.5's per-envelope contract: ignore mismatched
// aggregate types, ignore already-applied sequences (idempotent replay),
// reject sequence 0 and, once the stream has a cursor, any sequence other
// than cursor+1 (integrity violation — the cursor is left unchanged so
// replay can retry), otherwise apply and advance the cursor to the
// envelope's sequence. A stream with no cursor yet (0) accepts any positive
// first sequence.
func (e *Engine) Handle(ctx context.Context, envelope eventstore.Envelope) error {
	if envelope.AggregateType != e.Projection.AggregateType() {
		return nil
	}
	if envelope.SequenceNumber == 0 {
		return &Error{Kind: KindNonMonotonicSequence, Message: "sequence_number must be positive"}
	}

	lastApplied, err := e.Cursors.Get(ctx, envelope.TenantID, envelope.AggregateID, e.Projection.Name())
	if err != nil {
		return &Error{Kind: KindApply, Message: "load cursor", Cause: err}
	}

	if envelope.SequenceNumber <= lastApplied {
		return nil // idempotent replay
	}
	if lastApplied > 0 && envelope.SequenceNumber != lastApplied+1 {
		return &Error{Kind: KindNonMonotonicSequence,
			Message: fmt.Sprintf("expected sequence %d, got %d", lastApplied+1, envelope.SequenceNumber)}
	}

	if err := e.Projection.Apply(ctx, envelope); err != nil {
		return &Error{Kind: KindApply, Message: "projection apply failed", Cause: err}
	}

	if err := e.Cursors.Advance(ctx, envelope.TenantID, envelope.AggregateID, e.Projection.Name(), envelope.SequenceNumber); err != nil {
		return &Error{Kind: KindApply, Message: "advance cursor", Cause: err}
	}
	return nil
}

// RebuildFromScratch clears the read-model slice and this projection's
// cursors for every tenant that appears in envelopes (other tenants are left
// untouched), then deterministically replays the given
// envelopes sorted by (tenant, aggregate, sequence).
func (e *Engine) RebuildFromScratch(ctx context.Context, envelopes []eventstore.Envelope, tenantStore interface {
	ClearTenant(ctx context.Context, tenant kernel.TenantID) error
}) error {
	tenants := make(map[kernel.TenantID]struct{})
	for _, env := range envelopes {
		tenants[env.TenantID] = struct{}{}
	}
	for tenant := range tenants {
		if err := tenantStore.ClearTenant(ctx, tenant); err != nil {
			return err
		}
		if err := e.Cursors.ClearTenant(ctx, tenant, e.Projection.Name()); err != nil {
			return err
		}
	}

	sorted := make([]eventstore.Envelope, len(envelopes))
	copy(sorted, envelopes)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		if a.AggregateID != b.AggregateID {
			return a.AggregateID < b.AggregateID
		}
		return a.SequenceNumber < b.SequenceNumber
	})

	for _, env := range sorted {
		if err := e.Handle(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
