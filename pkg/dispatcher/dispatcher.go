// Package dispatcher implements the command pipeline: load the aggregate's
// history, rehydrate in-memory state, invoke its pure decision function,
// persist the resulting events under an expected-version guard, and publish
// them to the bus. This is the only place in the core that touches both the
// event store and the event bus.
package dispatcher

import (
	"context"
	"encoding/json"

	"erpcore/pkg/eventbus"
	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"
)

// Factory builds a fresh, "not-created" aggregate shell for (tenant, id).
// Events bring it to life; the factory never loads state itself.
type Factory func(tenant kernel.TenantID, id kernel.AggregateID) kernel.Aggregate

// Dispatcher wires the event store and event bus behind a single
// load -> rehydrate -> decide -> persist -> publish operation.
type Dispatcher struct {
	Store     eventstore.EventStore
	Bus       eventbus.EventBus
	Snapshots eventstore.SnapshotStore // optional; nil disables snapshotting
	Strategy  eventstore.SnapshotStrategy
}

// New constructs a Dispatcher with no snapshot support. Use the Snapshots/
// Strategy fields directly to opt in, since snapshots are a pure
// optimization (spec.md §9 open question, resolved: optional).
func New(store eventstore.EventStore, bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{Store: store, Bus: bus}
}

// Dispatch runs the full command pipeline for one aggregate instance.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant kernel.TenantID, id kernel.AggregateID, aggregateType string, command any, factory Factory) ([]eventstore.StoredEvent, error) {
	agg := factory(tenant, id)

	startVersion, err := d.rehydrate(ctx, tenant, id, aggregateType, agg)
	if err != nil {
		return nil, err
	}

	events, err := agg.Decide(command)
	if err != nil {
		if domainErr, ok := err.(*kernel.DomainError); ok {
			return nil, fromDomainError(domainErr)
		}
		return nil, newDispatchError(KindValidation, "%v", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	uncommitted := make([]eventstore.UncommittedEvent, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, newDispatchError(KindDeserialize, "marshal event payload: %v", err)
		}
		uncommitted = append(uncommitted, eventstore.UncommittedEvent{
			EventID:       kernel.NewID(),
			TenantID:      tenant,
			AggregateID:   id,
			AggregateType: aggregateType,
			EventType:     kernel.EventType(e),
			EventVersion:  kernel.EventVersionOf(e),
			OccurredAt:    kernel.Now(),
			Payload:       payload,
		})
	}

	expected := kernel.Exact(startVersion)
	committed, err := d.Store.Append(ctx, uncommitted, expected)
	if err != nil {
		if storeErr, ok := err.(*eventstore.StoreError); ok {
			return nil, fromStoreError(storeErr)
		}
		return nil, newDispatchError(KindStore, "%v", err)
	}

	envelopes := make([]eventstore.Envelope, len(committed))
	for i, c := range committed {
		envelopes[i] = c.Envelope
	}
	if err := d.Bus.Publish(ctx, envelopes...); err != nil {
		// Events are already committed: at-least-once delivery means a
		// retried command is naturally a no-op in the store, but the caller
		// must know downstream consumers may not have seen this batch yet.
		return committed, &DispatchError{Kind: KindPublish, Message: "events committed but publish failed", Cause: err}
	}

	return committed, nil
}

// rehydrate loads the stream, validates its invariants defense-in-depth
// (even though the store already guarantees them), applies an optional
// snapshot, and replays the remaining history into agg. It returns the
// stream's current version (the expected-version baseline for Append).
func (d *Dispatcher) rehydrate(ctx context.Context, tenant kernel.TenantID, id kernel.AggregateID, aggregateType string, agg kernel.Aggregate) (int64, error) {
	var afterVersion int64

	if d.Snapshots != nil {
		snap, err := d.Snapshots.Latest(ctx, tenant, id)
		if err != nil {
			return 0, newDispatchError(KindStore, "load snapshot: %v", err)
		}
		if _, ok := agg.(Snapshotter); ok && snap != nil {
			if err := applySnapshot(agg, snap); err != nil {
				return 0, newDispatchError(KindDeserialize, "apply snapshot: %v", err)
			}
			afterVersion = snap.Version
		}
	}

	history, err := d.Store.LoadStream(ctx, tenant, id)
	if err != nil {
		if storeErr, ok := err.(*eventstore.StoreError); ok {
			return 0, fromStoreError(storeErr)
		}
		return 0, newDispatchError(KindStore, "%v", err)
	}

	expectedNext := afterVersion + 1
	for _, e := range history {
		if e.SequenceNumber < expectedNext {
			continue // already covered by the snapshot
		}
		if e.TenantID != tenant || e.AggregateID != id {
			return 0, newDispatchError(KindTenantIsolation, "loaded event %s belongs to (%s,%s), not (%s,%s)", e.EventID, e.TenantID, e.AggregateID, tenant, id)
		}
		if e.AggregateType != aggregateType {
			return 0, newDispatchError(KindValidation, "loaded event %s has aggregate_type %q, expected %q", e.EventID, e.AggregateType, aggregateType)
		}
		if e.SequenceNumber != expectedNext {
			return 0, newDispatchError(KindValidation, "stream %s/%s has non-dense sequence: expected %d, got %d", tenant, id, expectedNext, e.SequenceNumber)
		}

		event, err := agg.DecodeEvent(e.EventType, e.Payload)
		if err != nil {
			return 0, newDispatchError(KindDeserialize, "decode event %s (%s): %v", e.EventID, e.EventType, err)
		}
		agg.Apply(event)
		expectedNext++
	}

	if len(history) > 0 {
		return history[len(history)-1].SequenceNumber, nil
	}
	return afterVersion, nil
}

// Snapshotter is implemented by aggregates that can serialize/restore their
// own state for the optional snapshot optimization.
type Snapshotter interface {
	SnapshotState() (json.RawMessage, error)
	RestoreSnapshot(state json.RawMessage) error
}

func applySnapshot(agg kernel.Aggregate, snap *eventstore.Snapshot) error {
	restorer, ok := agg.(Snapshotter)
	if !ok {
		return nil // aggregate doesn't support snapshots; fall back to full replay
	}
	return restorer.RestoreSnapshot(snap.State)
}

// MaybeSnapshot persists a snapshot of agg if d.Strategy says enough events
// have accumulated since the last one. eventsSinceLastSnapshot is the
// caller's count (e.g. len(committed) for a freshly-dispatched command, or
// tracked externally for longer-lived processes).
func (d *Dispatcher) MaybeSnapshot(ctx context.Context, tenant kernel.TenantID, aggregateType string, agg kernel.Aggregate, eventsSinceLastSnapshot int64) error {
	if d.Snapshots == nil || d.Strategy == nil {
		return nil
	}
	if !d.Strategy.ShouldSnapshot(eventsSinceLastSnapshot) {
		return nil
	}
	snapshotter, ok := agg.(Snapshotter)
	if !ok {
		return nil
	}
	state, err := snapshotter.SnapshotState()
	if err != nil {
		return newDispatchError(KindDeserialize, "serialize snapshot: %v", err)
	}
	return d.Snapshots.Save(ctx, eventstore.Snapshot{
		TenantID:      tenant,
		AggregateID:   agg.ID(),
		AggregateType: aggregateType,
		Version:       agg.Version(),
		State:         state,
		CreatedAt:     kernel.Now(),
	})
}
