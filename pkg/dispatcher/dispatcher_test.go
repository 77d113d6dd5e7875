package dispatcher_test

import (
	"context"
	"testing"

	"erpcore/pkg/dispatcher"
	"erpcore/pkg/eventbus"
	"erpcore/pkg/eventstore"
	"erpcore/pkg/inventory"
	"erpcore/pkg/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(eventstore.NewMemoryStore(), eventbus.NewMemoryBus())
}

func TestDispatch_CreateThenAdjustPersistsDenseVersions(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()
	tenant, id := kernel.NewTenantID(), kernel.NewAggregateID()

	committed, err := d.Dispatch(ctx, tenant, id, inventory.AggregateType, inventory.CreateItem{Name: "Widget"}, inventory.New)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.EqualValues(t, 1, committed[0].SequenceNumber)

	committed, err = d.Dispatch(ctx, tenant, id, inventory.AggregateType, inventory.AdjustStock{Delta: 5}, inventory.New)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.EqualValues(t, 2, committed[0].SequenceNumber)
}

func TestDispatch_RejectsInvalidCommandWithoutTouchingStore(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()
	tenant, id := kernel.NewTenantID(), kernel.NewAggregateID()

	_, err := d.Dispatch(ctx, tenant, id, inventory.AggregateType, inventory.AdjustStock{Delta: 1}, inventory.New)
	require.Error(t, err)
	dispErr, ok := err.(*dispatcher.DispatchError)
	require.True(t, ok)
	assert.Equal(t, dispatcher.KindNotFound, dispErr.Kind)

	stream, err := d.Store.LoadStream(ctx, tenant, id)
	require.NoError(t, err)
	assert.Empty(t, stream)
}

func TestDispatch_ConcurrentCommandsOneWinsOneConflicts(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()
	tenant, id := kernel.NewTenantID(), kernel.NewAggregateID()
	_, err := d.Dispatch(ctx, tenant, id, inventory.AggregateType, inventory.CreateItem{Name: "Widget"}, inventory.New)
	require.NoError(t, err)

	// Two commands race from the same starting version 1: the first one,
	// dispatched here, wins and commits sequence 2.
	first, err := d.Dispatch(ctx, tenant, id, inventory.AggregateType, inventory.AdjustStock{Delta: 1}, inventory.New)
	require.NoError(t, err)
	assert.EqualValues(t, 2, first[0].SequenceNumber)

	// Manually replay the race: append directly at the stale expected
	// version to force the conflict path the dispatcher maps to KindConcurrency.
	_, err = d.Store.Append(ctx, []eventstore.UncommittedEvent{{
		EventID: kernel.NewID(), TenantID: tenant, AggregateID: id,
		AggregateType: inventory.AggregateType, EventType: "inventory.item.stock_adjusted",
		EventVersion: 1, OccurredAt: kernel.Now(), Payload: []byte(`{}`),
	}}, kernel.Exact(1))
	require.Error(t, err)
}

func TestDispatch_TenantIsolation(t *testing.T) {
	d := newDispatcher()
	ctx := context.Background()
	tenantA, tenantB := kernel.NewTenantID(), kernel.NewTenantID()
	id := kernel.NewAggregateID()

	_, err := d.Dispatch(ctx, tenantA, id, inventory.AggregateType, inventory.CreateItem{Name: "A's widget"}, inventory.New)
	require.NoError(t, err)

	// tenantB dispatching against the same aggregate id starts an
	// independent stream rather than colliding with tenantA's history.
	_, err = d.Dispatch(ctx, tenantB, id, inventory.AggregateType, inventory.CreateItem{Name: "B's widget"}, inventory.New)
	require.NoError(t, err)

	streamA, err := d.Store.LoadStream(ctx, tenantA, id)
	require.NoError(t, err)
	streamB, err := d.Store.LoadStream(ctx, tenantB, id)
	require.NoError(t, err)
	require.Len(t, streamA, 1)
	require.Len(t, streamB, 1)
	assert.NotEqual(t, streamA[0].Payload, streamB[0].Payload)
}

func TestDispatch_PublishesCommittedEnvelopesToTheBus(t *testing.T) {
	store := eventstore.NewMemoryStore()
	bus := eventbus.NewMemoryBus()
	d := dispatcher.New(store, bus)
	ctx := context.Background()
	tenant, id := kernel.NewTenantID(), kernel.NewAggregateID()

	sub, err := bus.Subscribe(ctx, eventbus.SubscribeOptions{Tenant: tenant})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = d.Dispatch(ctx, tenant, id, inventory.AggregateType, inventory.CreateItem{Name: "Widget"}, inventory.New)
	require.NoError(t, err)

	delivery, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inventory.item.created", delivery.Envelope.EventType)
	require.NoError(t, sub.Ack(ctx, delivery))
}
