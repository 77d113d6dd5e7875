package eventstore_test

import (
	"context"
	"testing"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *eventstore.SQLiteStore {
	t.Helper()
	store, err := eventstore.NewSQLiteStore(
		eventstore.WithMemoryDatabase(),
		eventstore.WithWALMode(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_AppendAndLoadStream(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	tenant, aggregate := kernel.NewTenantID(), kernel.NewAggregateID()

	committed, err := store.Append(ctx, uncommitted(tenant, aggregate, "inventory.item", "inventory.item.created", 1), kernel.Exact(0))
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.EqualValues(t, 1, committed[0].SequenceNumber)

	stream, err := store.LoadStream(ctx, tenant, aggregate)
	require.NoError(t, err)
	require.Len(t, stream, 1)
	assert.Equal(t, committed[0].EventID, stream[0].EventID)
}

func TestSQLiteStore_ConcurrencyConflict(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	tenant, aggregate := kernel.NewTenantID(), kernel.NewAggregateID()

	_, err := store.Append(ctx, uncommitted(tenant, aggregate, "inventory.item", "inventory.item.created", 1), kernel.Exact(0))
	require.NoError(t, err)

	_, err = store.Append(ctx, uncommitted(tenant, aggregate, "inventory.item", "inventory.item.stock_adjusted", 1), kernel.Exact(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, eventstore.ErrConcurrency)
}

func TestSQLiteStore_GetEventByID(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	tenant, aggregate := kernel.NewTenantID(), kernel.NewAggregateID()

	committed, err := store.Append(ctx, uncommitted(tenant, aggregate, "inventory.item", "inventory.item.created", 1), kernel.Exact(0))
	require.NoError(t, err)

	found, err := store.GetEventByID(ctx, tenant, committed[0].EventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, committed[0].EventID, found.EventID)

	missing, err := store.GetEventByID(ctx, kernel.NewTenantID(), committed[0].EventID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
