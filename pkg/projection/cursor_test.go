package projection_test

import (
	"context"
	"database/sql"
	"testing"

	"erpcore/pkg/kernel"
	"erpcore/pkg/projection"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCursorDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteCursorStore_GetAdvanceRoundTrip(t *testing.T) {
	store, err := projection.NewSQLiteCursorStore(newTestCursorDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	tenant, aggregate := kernel.NewTenantID(), kernel.NewAggregateID()

	seq, err := store.Get(ctx, tenant, aggregate, "inventory_stock")
	require.NoError(t, err)
	assert.EqualValues(t, 0, seq, "unseen cursor starts at zero")

	require.NoError(t, store.Advance(ctx, tenant, aggregate, "inventory_stock", 3))
	seq, err = store.Get(ctx, tenant, aggregate, "inventory_stock")
	require.NoError(t, err)
	assert.EqualValues(t, 3, seq)

	require.NoError(t, store.Advance(ctx, tenant, aggregate, "inventory_stock", 7))
	seq, err = store.Get(ctx, tenant, aggregate, "inventory_stock")
	require.NoError(t, err)
	assert.EqualValues(t, 7, seq, "advancing overwrites rather than inserting a duplicate row")
}

func TestSQLiteCursorStore_ClearTenantOnlyAffectsNamedProjection(t *testing.T) {
	store, err := projection.NewSQLiteCursorStore(newTestCursorDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	tenant, aggregate := kernel.NewTenantID(), kernel.NewAggregateID()

	require.NoError(t, store.Advance(ctx, tenant, aggregate, "inventory_stock", 5))
	require.NoError(t, store.Advance(ctx, tenant, aggregate, "open_invoices", 9))

	require.NoError(t, store.ClearTenant(ctx, tenant, "inventory_stock"))

	seq, err := store.Get(ctx, tenant, aggregate, "inventory_stock")
	require.NoError(t, err)
	assert.EqualValues(t, 0, seq)

	seq, err = store.Get(ctx, tenant, aggregate, "open_invoices")
	require.NoError(t, err)
	assert.EqualValues(t, 9, seq, "clearing one projection's cursors must not touch another's")
}
