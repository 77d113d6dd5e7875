package projection_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/inventory"
	"erpcore/pkg/kernel"
	"erpcore/pkg/projection"
	"erpcore/pkg/readmodels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedItemStream(t *testing.T, store eventstore.EventStore, tenant kernel.TenantID, item kernel.AggregateID, quantity int) {
	t.Helper()
	ctx := context.Background()

	created, err := json.Marshal(inventory.ItemCreated{TenantID: tenant, ItemID: item, Name: "Widget"})
	require.NoError(t, err)
	adjusted, err := json.Marshal(inventory.StockAdjusted{TenantID: tenant, ItemID: item, Delta: quantity})
	require.NoError(t, err)

	_, err = store.Append(ctx, []eventstore.UncommittedEvent{
		{EventID: kernel.NewID(), TenantID: tenant, AggregateID: item, AggregateType: inventory.AggregateType, EventType: "inventory.item.created", OccurredAt: time.Now(), Payload: created},
		{EventID: kernel.NewID(), TenantID: tenant, AggregateID: item, AggregateType: inventory.AggregateType, EventType: "inventory.item.stock_adjusted", OccurredAt: time.Now(), Payload: adjusted},
	}, kernel.Any())
	require.NoError(t, err)
}

func TestRebuildService_StreamsAndAppliesAllMatchingEvents(t *testing.T) {
	tenant := kernel.NewTenantID()
	store := eventstore.NewMemoryStore()
	item1, item2 := kernel.NewAggregateID(), kernel.NewAggregateID()
	seedItemStream(t, store, tenant, item1, 5)
	seedItemStream(t, store, tenant, item2, 7)

	stock := readmodels.NewInventoryStockProjection()
	engine := projection.NewEngine(stock, projection.NewMemoryCursorStore())
	service := projection.NewRebuildService(engine, store, stock)

	_, handle := service.Start(context.Background(), tenant, []string{inventory.AggregateType}, false)
	require.NoError(t, handle.Wait(context.Background()))

	progress := handle.Progress()
	assert.True(t, progress.Done)
	assert.False(t, progress.Cancelled)
	assert.Zero(t, progress.Failed)
	assert.EqualValues(t, 4, progress.Applied)
	assert.EqualValues(t, 4, progress.Total)

	row1, ok := stock.Get(tenant, item1)
	require.True(t, ok)
	assert.EqualValues(t, 5, row1.Quantity)
	row2, ok := stock.Get(tenant, item2)
	require.True(t, ok)
	assert.EqualValues(t, 7, row2.Quantity)
}

func TestRebuildService_IsTenantScoped(t *testing.T) {
	tenantA, tenantB := kernel.NewTenantID(), kernel.NewTenantID()
	store := eventstore.NewMemoryStore()
	item := kernel.NewAggregateID()
	seedItemStream(t, store, tenantA, item, 5)
	seedItemStream(t, store, tenantB, item, 99)

	stock := readmodels.NewInventoryStockProjection()
	engine := projection.NewEngine(stock, projection.NewMemoryCursorStore())
	service := projection.NewRebuildService(engine, store, stock)

	_, handle := service.Start(context.Background(), tenantA, []string{inventory.AggregateType}, false)
	require.NoError(t, handle.Wait(context.Background()))

	row, ok := stock.Get(tenantA, item)
	require.True(t, ok)
	assert.EqualValues(t, 5, row.Quantity)

	_, ok = stock.Get(tenantB, item)
	assert.False(t, ok, "a rebuild scoped to tenant A must never touch tenant B's events or read model")
}

func TestRebuildService_DryRunAppliesContractWithoutMutatingReadModel(t *testing.T) {
	tenant := kernel.NewTenantID()
	store := eventstore.NewMemoryStore()
	item := kernel.NewAggregateID()
	seedItemStream(t, store, tenant, item, 5)

	stock := readmodels.NewInventoryStockProjection()
	engine := projection.NewEngine(stock, projection.NewMemoryCursorStore())
	service := projection.NewRebuildService(engine, store, stock)

	_, handle := service.Start(context.Background(), tenant, []string{inventory.AggregateType}, true)
	require.NoError(t, handle.Wait(context.Background()))

	progress := handle.Progress()
	assert.True(t, progress.Done)
	assert.EqualValues(t, 2, progress.Applied)
	assert.Zero(t, progress.Failed)

	_, ok := stock.Get(tenant, item)
	assert.False(t, ok, "dry_run must never call Projection.Apply or persist a cursor advance")
}

func TestRebuildService_DryRunStillReportsNonMonotonicSequenceAsFailed(t *testing.T) {
	tenant := kernel.NewTenantID()
	store := eventstore.NewMemoryStore()
	item := kernel.NewAggregateID()

	adjusted, err := json.Marshal(inventory.StockAdjusted{TenantID: tenant, ItemID: item, Delta: 1})
	require.NoError(t, err)
	_, err = store.Append(context.Background(), []eventstore.UncommittedEvent{
		{EventID: kernel.NewID(), TenantID: tenant, AggregateID: item, AggregateType: inventory.AggregateType, EventType: "inventory.item.stock_adjusted", OccurredAt: time.Now(), Payload: adjusted},
	}, kernel.Any())
	require.NoError(t, err)

	stock := readmodels.NewInventoryStockProjection()
	engine := projection.NewEngine(stock, projection.NewMemoryCursorStore())
	service := projection.NewRebuildService(engine, store, stock)

	_, handle := service.Start(context.Background(), tenant, []string{inventory.AggregateType}, true)
	require.NoError(t, handle.Wait(context.Background()))

	progress := handle.Progress()
	assert.EqualValues(t, 1, progress.Failed, "the first event for this aggregate has sequence 2, which is out of order")
}

func TestRebuildService_CancelStopsBeforeCompletion(t *testing.T) {
	tenant := kernel.NewTenantID()
	store := eventstore.NewMemoryStore()
	for i := 0; i < 5000; i++ {
		seedItemStream(t, store, tenant, kernel.NewAggregateID(), i+1)
	}

	stock := readmodels.NewInventoryStockProjection()
	engine := projection.NewEngine(stock, projection.NewMemoryCursorStore())
	service := projection.NewRebuildService(engine, store, stock)

	_, handle := service.Start(context.Background(), tenant, []string{inventory.AggregateType}, false)
	handle.Cancel()
	require.NoError(t, handle.Wait(context.Background()))

	progress := handle.Progress()
	assert.True(t, progress.Done)
	assert.True(t, progress.Cancelled)
}

func TestRebuildService_LookupAndCancelJobByID(t *testing.T) {
	tenant := kernel.NewTenantID()
	store := eventstore.NewMemoryStore()
	seedItemStream(t, store, tenant, kernel.NewAggregateID(), 3)

	stock := readmodels.NewInventoryStockProjection()
	engine := projection.NewEngine(stock, projection.NewMemoryCursorStore())
	service := projection.NewRebuildService(engine, store, stock)

	jobID, handle := service.Start(context.Background(), tenant, []string{inventory.AggregateType}, false)

	looked, ok := service.Lookup(jobID)
	require.True(t, ok)
	assert.Same(t, handle, looked)

	assert.True(t, service.CancelJob(jobID))
	assert.False(t, service.CancelJob("no-such-job"))
	require.NoError(t, handle.Wait(context.Background()))
}
