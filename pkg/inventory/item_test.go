package inventory_test

import (
	"testing"

	"erpcore/pkg/inventory"
	"erpcore/pkg/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem() *inventory.Item {
	return inventory.New(kernel.NewTenantID(), kernel.NewAggregateID()).(*inventory.Item)
}

func TestItem_CreateThenAdjust(t *testing.T) {
	item := newItem()

	events, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	item.Apply(events[0])
	assert.True(t, item.Created())
	assert.Equal(t, "Widget", item.Name())
	assert.EqualValues(t, 1, item.Version())

	events, err = item.Decide(inventory.AdjustStock{Delta: 10})
	require.NoError(t, err)
	item.Apply(events[0])
	assert.EqualValues(t, 10, item.Stock())

	events, err = item.Decide(inventory.AdjustStock{Delta: -3})
	require.NoError(t, err)
	item.Apply(events[0])
	assert.EqualValues(t, 7, item.Stock())
	assert.EqualValues(t, 3, item.Version())
}

func TestItem_DecideIsPure(t *testing.T) {
	item := newItem()
	first, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	second, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 0, item.Version(), "Decide must not mutate the receiver")
}

func TestItem_CannotCreateTwice(t *testing.T) {
	item := newItem()
	events, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	item.Apply(events[0])

	_, err = item.Decide(inventory.CreateItem{Name: "Widget 2"})
	require.Error(t, err)
}

func TestItem_RejectsEmptyName(t *testing.T) {
	item := newItem()
	_, err := item.Decide(inventory.CreateItem{Name: "   "})
	require.Error(t, err)
}

func TestItem_AdjustBeforeCreateIsNotFound(t *testing.T) {
	item := newItem()
	_, err := item.Decide(inventory.AdjustStock{Delta: 1})
	require.Error(t, err)
}

func TestItem_StockCannotGoNegative(t *testing.T) {
	item := newItem()
	events, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	item.Apply(events[0])

	events, err = item.Decide(inventory.AdjustStock{Delta: 5})
	require.NoError(t, err)
	item.Apply(events[0])

	_, err = item.Decide(inventory.AdjustStock{Delta: -6})
	require.Error(t, err)
}

func TestItem_ZeroDeltaRejected(t *testing.T) {
	item := newItem()
	events, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	item.Apply(events[0])

	_, err = item.Decide(inventory.AdjustStock{Delta: 0})
	require.Error(t, err)
}

func TestItem_DecodeEventRoundTrips(t *testing.T) {
	item := newItem()
	events, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	created := events[0].(inventory.ItemCreated)

	payload := []byte(`{"tenant_id":"` + string(created.TenantID) + `","item_id":"` + string(created.ItemID) + `","name":"Widget"}`)
	decoded, err := item.DecodeEvent("inventory.item.created", payload)
	require.NoError(t, err)
	assert.Equal(t, created, decoded)
}

func TestItem_DecodeEventRejectsUnknownType(t *testing.T) {
	item := newItem()
	_, err := item.DecodeEvent("inventory.item.discontinued", []byte(`{}`))
	require.Error(t, err)
}

func TestItem_SnapshotRoundTrip(t *testing.T) {
	item := newItem()
	events, err := item.Decide(inventory.CreateItem{Name: "Widget"})
	require.NoError(t, err)
	item.Apply(events[0])
	events, err = item.Decide(inventory.AdjustStock{Delta: 4})
	require.NoError(t, err)
	item.Apply(events[0])

	state, err := item.SnapshotState()
	require.NoError(t, err)

	restored := inventory.New(kernel.NewTenantID(), kernel.NewAggregateID()).(*inventory.Item)
	require.NoError(t, restored.RestoreSnapshot(state))
	assert.Equal(t, item.Name(), restored.Name())
	assert.Equal(t, item.Stock(), restored.Stock())
	assert.Equal(t, item.Version(), restored.Version())
	assert.Equal(t, item.Created(), restored.Created())
}
