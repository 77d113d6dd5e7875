package invoicing_test

import (
	"testing"

	"erpcore/pkg/invoicing"
	"erpcore/pkg/kernel"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoice() *invoicing.Invoice {
	return invoicing.New(kernel.NewTenantID(), kernel.NewAggregateID()).(*invoicing.Invoice)
}

func issue(t *testing.T, inv *invoicing.Invoice, partyID kernel.AggregateID, qty int64, unitPrice string) {
	t.Helper()
	events, err := inv.Decide(invoicing.IssueInvoice{
		PartyID: partyID,
		Lines:   []invoicing.CommandLine{{Quantity: qty, UnitPrice: decimal.RequireFromString(unitPrice)}},
		DueDate: "2026-12-31T00:00:00Z",
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	inv.Apply(events[0])
}

func TestInvoice_IssueComputesTotalCents(t *testing.T) {
	inv := newInvoice()
	party := kernel.NewAggregateID()
	issue(t, inv, party, 2, "49.99")

	assert.EqualValues(t, 9998, inv.TotalCents())
	assert.Equal(t, invoicing.StatusOpen, inv.Status())
	assert.Equal(t, party, inv.PartyID())
	assert.EqualValues(t, 9998, inv.OutstandingCents())
}

func TestInvoice_PartialThenFullPayment(t *testing.T) {
	inv := newInvoice()
	issue(t, inv, kernel.NewAggregateID(), 1, "99.98")

	events, err := inv.Decide(invoicing.RegisterPayment{Amount: decimal.RequireFromString("50.00")})
	require.NoError(t, err)
	inv.Apply(events[0])
	assert.Equal(t, invoicing.StatusOpen, inv.Status())
	assert.EqualValues(t, 4998, inv.OutstandingCents())

	events, err = inv.Decide(invoicing.RegisterPayment{Amount: decimal.RequireFromString("49.98")})
	require.NoError(t, err)
	inv.Apply(events[0])
	assert.Equal(t, invoicing.StatusPaid, inv.Status())
	assert.EqualValues(t, 0, inv.OutstandingCents())
}

func TestInvoice_CannotOverpay(t *testing.T) {
	inv := newInvoice()
	issue(t, inv, kernel.NewAggregateID(), 1, "10.00")

	_, err := inv.Decide(invoicing.RegisterPayment{Amount: decimal.RequireFromString("10.01")})
	require.Error(t, err)
}

func TestInvoice_CannotPayVoidInvoice(t *testing.T) {
	inv := newInvoice()
	issue(t, inv, kernel.NewAggregateID(), 1, "10.00")

	events, err := inv.Decide(invoicing.VoidInvoice{Reason: "duplicate"})
	require.NoError(t, err)
	inv.Apply(events[0])
	assert.Equal(t, invoicing.StatusVoid, inv.Status())

	_, err = inv.Decide(invoicing.RegisterPayment{Amount: decimal.RequireFromString("1.00")})
	require.Error(t, err)
}

func TestInvoice_CannotVoidTwice(t *testing.T) {
	inv := newInvoice()
	issue(t, inv, kernel.NewAggregateID(), 1, "10.00")

	events, err := inv.Decide(invoicing.VoidInvoice{Reason: "duplicate"})
	require.NoError(t, err)
	inv.Apply(events[0])

	_, err = inv.Decide(invoicing.VoidInvoice{Reason: "again"})
	require.Error(t, err)
}

func TestInvoice_RejectsEmptyLines(t *testing.T) {
	inv := newInvoice()
	_, err := inv.Decide(invoicing.IssueInvoice{PartyID: kernel.NewAggregateID(), Lines: nil})
	require.Error(t, err)
}

func TestInvoice_RejectsNonPositiveQuantityOrPrice(t *testing.T) {
	inv := newInvoice()
	_, err := inv.Decide(invoicing.IssueInvoice{
		PartyID: kernel.NewAggregateID(),
		Lines:   []invoicing.CommandLine{{Quantity: 0, UnitPrice: decimal.RequireFromString("1.00")}},
	})
	require.Error(t, err)

	_, err = inv.Decide(invoicing.IssueInvoice{
		PartyID: kernel.NewAggregateID(),
		Lines:   []invoicing.CommandLine{{Quantity: 1, UnitPrice: decimal.Zero}},
	})
	require.Error(t, err)
}

func TestInvoice_DecideIsPure(t *testing.T) {
	inv := newInvoice()
	party := kernel.NewAggregateID()
	first, err := inv.Decide(invoicing.IssueInvoice{
		PartyID: party,
		Lines:   []invoicing.CommandLine{{Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")}},
	})
	require.NoError(t, err)
	second, err := inv.Decide(invoicing.IssueInvoice{
		PartyID: party,
		Lines:   []invoicing.CommandLine{{Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")}},
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 0, inv.Version())
}

func TestInvoice_SnapshotRoundTrip(t *testing.T) {
	inv := newInvoice()
	issue(t, inv, kernel.NewAggregateID(), 2, "10.00")
	events, err := inv.Decide(invoicing.RegisterPayment{Amount: decimal.RequireFromString("5.00")})
	require.NoError(t, err)
	inv.Apply(events[0])

	state, err := inv.SnapshotState()
	require.NoError(t, err)

	restored := invoicing.New(kernel.NewTenantID(), kernel.NewAggregateID()).(*invoicing.Invoice)
	require.NoError(t, restored.RestoreSnapshot(state))
	assert.Equal(t, inv.TotalCents(), restored.TotalCents())
	assert.Equal(t, inv.PaidCents(), restored.PaidCents())
	assert.Equal(t, inv.Status(), restored.Status())
	assert.Equal(t, inv.Version(), restored.Version())
}
