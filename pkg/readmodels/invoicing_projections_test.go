package readmodels_test

import (
	"context"
	"encoding/json"
	"testing"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/invoicing"
	"erpcore/pkg/kernel"
	"erpcore/pkg/readmodels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, tenant kernel.TenantID, invoice kernel.AggregateID, seq int64, eventType string, event any) eventstore.Envelope {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return eventstore.Envelope{
		EventID: kernel.NewID(), TenantID: tenant, AggregateID: invoice,
		AggregateType: invoicing.AggregateType, SequenceNumber: seq,
		EventType: eventType, Payload: payload,
	}
}

func TestOpenInvoicesProjection_RowDroppedOnceFullyPaid(t *testing.T) {
	tenant, invoice, party := kernel.NewTenantID(), kernel.NewAggregateID(), kernel.NewAggregateID()
	ctx := context.Background()
	p := readmodels.NewOpenInvoicesProjection()

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoice, 1, "invoicing.invoice.issued",
		invoicing.InvoiceIssued{TenantID: tenant, InvoiceID: invoice, PartyID: party, TotalCents: 9998})))
	assert.Len(t, p.List(tenant), 1)

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoice, 2, "invoicing.invoice.payment_registered",
		invoicing.PaymentRegistered{TenantID: tenant, InvoiceID: invoice, AmountCents: 5000, NewPaidCents: 5000})))
	rows := p.List(tenant)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 4998, rows[0].OutstandingCents)

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoice, 3, "invoicing.invoice.payment_registered",
		invoicing.PaymentRegistered{TenantID: tenant, InvoiceID: invoice, AmountCents: 4998, NewPaidCents: 9998})))
	assert.Empty(t, p.List(tenant), "invoice row must be dropped once fully paid")
}

func TestOpenInvoicesProjection_RowDroppedOnVoid(t *testing.T) {
	tenant, invoice, party := kernel.NewTenantID(), kernel.NewAggregateID(), kernel.NewAggregateID()
	ctx := context.Background()
	p := readmodels.NewOpenInvoicesProjection()

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoice, 1, "invoicing.invoice.issued",
		invoicing.InvoiceIssued{TenantID: tenant, InvoiceID: invoice, PartyID: party, TotalCents: 1000})))
	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoice, 2, "invoicing.invoice.voided",
		invoicing.InvoiceVoided{TenantID: tenant, InvoiceID: invoice, Reason: "duplicate"})))

	assert.Empty(t, p.List(tenant))
}

func TestCustomerBalanceProjection_TracksOutstandingPerParty(t *testing.T) {
	tenant, party := kernel.NewTenantID(), kernel.NewAggregateID()
	invoiceA, invoiceB := kernel.NewAggregateID(), kernel.NewAggregateID()
	ctx := context.Background()
	p := readmodels.NewCustomerBalanceProjection()

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoiceA, 1, "invoicing.invoice.issued",
		invoicing.InvoiceIssued{TenantID: tenant, InvoiceID: invoiceA, PartyID: party, TotalCents: 1000})))
	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoiceB, 1, "invoicing.invoice.issued",
		invoicing.InvoiceIssued{TenantID: tenant, InvoiceID: invoiceB, PartyID: party, TotalCents: 500})))
	assert.EqualValues(t, 1500, p.Get(tenant, party))

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoiceA, 2, "invoicing.invoice.payment_registered",
		invoicing.PaymentRegistered{TenantID: tenant, InvoiceID: invoiceA, AmountCents: 400, NewPaidCents: 400})))
	assert.EqualValues(t, 1100, p.Get(tenant, party))

	require.NoError(t, p.Apply(ctx, envelope(t, tenant, invoiceB, 2, "invoicing.invoice.voided",
		invoicing.InvoiceVoided{TenantID: tenant, InvoiceID: invoiceB, Reason: "cancelled"})))
	assert.EqualValues(t, 600, p.Get(tenant, party), "voiding invoiceB removes its remaining 500 from the balance")
}

func TestCustomerBalanceProjection_TenantIsolated(t *testing.T) {
	tenantA, tenantB := kernel.NewTenantID(), kernel.NewTenantID()
	party := kernel.NewAggregateID()
	invoice := kernel.NewAggregateID()
	ctx := context.Background()
	p := readmodels.NewCustomerBalanceProjection()

	require.NoError(t, p.Apply(ctx, envelope(t, tenantA, invoice, 1, "invoicing.invoice.issued",
		invoicing.InvoiceIssued{TenantID: tenantA, InvoiceID: invoice, PartyID: party, TotalCents: 1000})))

	assert.EqualValues(t, 1000, p.Get(tenantA, party))
	assert.EqualValues(t, 0, p.Get(tenantB, party))
}
