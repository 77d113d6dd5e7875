package readmodels

import (
	"context"
	"encoding/json"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/invoicing"
	"erpcore/pkg/kernel"
)

type invoiceBalanceState struct {
	PartyID          string `json:"party_id"`
	OutstandingCents int64  `json:"outstanding_cents"`
}

// CustomerBalanceProjection sums outstanding amounts per party across that
// party's open invoices, resolving spec.md §9's customer-balance mapping
// open question via the PartyID carried on Invoice (see invoicing.Invoice).
// Grounded on
// original_source/crates/infra/src/projections/customer_balances.rs.
type CustomerBalanceProjection struct {
	Balances TenantStore[string, int64] // party id -> outstanding cents
	invoices TenantStore[string, invoiceBalanceState]
}

func NewCustomerBalanceProjection() *CustomerBalanceProjection {
	return &CustomerBalanceProjection{
		Balances: NewMemoryTenantStore[string, int64](),
		invoices: NewMemoryTenantStore[string, invoiceBalanceState](),
	}
}

func (p *CustomerBalanceProjection) Name() string          { return "invoicing.customer_balance" }
func (p *CustomerBalanceProjection) AggregateType() string { return invoicing.AggregateType }

func (p *CustomerBalanceProjection) Apply(_ context.Context, envelope eventstore.Envelope) error {
	var header struct {
		TenantID  kernel.TenantID    `json:"tenant_id"`
		InvoiceID kernel.AggregateID `json:"invoice_id"`
	}
	if err := json.Unmarshal(envelope.Payload, &header); err != nil {
		return err
	}
	if header.TenantID != envelope.TenantID {
		return kernel.NewDomainError(kernel.KindInvariantViolation, "invoicing.customer_balance: event tenant_id does not match envelope tenant_id")
	}

	tenant := envelope.TenantID.String()
	invoiceID := header.InvoiceID.String()

	switch envelope.EventType {
	case "invoicing.invoice.issued":
		var e invoicing.InvoiceIssued
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return err
		}
		partyID := e.PartyID.String()
		p.invoices.Upsert(tenant, invoiceID, invoiceBalanceState{PartyID: partyID, OutstandingCents: e.TotalCents})
		p.adjustBalance(tenant, partyID, e.TotalCents)

	case "invoicing.invoice.payment_registered":
		var e invoicing.PaymentRegistered
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return err
		}
		state, ok := p.invoices.Get(tenant, invoiceID)
		if !ok {
			return nil
		}
		newOutstanding := state.OutstandingCents - e.AmountCents
		p.adjustBalance(tenant, state.PartyID, -e.AmountCents)
		if newOutstanding <= 0 {
			p.invoices.Delete(tenant, invoiceID)
		} else {
			state.OutstandingCents = newOutstanding
			p.invoices.Upsert(tenant, invoiceID, state)
		}

	case "invoicing.invoice.voided":
		state, ok := p.invoices.Get(tenant, invoiceID)
		if !ok {
			return nil
		}
		p.adjustBalance(tenant, state.PartyID, -state.OutstandingCents)
		p.invoices.Delete(tenant, invoiceID)
	}
	return nil
}

func (p *CustomerBalanceProjection) adjustBalance(tenant, partyID string, delta int64) {
	current, _ := p.Balances.Get(tenant, partyID)
	p.Balances.Upsert(tenant, partyID, current+delta)
}

func (p *CustomerBalanceProjection) ClearTenant(_ context.Context, tenant kernel.TenantID) error {
	p.Balances.ClearTenant(tenant.String())
	p.invoices.ClearTenant(tenant.String())
	return nil
}

func (p *CustomerBalanceProjection) Get(tenant kernel.TenantID, partyID kernel.AggregateID) int64 {
	balance, _ := p.Balances.Get(tenant.String(), partyID.String())
	return balance
}
