package readmodels

import (
	"context"
	"encoding/json"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/invoicing"
	"erpcore/pkg/kernel"
)

// OpenInvoiceRow is one non-void, not-fully-paid invoice.
type OpenInvoiceRow struct {
	InvoiceID        string `json:"invoice_id"`
	PartyID          string `json:"party_id"`
	TotalCents       int64  `json:"total_cents"`
	PaidCents        int64  `json:"paid_cents"`
	OutstandingCents int64  `json:"outstanding_cents"`
}

// OpenInvoicesProjection tracks invoices still awaiting full payment,
// grounded on original_source/crates/infra/src/projections/open_invoices.rs
// (trimmed of its AR-aging fields, which are out of this core's scope).
type OpenInvoicesProjection struct {
	Store TenantStore[string, OpenInvoiceRow]
}

func NewOpenInvoicesProjection() *OpenInvoicesProjection {
	return &OpenInvoicesProjection{Store: NewMemoryTenantStore[string, OpenInvoiceRow]()}
}

func (p *OpenInvoicesProjection) Name() string          { return "invoicing.open_invoices" }
func (p *OpenInvoicesProjection) AggregateType() string { return invoicing.AggregateType }

func (p *OpenInvoicesProjection) Apply(_ context.Context, envelope eventstore.Envelope) error {
	var header struct {
		TenantID  kernel.TenantID    `json:"tenant_id"`
		InvoiceID kernel.AggregateID `json:"invoice_id"`
	}
	if err := json.Unmarshal(envelope.Payload, &header); err != nil {
		return err
	}
	if header.TenantID != envelope.TenantID {
		return kernel.NewDomainError(kernel.KindInvariantViolation, "invoicing.open_invoices: event tenant_id does not match envelope tenant_id")
	}
	if header.InvoiceID != envelope.AggregateID {
		return kernel.NewDomainError(kernel.KindInvariantViolation, "invoicing.open_invoices: event invoice_id does not match envelope aggregate_id")
	}

	tenant := envelope.TenantID.String()
	id := header.InvoiceID.String()

	switch envelope.EventType {
	case "invoicing.invoice.issued":
		var e invoicing.InvoiceIssued
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return err
		}
		p.Store.Upsert(tenant, id, OpenInvoiceRow{
			InvoiceID: id, PartyID: e.PartyID.String(),
			TotalCents: e.TotalCents, PaidCents: 0, OutstandingCents: e.TotalCents,
		})
	case "invoicing.invoice.payment_registered":
		var e invoicing.PaymentRegistered
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return err
		}
		row, ok := p.Store.Get(tenant, id)
		if !ok {
			return nil
		}
		row.PaidCents = e.NewPaidCents
		if row.PaidCents >= row.TotalCents {
			p.Store.Delete(tenant, id)
			return nil
		}
		row.OutstandingCents = row.TotalCents - row.PaidCents
		p.Store.Upsert(tenant, id, row)
	case "invoicing.invoice.voided":
		p.Store.Delete(tenant, id)
	}
	return nil
}

func (p *OpenInvoicesProjection) ClearTenant(_ context.Context, tenant kernel.TenantID) error {
	p.Store.ClearTenant(tenant.String())
	return nil
}

func (p *OpenInvoicesProjection) List(tenant kernel.TenantID) []OpenInvoiceRow {
	return p.Store.List(tenant.String())
}
