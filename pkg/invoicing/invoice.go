// Package invoicing implements the Invoice aggregate: the second contract
// exemplar from spec.md §4.7, with the Open/Paid/Void lifecycle. Commands
// accept decimal.Decimal major-unit amounts (the ambient money convention,
// grounded on ahmad-salah-nada's domain/money.go); the aggregate itself
// keeps integer minor-unit (cents) arithmetic with explicit overflow checks,
// since decimal values never overflow and spec.md §4.7 requires overflow to
// be a rejectable condition.
package invoicing

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"erpcore/pkg/kernel"
)

// AggregateType is the wire aggregate_type for every invoice stream.
const AggregateType = "invoicing.invoice"

// InvoiceID is a transparent newtype over kernel.AggregateID.
type InvoiceID kernel.AggregateID

func NewInvoiceID() InvoiceID                      { return InvoiceID(kernel.NewAggregateID()) }
func (id InvoiceID) Underlying() kernel.AggregateID { return kernel.AggregateID(id) }
func (id InvoiceID) String() string                { return string(id) }

// Status is the invoice lifecycle state.
type Status string

const (
	StatusOpen Status = "open"
	StatusPaid Status = "paid"
	StatusVoid Status = "void"
)

// Line is one invoice line: quantity times unit price (in cents).
type Line struct {
	Quantity  int64 `json:"quantity"`
	UnitCents int64 `json:"unit_cents"`
}

// Invoice is the Invoice aggregate.
type Invoice struct {
	id          kernel.AggregateID
	tenantID    kernel.TenantID
	partyID     kernel.AggregateID // customer; spec.md §9 open question resolved by carrying this directly
	status      Status
	lines       []Line
	totalCents  int64
	paidCents   int64
	version     int64
	created     bool
}

func New(tenant kernel.TenantID, id kernel.AggregateID) kernel.Aggregate {
	return &Invoice{id: id, tenantID: tenant, status: StatusOpen}
}

func (inv *Invoice) ID() kernel.AggregateID { return inv.id }
func (inv *Invoice) Version() int64         { return inv.version }
func (inv *Invoice) Created() bool          { return inv.created }
func (inv *Invoice) Status() Status         { return inv.status }
func (inv *Invoice) PartyID() kernel.AggregateID { return inv.partyID }
func (inv *Invoice) TotalCents() int64      { return inv.totalCents }
func (inv *Invoice) PaidCents() int64      { return inv.paidCents }
func (inv *Invoice) OutstandingCents() int64 {
	if inv.totalCents <= inv.paidCents {
		return 0
	}
	return inv.totalCents - inv.paidCents
}

// CommandLine is an invoice line as submitted in a command, with major-unit
// decimal amounts.
type CommandLine struct {
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Commands

type IssueInvoice struct {
	PartyID kernel.AggregateID
	Lines   []CommandLine
	DueDate string // RFC3339; kept opaque to the core per spec.md §1 scope
}

type RegisterPayment struct {
	Amount decimal.Decimal
}

type VoidInvoice struct {
	Reason string
}

// Events

type InvoiceIssued struct {
	TenantID   kernel.TenantID    `json:"tenant_id"`
	InvoiceID  kernel.AggregateID `json:"invoice_id"`
	PartyID    kernel.AggregateID `json:"party_id"`
	Lines      []Line             `json:"lines"`
	DueDate    string             `json:"due_date"`
	TotalCents int64              `json:"total_cents"`
}

func (InvoiceIssued) EventType() string { return "invoicing.invoice.issued" }

type PaymentRegistered struct {
	TenantID      kernel.TenantID    `json:"tenant_id"`
	InvoiceID     kernel.AggregateID `json:"invoice_id"`
	AmountCents   int64              `json:"amount_cents"`
	NewPaidCents  int64              `json:"new_paid_cents"`
}

func (PaymentRegistered) EventType() string { return "invoicing.invoice.payment_registered" }

type InvoiceVoided struct {
	TenantID  kernel.TenantID    `json:"tenant_id"`
	InvoiceID kernel.AggregateID `json:"invoice_id"`
	Reason    string             `json:"reason"`
}

func (InvoiceVoided) EventType() string { return "invoicing.invoice.voided" }

// toCents converts a decimal major-unit amount to integer cents, rejecting
// anything that would overflow int64.
func toCents(d decimal.Decimal) (int64, bool) {
	scaled := d.Shift(2).Round(0)
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, false
	}
	return scaled.IntPart(), true
}

func (inv *Invoice) Decide(command any) ([]any, error) {
	switch cmd := command.(type) {
	case IssueInvoice:
		return inv.decideIssue(cmd)
	case RegisterPayment:
		return inv.decideRegisterPayment(cmd)
	case VoidInvoice:
		return inv.decideVoid(cmd)
	default:
		return nil, kernel.Validation("invoicing.invoice: unrecognized command %T", command)
	}
}

func (inv *Invoice) decideIssue(cmd IssueInvoice) ([]any, error) {
	if inv.created {
		return nil, kernel.Conflict("invoice already exists")
	}
	if len(cmd.Lines) == 0 {
		return nil, kernel.Validation("cannot issue invoice without lines")
	}

	lines := make([]Line, 0, len(cmd.Lines))
	var total int64
	for _, l := range cmd.Lines {
		if l.Quantity <= 0 {
			return nil, kernel.Validation("invoice line quantity must be positive")
		}
		if !l.UnitPrice.IsPositive() {
			return nil, kernel.Validation("invoice line unit_price must be positive")
		}
		unitCents, ok := toCents(l.UnitPrice)
		if !ok || unitCents <= 0 {
			return nil, kernel.InvariantViolation("invoice line amount overflow")
		}
		lineTotal := mulChecked(l.Quantity, unitCents)
		if lineTotal < 0 {
			return nil, kernel.InvariantViolation("invoice line amount overflow")
		}
		newTotal := total + lineTotal
		if newTotal < total {
			return nil, kernel.InvariantViolation("invoice total overflow")
		}
		total = newTotal
		lines = append(lines, Line{Quantity: l.Quantity, UnitCents: unitCents})
	}

	return []any{InvoiceIssued{
		TenantID:   inv.tenantID,
		InvoiceID:  inv.id,
		PartyID:    cmd.PartyID,
		Lines:      lines,
		DueDate:    cmd.DueDate,
		TotalCents: total,
	}}, nil
}

// mulChecked multiplies two positive int64 values, returning -1 on overflow.
func mulChecked(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	result := a * b
	if result/a != b {
		return -1
	}
	return result
}

func (inv *Invoice) decideRegisterPayment(cmd RegisterPayment) ([]any, error) {
	if !inv.created {
		return nil, kernel.NotFound("invoice not found")
	}
	if inv.status == StatusVoid || inv.OutstandingCents() == 0 {
		return nil, kernel.InvariantViolation("cannot register payment on void or fully paid invoice")
	}
	amountCents, ok := toCents(cmd.Amount)
	if !ok || amountCents <= 0 {
		return nil, kernel.Validation("payment amount must be positive")
	}
	newPaid := inv.paidCents + amountCents
	if newPaid < inv.paidCents {
		return nil, kernel.InvariantViolation("payment total overflow")
	}
	if newPaid > inv.totalCents {
		return nil, kernel.InvariantViolation("cannot overpay invoice")
	}
	return []any{PaymentRegistered{
		TenantID:     inv.tenantID,
		InvoiceID:    inv.id,
		AmountCents:  amountCents,
		NewPaidCents: newPaid,
	}}, nil
}

func (inv *Invoice) decideVoid(cmd VoidInvoice) ([]any, error) {
	if !inv.created {
		return nil, kernel.NotFound("invoice not found")
	}
	if inv.status == StatusVoid {
		return nil, kernel.Conflict("invoice is already void")
	}
	return []any{InvoiceVoided{TenantID: inv.tenantID, InvoiceID: inv.id, Reason: cmd.Reason}}, nil
}

func (inv *Invoice) Apply(event any) {
	switch e := event.(type) {
	case InvoiceIssued:
		inv.tenantID = e.TenantID
		inv.id = e.InvoiceID
		inv.partyID = e.PartyID
		inv.lines = e.Lines
		inv.totalCents = e.TotalCents
		inv.paidCents = 0
		inv.status = StatusOpen
		inv.created = true
	case PaymentRegistered:
		inv.paidCents = e.NewPaidCents
		if inv.paidCents >= inv.totalCents {
			inv.status = StatusPaid
		}
	case InvoiceVoided:
		inv.status = StatusVoid
	}
	inv.version++
}

func (inv *Invoice) DecodeEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case "invoicing.invoice.issued":
		var e InvoiceIssued
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "invoicing.invoice.payment_registered":
		var e PaymentRegistered
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "invoicing.invoice.voided":
		var e InvoiceVoided
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, kernel.Validation("invoicing.invoice: unknown event_type %q", eventType)
	}
}

type invoiceSnapshot struct {
	TenantID   kernel.TenantID    `json:"tenant_id"`
	ID         kernel.AggregateID `json:"id"`
	PartyID    kernel.AggregateID `json:"party_id"`
	Status     Status             `json:"status"`
	Lines      []Line             `json:"lines"`
	TotalCents int64              `json:"total_cents"`
	PaidCents  int64              `json:"paid_cents"`
	Created    bool               `json:"created"`
	Version    int64              `json:"version"`
}

func (inv *Invoice) SnapshotState() (json.RawMessage, error) {
	return json.Marshal(invoiceSnapshot{
		TenantID: inv.tenantID, ID: inv.id, PartyID: inv.partyID, Status: inv.status,
		Lines: inv.lines, TotalCents: inv.totalCents, PaidCents: inv.paidCents,
		Created: inv.created, Version: inv.version,
	})
}

func (inv *Invoice) RestoreSnapshot(state json.RawMessage) error {
	var s invoiceSnapshot
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	inv.tenantID, inv.id, inv.partyID, inv.status = s.TenantID, s.ID, s.PartyID, s.Status
	inv.lines, inv.totalCents, inv.paidCents = s.Lines, s.TotalCents, s.PaidCents
	inv.created, inv.version = s.Created, s.Version
	return nil
}
