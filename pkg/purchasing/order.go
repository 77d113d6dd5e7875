// Package purchasing implements the PurchaseOrder aggregate (supplemental,
// from original_source/crates/purchasing/src/order.rs): Draft -> Approved ->
// Received, following the inventory/invoicing contract shape.
package purchasing

import (
	"encoding/json"

	"erpcore/pkg/kernel"
)

// AggregateType is the wire aggregate_type for every purchase order stream.
const AggregateType = "purchasing.order"

type OrderID kernel.AggregateID

func NewOrderID() OrderID                      { return OrderID(kernel.NewAggregateID()) }
func (id OrderID) Underlying() kernel.AggregateID { return kernel.AggregateID(id) }
func (id OrderID) String() string              { return string(id) }

type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusReceived Status = "received"
	StatusClosed   Status = "closed"
)

// Line is a purchase order line item. Received tracks the cumulative
// quantity accepted across every ReceiveGoods command applied so far, so
// partial, multi-delivery receipts stay bounded by the ordered quantity.
type Line struct {
	LineNo    int                `json:"line_no"`
	ProductID kernel.AggregateID `json:"product_id"`
	Quantity  int64              `json:"quantity"`
	Received  int64              `json:"received"`
}

type Order struct {
	id         kernel.AggregateID
	tenantID   kernel.TenantID
	supplierID kernel.AggregateID
	status     Status
	lines      []Line
	version    int64
	created    bool
}

func New(tenant kernel.TenantID, id kernel.AggregateID) kernel.Aggregate {
	return &Order{id: id, tenantID: tenant, status: StatusDraft}
}

func (o *Order) ID() kernel.AggregateID        { return o.id }
func (o *Order) Version() int64                { return o.version }
func (o *Order) Created() bool                 { return o.created }
func (o *Order) Status() Status                { return o.status }
func (o *Order) SupplierID() kernel.AggregateID { return o.supplierID }
func (o *Order) Lines() []Line                 { return o.lines }

// Commands

type CreatePurchaseOrder struct {
	SupplierID kernel.AggregateID
}

type AddLine struct {
	ProductID kernel.AggregateID
	Quantity  int64
}

type Approve struct{}

// ReceiptLine is one line of a goods receipt: how much of line_no arrived
// in this delivery. Multiple ReceiveGoods commands may target the same
// line_no across partial deliveries; decideReceive rejects a receipt that
// would push a line's cumulative received quantity past what was ordered.
type ReceiptLine struct {
	LineNo   int   `json:"line_no"`
	Quantity int64 `json:"quantity"`
}

type ReceiveGoods struct {
	Lines []ReceiptLine
}

// CloseOrder terminates a purchase order once goods have been received and
// any downstream matching (invoice, payment) is settled. Closed is a
// terminal state: no further commands are accepted.
type CloseOrder struct{}

// Events

type PurchaseOrderCreated struct {
	TenantID   kernel.TenantID    `json:"tenant_id"`
	OrderID    kernel.AggregateID `json:"order_id"`
	SupplierID kernel.AggregateID `json:"supplier_id"`
}

func (PurchaseOrderCreated) EventType() string { return "purchasing.order.created" }

type PurchaseOrderLineAdded struct {
	TenantID  kernel.TenantID    `json:"tenant_id"`
	OrderID   kernel.AggregateID `json:"order_id"`
	LineNo    int                `json:"line_no"`
	ProductID kernel.AggregateID `json:"product_id"`
	Quantity  int64              `json:"quantity"`
}

func (PurchaseOrderLineAdded) EventType() string { return "purchasing.order.line_added" }

type PurchaseOrderApproved struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	OrderID  kernel.AggregateID `json:"order_id"`
}

func (PurchaseOrderApproved) EventType() string { return "purchasing.order.approved" }

// GoodsReceived carries supplier and line information so a downstream
// projection or handler can translate it into inventory.StockAdjusted
// commands (original_source's own note on this event). Lines holds only the
// quantities received in this delivery, not the order's full line list —
// a partial receipt must not look like a full one to a replaying consumer.
type GoodsReceived struct {
	TenantID   kernel.TenantID    `json:"tenant_id"`
	OrderID    kernel.AggregateID `json:"order_id"`
	SupplierID kernel.AggregateID `json:"supplier_id"`
	Lines      []ReceiptLine      `json:"lines"`
}

func (GoodsReceived) EventType() string { return "purchasing.order.goods_received" }

type PurchaseOrderClosed struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	OrderID  kernel.AggregateID `json:"order_id"`
}

func (PurchaseOrderClosed) EventType() string { return "purchasing.order.closed" }

func (o *Order) Decide(command any) ([]any, error) {
	switch cmd := command.(type) {
	case CreatePurchaseOrder:
		return o.decideCreate(cmd)
	case AddLine:
		return o.decideAddLine(cmd)
	case Approve:
		return o.decideApprove(cmd)
	case ReceiveGoods:
		return o.decideReceive(cmd)
	case CloseOrder:
		return o.decideClose(cmd)
	default:
		return nil, kernel.Validation("purchasing.order: unrecognized command %T", command)
	}
}

func (o *Order) decideCreate(cmd CreatePurchaseOrder) ([]any, error) {
	if o.created {
		return nil, kernel.Conflict("purchase order already exists")
	}
	return []any{PurchaseOrderCreated{TenantID: o.tenantID, OrderID: o.id, SupplierID: cmd.SupplierID}}, nil
}

func (o *Order) decideAddLine(cmd AddLine) ([]any, error) {
	if !o.created {
		return nil, kernel.NotFound("purchase order not found")
	}
	if o.status != StatusDraft {
		return nil, kernel.InvariantViolation("cannot modify purchase order once approved or received")
	}
	if cmd.Quantity <= 0 {
		return nil, kernel.Validation("quantity must be positive")
	}
	return []any{PurchaseOrderLineAdded{
		TenantID: o.tenantID, OrderID: o.id, LineNo: len(o.lines) + 1,
		ProductID: cmd.ProductID, Quantity: cmd.Quantity,
	}}, nil
}

func (o *Order) decideApprove(cmd Approve) ([]any, error) {
	if !o.created {
		return nil, kernel.NotFound("purchase order not found")
	}
	if o.status != StatusDraft {
		return nil, kernel.InvariantViolation("only draft purchase orders can be approved")
	}
	if len(o.lines) == 0 {
		return nil, kernel.Validation("cannot approve purchase order without lines")
	}
	return []any{PurchaseOrderApproved{TenantID: o.tenantID, OrderID: o.id}}, nil
}

func (o *Order) decideReceive(cmd ReceiveGoods) ([]any, error) {
	if !o.created {
		return nil, kernel.NotFound("purchase order not found")
	}
	if o.status != StatusApproved {
		return nil, kernel.InvariantViolation("cannot receive goods before purchase order is approved")
	}
	if len(o.lines) == 0 {
		return nil, kernel.Validation("cannot receive goods for empty purchase order")
	}
	if len(cmd.Lines) == 0 {
		return nil, kernel.Validation("receipt must include at least one line")
	}

	byLineNo := make(map[int]Line, len(o.lines))
	for _, l := range o.lines {
		byLineNo[l.LineNo] = l
	}

	received := make([]ReceiptLine, 0, len(cmd.Lines))
	for _, r := range cmd.Lines {
		if r.Quantity <= 0 {
			return nil, kernel.Validation("receipt quantity must be positive")
		}
		line, ok := byLineNo[r.LineNo]
		if !ok {
			return nil, kernel.Validation("receipt references unknown line_no %d", r.LineNo)
		}
		if line.Received+r.Quantity > line.Quantity {
			return nil, kernel.InvariantViolation("receipt quantity %d exceeds remaining ordered quantity for line_no %d", r.Quantity, r.LineNo)
		}
		line.Received += r.Quantity
		byLineNo[r.LineNo] = line
		received = append(received, r)
	}

	return []any{GoodsReceived{TenantID: o.tenantID, OrderID: o.id, SupplierID: o.supplierID, Lines: received}}, nil
}

func (o *Order) decideClose(cmd CloseOrder) ([]any, error) {
	if !o.created {
		return nil, kernel.NotFound("purchase order not found")
	}
	if o.status != StatusReceived {
		return nil, kernel.InvariantViolation("only received purchase orders can be closed")
	}
	return []any{PurchaseOrderClosed{TenantID: o.tenantID, OrderID: o.id}}, nil
}

func (o *Order) Apply(event any) {
	switch e := event.(type) {
	case PurchaseOrderCreated:
		o.tenantID = e.TenantID
		o.id = e.OrderID
		o.supplierID = e.SupplierID
		o.status = StatusDraft
		o.lines = nil
		o.created = true
	case PurchaseOrderLineAdded:
		o.lines = append(o.lines, Line{LineNo: e.LineNo, ProductID: e.ProductID, Quantity: e.Quantity})
	case PurchaseOrderApproved:
		o.status = StatusApproved
	case GoodsReceived:
		for _, r := range e.Lines {
			for i := range o.lines {
				if o.lines[i].LineNo == r.LineNo {
					o.lines[i].Received += r.Quantity
				}
			}
		}
		if o.fullyReceived() {
			o.status = StatusReceived
		}
	case PurchaseOrderClosed:
		o.status = StatusClosed
	}
	o.version++
}

// fullyReceived reports whether every line's cumulative received quantity
// has reached its ordered quantity.
func (o *Order) fullyReceived() bool {
	for _, l := range o.lines {
		if l.Received < l.Quantity {
			return false
		}
	}
	return true
}

func (o *Order) DecodeEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case "purchasing.order.created":
		var e PurchaseOrderCreated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "purchasing.order.line_added":
		var e PurchaseOrderLineAdded
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "purchasing.order.approved":
		var e PurchaseOrderApproved
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "purchasing.order.goods_received":
		var e GoodsReceived
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "purchasing.order.closed":
		var e PurchaseOrderClosed
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, kernel.Validation("purchasing.order: unknown event_type %q", eventType)
	}
}

type orderSnapshot struct {
	TenantID   kernel.TenantID    `json:"tenant_id"`
	ID         kernel.AggregateID `json:"id"`
	SupplierID kernel.AggregateID `json:"supplier_id"`
	Status     Status             `json:"status"`
	Lines      []Line             `json:"lines"`
	Created    bool               `json:"created"`
	Version    int64              `json:"version"`
}

func (o *Order) SnapshotState() (json.RawMessage, error) {
	return json.Marshal(orderSnapshot{
		TenantID: o.tenantID, ID: o.id, SupplierID: o.supplierID,
		Status: o.status, Lines: o.lines, Created: o.created, Version: o.version,
	})
}

func (o *Order) RestoreSnapshot(state json.RawMessage) error {
	var s orderSnapshot
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	o.tenantID, o.id, o.supplierID = s.TenantID, s.ID, s.SupplierID
	o.status, o.lines, o.created, o.version = s.Status, s.Lines, s.Created, s.Version
	return nil
}
