// Package inventory implements the InventoryItem aggregate: the first of
// the two contract exemplars from spec.md §4.7. It carries no dependencies
// beyond the domain kernel — a concrete illustration of the aggregate
// contract, not a reusable library.
package inventory

import (
	"encoding/json"
	"strings"

	"erpcore/pkg/kernel"
)

// AggregateType is the wire aggregate_type for every inventory item stream.
const AggregateType = "inventory.item"

// ItemID is a transparent newtype over kernel.AggregateID, per spec.md §3's
// per-domain identifier wrappers.
type ItemID kernel.AggregateID

func NewItemID() ItemID                   { return ItemID(kernel.NewAggregateID()) }
func (id ItemID) Underlying() kernel.AggregateID { return kernel.AggregateID(id) }
func (id ItemID) String() string          { return string(id) }

// Item is the InventoryItem aggregate: name set at creation, stock adjusted
// thereafter, never negative.
type Item struct {
	id       kernel.AggregateID
	tenantID kernel.TenantID
	name     string
	stock    int64
	version  int64
	created  bool
}

// New constructs a not-yet-created shell for rehydration, matching the
// dispatcher.Factory signature.
func New(tenant kernel.TenantID, id kernel.AggregateID) kernel.Aggregate {
	return &Item{id: id, tenantID: tenant}
}

func (i *Item) ID() kernel.AggregateID { return i.id }
func (i *Item) Version() int64         { return i.version }
func (i *Item) Created() bool          { return i.created }
func (i *Item) Name() string           { return i.name }
func (i *Item) Stock() int64           { return i.stock }

// Commands

type CreateItem struct {
	Name string `json:"name"`
}

type AdjustStock struct {
	Delta int64 `json:"delta"`
}

// Events

type ItemCreated struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	ItemID   kernel.AggregateID `json:"item_id"`
	Name     string             `json:"name"`
}

func (ItemCreated) EventType() string { return "inventory.item.created" }

type StockAdjusted struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	ItemID   kernel.AggregateID `json:"item_id"`
	Delta    int64              `json:"delta"`
}

func (StockAdjusted) EventType() string { return "inventory.item.stock_adjusted" }

// Decide implements kernel.Aggregate. It is pure: it never mutates i, and
// calling it twice with the same receiver and command returns equal events.
func (i *Item) Decide(command any) ([]any, error) {
	switch cmd := command.(type) {
	case CreateItem:
		return i.decideCreate(cmd)
	case AdjustStock:
		return i.decideAdjust(cmd)
	default:
		return nil, kernel.Validation("inventory.item: unrecognized command %T", command)
	}
}

func (i *Item) decideCreate(cmd CreateItem) ([]any, error) {
	if i.created {
		return nil, kernel.Conflict("item already exists")
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, kernel.Validation("name cannot be empty")
	}
	return []any{ItemCreated{TenantID: i.tenantID, ItemID: i.id, Name: cmd.Name}}, nil
}

func (i *Item) decideAdjust(cmd AdjustStock) ([]any, error) {
	if !i.created {
		return nil, kernel.NotFound("inventory item not found")
	}
	if cmd.Delta == 0 {
		return nil, kernel.Validation("delta cannot be zero")
	}
	if i.stock+cmd.Delta < 0 {
		return nil, kernel.InvariantViolation("stock cannot go negative")
	}
	return []any{StockAdjusted{TenantID: i.tenantID, ItemID: i.id, Delta: cmd.Delta}}, nil
}

// Apply implements kernel.Aggregate. It is deterministic and increments
// version by exactly one per event.
func (i *Item) Apply(event any) {
	switch e := event.(type) {
	case ItemCreated:
		i.tenantID = e.TenantID
		i.id = e.ItemID
		i.name = e.Name
		i.stock = 0
		i.created = true
	case StockAdjusted:
		i.stock += e.Delta
	}
	i.version++
}

// DecodeEvent implements kernel.Aggregate by exhaustively matching
// event_type against this aggregate's known variants.
func (i *Item) DecodeEvent(eventType string, payload []byte) (any, error) {
	switch eventType {
	case "inventory.item.created":
		var e ItemCreated
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "inventory.item.stock_adjusted":
		var e StockAdjusted
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, kernel.Validation("inventory.item: unknown event_type %q", eventType)
	}
}

// SnapshotState/RestoreSnapshot implement dispatcher.Snapshotter.
type itemSnapshot struct {
	TenantID kernel.TenantID    `json:"tenant_id"`
	ID       kernel.AggregateID `json:"id"`
	Name     string             `json:"name"`
	Stock    int64              `json:"stock"`
	Created  bool               `json:"created"`
	Version  int64              `json:"version"`
}

func (i *Item) SnapshotState() (json.RawMessage, error) {
	return json.Marshal(itemSnapshot{TenantID: i.tenantID, ID: i.id, Name: i.name, Stock: i.stock, Created: i.created, Version: i.version})
}

func (i *Item) RestoreSnapshot(state json.RawMessage) error {
	var s itemSnapshot
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	i.tenantID, i.id, i.name, i.stock, i.created, i.version = s.TenantID, s.ID, s.Name, s.Stock, s.Created, s.Version
	return nil
}
