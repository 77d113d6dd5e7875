package readmodels

import (
	"context"
	"encoding/json"

	"erpcore/pkg/eventstore"
	"erpcore/pkg/inventory"
	"erpcore/pkg/kernel"
)

// InventoryStockRow is one item's current quantity on hand.
type InventoryStockRow struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// InventoryStockProjection maintains item id -> current quantity, grounded
// on original_source/crates/infra/src/projections/inventory_stock.rs.
type InventoryStockProjection struct {
	Store TenantStore[string, InventoryStockRow]
}

func NewInventoryStockProjection() *InventoryStockProjection {
	return &InventoryStockProjection{Store: NewMemoryTenantStore[string, InventoryStockRow]()}
}

func (p *InventoryStockProjection) Name() string          { return "inventory.stock" }
func (p *InventoryStockProjection) AggregateType() string { return inventory.AggregateType }

func (p *InventoryStockProjection) Apply(_ context.Context, envelope eventstore.Envelope) error {
	var header struct {
		TenantID kernel.TenantID    `json:"tenant_id"`
		ItemID   kernel.AggregateID `json:"item_id"`
	}
	if err := json.Unmarshal(envelope.Payload, &header); err != nil {
		return err
	}
	if header.TenantID != envelope.TenantID {
		return kernel.NewDomainError(kernel.KindInvariantViolation, "inventory.stock: event tenant_id does not match envelope tenant_id")
	}
	if header.ItemID != envelope.AggregateID {
		return kernel.NewDomainError(kernel.KindInvariantViolation, "inventory.stock: event item_id does not match envelope aggregate_id")
	}

	tenant := envelope.TenantID.String()

	switch envelope.EventType {
	case "inventory.item.created":
		var e inventory.ItemCreated
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return err
		}
		p.Store.Upsert(tenant, header.ItemID.String(), InventoryStockRow{
			ItemID: header.ItemID.String(), Name: e.Name, Quantity: 0,
		})
	case "inventory.item.stock_adjusted":
		var e inventory.StockAdjusted
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return err
		}
		row, ok := p.Store.Get(tenant, header.ItemID.String())
		if !ok {
			row = InventoryStockRow{ItemID: header.ItemID.String()}
		}
		row.Quantity += e.Delta
		p.Store.Upsert(tenant, header.ItemID.String(), row)
	}
	return nil
}

func (p *InventoryStockProjection) ClearTenant(_ context.Context, tenant kernel.TenantID) error {
	p.Store.ClearTenant(tenant.String())
	return nil
}

func (p *InventoryStockProjection) Get(tenant kernel.TenantID, itemID kernel.AggregateID) (InventoryStockRow, bool) {
	return p.Store.Get(tenant.String(), itemID.String())
}

func (p *InventoryStockProjection) List(tenant kernel.TenantID) []InventoryStockRow {
	return p.Store.List(tenant.String())
}
