package models

import "time"

// CatalogItemID identifies a menu/catalog entry.
type CatalogItemID string

// CatalogItem is the stock-bearing part of a menu entry.
type CatalogItem struct {
	ID        CatalogItemID `json:"id"`
	Name      string        `json:"name"`
	Price     int64         `json:"price"`
	Stock     int           `json:"stock"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// InventoryKind classifies a stock movement.
type InventoryKind string

const (
	InventoryKindSale       InventoryKind = "sale"
	InventoryKindRestock    InventoryKind = "restock"
	InventoryKindAdjustment InventoryKind = "adjustment"
)

// InventoryTransaction records a stock movement. Sales carry a negative delta.
type InventoryTransaction struct {
	ID            string        `json:"id"`
	CatalogItemID CatalogItemID `json:"catalog_item_id"`
	OrderID       *OrderID      `json:"order_id,omitempty"`
	Kind          InventoryKind `json:"kind"`
	Delta         int           `json:"delta"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
