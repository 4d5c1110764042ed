package models

import (
	"time"

	"github.com/uptrace/bun"
)

// InventoryConfig is the per event × VIP location stock ledger row. The
// (event_id, location) pair is unique; sold_count is only ever moved through
// conditional updates that re-check 0 <= sold_count <= stock_limit.
type InventoryConfig struct {
	bun.BaseModel `bun:"table:inventory_configs"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID         string    `bun:"event_id" json:"event_id"`
	Location        string    `bun:"location" json:"location"`
	UnitPrice       float64   `bun:"unit_price" json:"unit_price"`
	StockLimit      int       `bun:"stock_limit" json:"stock_limit"`
	SoldCount       int       `bun:"sold_count" json:"sold_count"`
	CapacityPerUnit int       `bun:"capacity_per_unit" json:"capacity_per_unit"`
	CreatedAt       time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

func (c *InventoryConfig) Remaining() int {
	return c.StockLimit - c.SoldCount
}

// LocationAvailability is the buyer-facing view of one VIP location.
type LocationAvailability struct {
	Location        string  `json:"location"`
	UnitPrice       float64 `json:"unit_price"`
	CapacityPerUnit int     `json:"capacity_per_unit"`
	Remaining       int     `json:"remaining"`
	SoldOut         bool    `json:"sold_out"`
}
