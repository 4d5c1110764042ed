package inventory

import (
	"context"
	"database/sql"
	"errors"
	"ms-admission/internal/models"
	"time"

	"github.com/uptrace/bun"
)

// DB is the inventory ledger. Every mutation is a single conditional UPDATE
// that re-checks 0 <= sold_count <= stock_limit as part of the write, so the
// bound holds no matter how many request handlers race on the same row.
//
// Bun is a bun.IDB so the ledger can run inside a caller's transaction; the
// ticket state machine always calls AdjustSold through the transaction that
// also moves the ticket row.
type DB struct {
	Bun bun.IDB
}

// WithTx returns a ledger bound to the given transaction.
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

// GetConfig → fetch one ledger row by its (event, location) key.
func (d *DB) GetConfig(ctx context.Context, eventID, location string) (*models.InventoryConfig, error) {
	var cfg models.InventoryConfig
	err := d.Bun.NewSelect().
		Model(&cfg).
		Where("event_id = ?", eventID).
		Where("location = ?", location).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListByEvent → all ledger rows for an event, for the availability view.
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.InventoryConfig, error) {
	var configs []models.InventoryConfig
	err := d.Bun.NewSelect().
		Model(&configs).
		Where("event_id = ?", eventID).
		Order("location").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// CreateConfig → insert a new ledger row. The unique (event_id, location)
// constraint rejects duplicates at the storage layer.
func (d *DB) CreateConfig(ctx context.Context, cfg *models.InventoryConfig) error {
	cfg.CreatedAt = time.Now()
	_, err := d.Bun.NewInsert().Model(cfg).Exec(ctx)
	return err
}

// UpdateConfig → change price, limit or capacity. Lowering the limit below
// the already-sold count is refused by the same conditional-update trick the
// counters use.
func (d *DB) UpdateConfig(ctx context.Context, cfg *models.InventoryConfig) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryConfig)(nil)).
		Set("unit_price = ?", cfg.UnitPrice).
		Set("stock_limit = ?", cfg.StockLimit).
		Set("capacity_per_unit = ?", cfg.CapacityPerUnit).
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", cfg.EventID).
		Where("location = ?", cfg.Location).
		Where("sold_count <= ?", cfg.StockLimit).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		existing, lookupErr := d.GetConfig(ctx, cfg.EventID, cfg.Location)
		if lookupErr != nil {
			return lookupErr
		}
		return &models.InvariantViolationError{
			EventID:  cfg.EventID,
			Location: cfg.Location,
			Delta:    cfg.StockLimit - existing.SoldCount,
		}
	}
	return nil
}

// ReserveUnits gates a VIP purchase on remaining stock. The check is a
// zero-delta conditional update, not a read-then-compare, so two purchases
// racing for the last table both evaluate the bound at write time. The final
// defense stays in AdjustSold at approval; this keeps obviously hopeless
// reservations from ever creating a pending ticket.
func (d *DB) ReserveUnits(ctx context.Context, eventID, location string, units int) error {
	if units <= 0 {
		return &models.InvariantViolationError{EventID: eventID, Location: location, Delta: units}
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryConfig)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("location = ?", location).
		Where("sold_count + ? <= stock_limit", units).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	// Zero rows: either the row is missing or the bound failed. Re-read to
	// tell the two apart; NotFound must never masquerade as sold-out.
	cfg, err := d.GetConfig(ctx, eventID, location)
	if err != nil {
		return err
	}
	return &models.InsufficientStockError{
		EventID:   eventID,
		Location:  location,
		Requested: units,
		Remaining: cfg.Remaining(),
	}
}

// AdjustSold moves the sold counter by delta (positive on approval, negative
// on refund/cancellation). The bound is part of the UPDATE's predicate: if it
// would be broken the statement affects zero rows and nothing is written.
func (d *DB) AdjustSold(ctx context.Context, eventID, location string, delta int) error {
	if delta == 0 {
		return nil
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.InventoryConfig)(nil)).
		Set("sold_count = sold_count + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("event_id = ?", eventID).
		Where("location = ?", location).
		Where("sold_count + ? >= 0", delta).
		Where("sold_count + ? <= stock_limit", delta).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	cfg, err := d.GetConfig(ctx, eventID, location)
	if err != nil {
		return err
	}
	if delta > 0 {
		// Allocation past the limit is the lost-race case the caller must
		// report as a stock conflict, not a defect.
		return &models.InsufficientStockError{
			EventID:   eventID,
			Location:  location,
			Requested: delta,
			Remaining: cfg.Remaining(),
		}
	}
	// Releasing below zero has no legitimate producer.
	return &models.InvariantViolationError{
		EventID:  eventID,
		Location: location,
		Delta:    delta,
	}
}
