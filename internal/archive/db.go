package archive

import (
	"context"
	"ms-admission/internal/models"

	"github.com/uptrace/bun"
)

// DB persists ticket snapshots in the archive table. The field is bun.IDB so
// the sweep can run each insert inside its per-ticket transaction.
type DB struct {
	Bun bun.IDB
}

func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

func (d *DB) InsertArchive(ctx context.Context, snapshot *models.TicketArchive) error {
	_, err := d.Bun.NewInsert().
		Model(snapshot).
		Exec(ctx)
	return err
}

func (d *DB) GetArchiveByTicketID(ctx context.Context, ticketID string) (*models.TicketArchive, error) {
	snapshot := new(models.TicketArchive)
	err := d.Bun.NewSelect().
		Model(snapshot).
		Where("ticket_id = ?", ticketID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (d *DB) ListArchivesByEvent(ctx context.Context, eventID string) ([]models.TicketArchive, error) {
	var snapshots []models.TicketArchive
	err := d.Bun.NewSelect().
		Model(&snapshots).
		Where("event_id = ?", eventID).
		Order("archived_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
