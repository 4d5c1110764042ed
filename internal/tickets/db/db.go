package db

import (
	"context"
	"database/sql"
	"errors"
	"ms-admission/internal/models"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

// WithTx returns a ticket store bound to the given transaction.
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

// ---------------- TICKETS ----------------

// CreateTicket → insert new live ticket
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

// GetTicketByID → fetch one ticket by its ID
func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByPaymentRef → resolve which live ticket a provider payment maps to
func (d *DB) GetTicketByPaymentRef(ctx context.Context, paymentRef string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("payment_ref = ?", paymentRef).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByCode → fetch by validation code (callers normalize first)
func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("validation_code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketsByEmail → purchase history for a customer
func (d *DB) GetTicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("customer_email = ?", email).
		Order("purchase_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// DeleteTicket → remove a live ticket, reporting whether a row was hit.
// The sweep relies on the count: zero means someone else archived it first.
func (d *DB) DeleteTicket(ctx context.Context, id string) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("ticket_id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- CONDITIONAL UPDATES ----------------
//
// Everything below is an update-if-predicate-still-holds statement returning
// the affected-row count. They are the only mutual exclusion this service
// uses; there are no in-process or distributed locks.

// AssignCode sets the validation code only if none is assigned yet. Zero rows
// means another issuer already won; a unique-constraint error means the
// candidate collided with a different ticket's code.
func (d *DB) AssignCode(ctx context.Context, ticketID, code string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("validation_code = ?", code).
		Where("ticket_id = ?", ticketID).
		Where("validation_code IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TransitionStatus moves payment_status from → to, but only if the ticket is
// still in from. Zero rows means the precondition went stale.
func (d *DB) TransitionStatus(ctx context.Context, ticketID string, from, to models.PaymentStatus, method string) (int64, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("payment_status = ?", to).
		Where("ticket_id = ?", ticketID).
		Where("payment_status = ?", from)
	if method != "" {
		q = q.Set("payment_method = ?", method)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkValidated flips validated exactly once for an approved ticket.
func (d *DB) MarkValidated(ctx context.Context, ticketID string, at time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("validated = ?", true).
		Set("validated_at = ?", at).
		Where("ticket_id = ?", ticketID).
		Where("payment_status = ?", models.StatusApproved).
		Where("validated = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetPaymentRef stores the provider's payment reference after checkout
// session creation.
func (d *DB) SetPaymentRef(ctx context.Context, ticketID, paymentRef string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("payment_ref = ?", paymentRef).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return err
}

// SetQRCode stores the rendered pass image once the ticket is approved.
func (d *DB) SetQRCode(ctx context.Context, ticketID string, qr []byte) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("qr_code = ?", qr).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return err
}

// ---------------- SWEEP QUERIES ----------------

// ListExpired → tickets whose reservation window has lapsed without payment
// confirmation. Capped so a single sweep run stays finite.
func (d *DB) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("payment_status IN (?)", bun.In([]models.PaymentStatus{
			models.StatusPending, models.StatusInProcess, models.StatusFailedPreference,
		})).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ListStale → backfill predicate: unpaid tickets whose purchase is older than
// the cutoff, regardless of the per-ticket expiry stamp.
func (d *DB) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("payment_status IN (?)", bun.In([]models.PaymentStatus{
			models.StatusPending, models.StatusInProcess, models.StatusFailedPreference,
		})).
		Where("purchase_date <= ?", cutoff).
		Order("purchase_date ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// IsUniqueViolation reports whether err is the storage-level uniqueness
// constraint firing (Postgres and SQLite word it differently).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
