package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ArchiveReason string

const (
	ReasonPaymentTimeout ArchiveReason = "payment_timeout"
	ReasonManual         ArchiveReason = "manual"
	ReasonFraud          ArchiveReason = "fraud"
	ReasonOther          ArchiveReason = "other"
)

// TicketArchive is an append-only snapshot of a ticket taken at the moment
// the sweep (or an operator) removed it from the live set. Insert-archive and
// delete-live always happen in the same transaction, so a ticket identity is
// never live and archived at once.
type TicketArchive struct {
	bun.BaseModel `bun:"table:ticket_archives"`

	TicketID string     `bun:"ticket_id,pk" json:"ticket_id"`
	EventID  string     `bun:"event_id" json:"event_id"`
	Kind     TicketKind `bun:"kind" json:"kind"`

	Gender   string `bun:"gender,nullzero" json:"gender,omitempty"`
	Location string `bun:"location,nullzero" json:"location,omitempty"`

	Quantity     int     `bun:"quantity" json:"quantity"`
	UnitCapacity int     `bun:"unit_capacity,nullzero" json:"unit_capacity,omitempty"`
	TotalPrice   float64 `bun:"total_price" json:"total_price"`

	CustomerName  string `bun:"customer_name" json:"customer_name"`
	CustomerEmail string `bun:"customer_email" json:"customer_email"`
	CustomerPhone string `bun:"customer_phone,nullzero" json:"customer_phone,omitempty"`
	CustomerDNI   string `bun:"customer_dni" json:"customer_dni"`

	PaymentRef    string        `bun:"payment_ref,nullzero" json:"payment_ref,omitempty"`
	PaymentStatus PaymentStatus `bun:"payment_status" json:"payment_status"`
	PaymentMethod string        `bun:"payment_method,nullzero" json:"payment_method,omitempty"`

	ValidationCode string    `bun:"validation_code,nullzero" json:"validation_code,omitempty"`
	Validated      bool      `bun:"validated" json:"validated"`
	ValidatedAt    time.Time `bun:"validated_at,nullzero" json:"validated_at,omitempty"`

	PurchaseDate time.Time `bun:"purchase_date" json:"purchase_date"`
	EventDate    time.Time `bun:"event_date" json:"event_date"`
	ExpiresAt    time.Time `bun:"expires_at" json:"expires_at"`

	ConfigID int64 `bun:"config_id,nullzero" json:"config_id,omitempty"`

	ArchivedAt    time.Time     `bun:"archived_at" json:"archived_at"`
	ArchivedBy    string        `bun:"archived_by" json:"archived_by"`
	ArchiveReason ArchiveReason `bun:"archive_reason" json:"archive_reason"`
}

// NewTicketArchive snapshots a live ticket field-for-field.
func NewTicketArchive(t Ticket, by string, reason ArchiveReason, at time.Time) TicketArchive {
	return TicketArchive{
		TicketID:       t.TicketID,
		EventID:        t.EventID,
		Kind:           t.Kind,
		Gender:         t.Gender,
		Location:       t.Location,
		Quantity:       t.Quantity,
		UnitCapacity:   t.UnitCapacity,
		TotalPrice:     t.TotalPrice,
		CustomerName:   t.CustomerName,
		CustomerEmail:  t.CustomerEmail,
		CustomerPhone:  t.CustomerPhone,
		CustomerDNI:    t.CustomerDNI,
		PaymentRef:     t.PaymentRef,
		PaymentStatus:  t.PaymentStatus,
		PaymentMethod:  t.PaymentMethod,
		ValidationCode: t.ValidationCode,
		Validated:      t.Validated,
		ValidatedAt:    t.ValidatedAt,
		PurchaseDate:   t.PurchaseDate,
		EventDate:      t.EventDate,
		ExpiresAt:      t.ExpiresAt,
		ConfigID:       t.ConfigID,
		ArchivedAt:     at,
		ArchivedBy:     by,
		ArchiveReason:  reason,
	}
}
