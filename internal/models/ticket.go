package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketKind string

const (
	KindGeneral TicketKind = "general"
	KindVIP     TicketKind = "vip"
)

type PaymentStatus string

const (
	StatusPending          PaymentStatus = "pending"
	StatusInProcess        PaymentStatus = "in_process"
	StatusApproved         PaymentStatus = "approved"
	StatusRejected         PaymentStatus = "rejected"
	StatusCancelled        PaymentStatus = "cancelled"
	StatusFailedPreference PaymentStatus = "failed_preference"
)

// Ticket is the live row for a sold admission pass or VIP table reservation.
// It stays in the tickets table until the door scan is long past or the
// archival sweep moves it into ticket_archives.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID string     `bun:"ticket_id,pk" json:"ticket_id"`
	EventID  string     `bun:"event_id" json:"event_id"`
	Kind     TicketKind `bun:"kind" json:"kind"`

	// Gender segments general passes; Location names the VIP table zone.
	// Exactly one of the two is set depending on Kind.
	Gender   string `bun:"gender,nullzero" json:"gender,omitempty"`
	Location string `bun:"location,nullzero" json:"location,omitempty"`

	// Quantity is persons for general passes and tables for VIP.
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

	ValidationCode string    `bun:"validation_code,nullzero,unique" json:"validation_code,omitempty"`
	Validated      bool      `bun:"validated" json:"validated"`
	ValidatedAt    time.Time `bun:"validated_at,nullzero" json:"validated_at,omitempty"`

	PurchaseDate time.Time `bun:"purchase_date" json:"purchase_date"`
	EventDate    time.Time `bun:"event_date" json:"event_date"`
	ExpiresAt    time.Time `bun:"expires_at" json:"expires_at"`

	ConfigID int64  `bun:"config_id,nullzero" json:"config_id,omitempty"`
	QRCode   []byte `bun:"qr_code,nullzero" json:"-"`
}

func (t *Ticket) IsVIP() bool {
	return t.Kind == KindVIP
}

// TimeoutEligible reports whether the archival sweep may reclaim this ticket
// once its reservation window has passed. Approved and terminal tickets are
// never reclaimed by timeout.
func (s PaymentStatus) TimeoutEligible() bool {
	switch s {
	case StatusPending, StatusInProcess, StatusFailedPreference:
		return true
	}
	return false
}

// transitions is the full state machine. pending fans out to every provider
// outcome; in_process and failed_preference may still be revised by the
// provider; approved can only be unwound (refund or chargeback).
var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:          {StatusInProcess, StatusApproved, StatusRejected, StatusCancelled, StatusFailedPreference},
	StatusInProcess:        {StatusApproved, StatusRejected, StatusCancelled},
	StatusFailedPreference: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:         {StatusCancelled, StatusRejected},
}

// CanTransition reports whether from → to is an allowed status change.
// A same-status "transition" is not allowed here; callers treat it as the
// idempotent no-op case before consulting this table.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PurchaseRequest struct {
	EventID      string     `json:"event_id"`
	Kind         TicketKind `json:"kind"`
	Gender       string     `json:"gender,omitempty"`
	Location     string     `json:"location,omitempty"`
	Quantity     int        `json:"quantity"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	DNI          string     `json:"dni"`
	EventDate    time.Time  `json:"event_date"`
}

type PurchaseResponse struct {
	TicketID       string        `json:"ticket_id"`
	ValidationCode string        `json:"validation_code"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	TotalPrice     float64       `json:"total_price"`
	CheckoutURL    string        `json:"checkout_url,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at"`
}
