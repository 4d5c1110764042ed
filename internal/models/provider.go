package models

import "time"

// ProviderNotification is the verified payload of a payment provider webhook
// (or its Kafka redelivery). PaymentID is the provider's payment reference,
// which tickets store in payment_ref.
type ProviderNotification struct {
	// NotificationID identifies the delivery itself, not the payment; the
	// replay cache keys on it.
	NotificationID  string    `json:"notification_id"`
	PaymentID       string    `json:"payment_id"`
	MerchantOrderID string    `json:"merchant_order_id,omitempty"`
	Status          string    `json:"status"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// ReconcileResult describes what applying one notification did.
type ReconcileResult struct {
	TicketID string        `json:"ticket_id"`
	From     PaymentStatus `json:"from"`
	To       PaymentStatus `json:"to"`
	Applied  bool          `json:"applied"`
	Replay   bool          `json:"replay,omitempty"`
}

// TicketEvent is the lifecycle message published to Kafka when a ticket
// changes state in a way downstream services care about.
type TicketEvent struct {
	Type      string        `json:"type"`
	TicketID  string        `json:"ticket_id"`
	EventID   string        `json:"event_id"`
	Status    PaymentStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// SweepResult is the outcome envelope of one sweep or backfill pass.
type SweepResult struct {
	Checked  int       `json:"checked"`
	Archived int       `json:"archived"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Now      time.Time `json:"now"`
}
