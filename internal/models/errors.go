package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrConfigNotFound = errors.New("inventory config not found")

	// ErrCodeSpaceExhausted means the bounded retry loop for validation code
	// assignment ran out of attempts. The 6-digit space is under pressure and
	// someone needs to look at it; do not retry blindly.
	ErrCodeSpaceExhausted = errors.New("validation code space exhausted")

	ErrInvalidCode = errors.New("validation code must be exactly six digits")
)

// InsufficientStockError is the typed conflict returned when a reservation or
// approval asks for more VIP tables than remain. Never conflated with a
// missing config row.
type InsufficientStockError struct {
	EventID   string
	Location  string
	Requested int
	Remaining int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for event %s location %s: requested %d, remaining %d",
		e.EventID, e.Location, e.Requested, e.Remaining)
}

// InvariantViolationError signals that a committed adjustment would have
// driven sold_count below zero or above stock_limit. This is a defect signal,
// not a user error: the transaction was aborted and the caller must surface
// it loudly.
type InvariantViolationError struct {
	EventID  string
	Location string
	Delta    int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("inventory invariant violation for event %s location %s: delta %+d rejected",
		e.EventID, e.Location, e.Delta)
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	TicketID string
	From     PaymentStatus
	To       PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ticket %s: transition %s -> %s not allowed", e.TicketID, e.From, e.To)
}

// NotApprovedError is the door-scan conflict for a ticket that has not been
// paid yet (or was rejected). It carries the snapshot so staff can see why.
type NotApprovedError struct {
	Status PaymentStatus
	Ticket *Ticket
}

func (e *NotApprovedError) Error() string {
	return fmt.Sprintf("ticket is not approved (current status: %s)", e.Status)
}

// AlreadyValidatedError is the door-scan conflict for a pass that was already
// used, carrying the original scan time.
type AlreadyValidatedError struct {
	ValidatedAt time.Time
	Ticket      *Ticket
}

func (e *AlreadyValidatedError) Error() string {
	return fmt.Sprintf("ticket already validated at %s", e.ValidatedAt.Format(time.RFC3339))
}
