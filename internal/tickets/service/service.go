package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"ms-admission/internal/inventory"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/monitoring"
	"ms-admission/internal/tickets/codes"
	"ms-admission/internal/tickets/db"
	"ms-admission/internal/tickets/qr"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrStaleTicket is returned when a transition's precondition no longer holds
// at write time: a concurrent webhook or the sweep got there first. Callers
// exit cleanly; the other writer's outcome stands.
var ErrStaleTicket = errors.New("ticket changed concurrently")

// PaymentGateway creates the provider-side checkout for a new ticket. A
// failure here leaves the ticket in failed_preference rather than dropping
// the purchase.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, ticket *models.Ticket) (url string, paymentRef string, err error)
}

// Publisher streams ticket lifecycle events to downstream consumers.
type Publisher interface {
	PublishTicketApproved(event models.TicketEvent) error
	PublishTicketValidated(event models.TicketEvent) error
}

// Options carries the purchase-path tunables out of config.
type Options struct {
	ReservationWindow time.Duration
	CodeMaxAttempts   int
	GeneralPrice      float64
}

// TicketService owns the ticket payment/validation lifecycle and the
// inventory side effects tied to state transitions. Storage transactions are
// the only synchronization primitive: every read-check-write sequence runs
// inside one RunInTx with the conditional updates doing the real arbitration.
type TicketService struct {
	Bun       *bun.DB
	Tickets   *db.DB
	Inventory *inventory.DB
	Issuer    *codes.Issuer
	Gateway   PaymentGateway
	Publisher Publisher
	QR        *qr.Generator
	Logger    *logger.Logger
	Opts      Options
}

func NewTicketService(bunDB *bun.DB, gateway PaymentGateway, publisher Publisher, qrGen *qr.Generator, log *logger.Logger, opts Options) *TicketService {
	ticketDB := &db.DB{Bun: bunDB}
	return &TicketService{
		Bun:       bunDB,
		Tickets:   ticketDB,
		Inventory: &inventory.DB{Bun: bunDB},
		Issuer:    codes.NewIssuer(ticketDB, opts.CodeMaxAttempts, log),
		Gateway:   gateway,
		Publisher: publisher,
		QR:        qrGen,
		Logger:    log,
		Opts:      opts,
	}
}

// Default isolation: read committed on Postgres, which is all the
// conditional updates need.
func (s *TicketService) txOptions() *sql.TxOptions {
	return &sql.TxOptions{}
}

// ---------------- PURCHASE ----------------

// Purchase creates a pending ticket, gates VIP requests on remaining stock,
// assigns the validation code and opens the provider checkout.
func (s *TicketService) Purchase(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResponse, error) {
	if err := validatePurchase(req); err != nil {
		return nil, err
	}

	now := time.Now()
	ticket := &models.Ticket{
		TicketID:      uuid.NewString(),
		EventID:       req.EventID,
		Kind:          req.Kind,
		Gender:        strings.ToLower(req.Gender),
		Location:      req.Location,
		Quantity:      req.Quantity,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CustomerPhone: req.Phone,
		CustomerDNI:   req.DNI,
		PaymentStatus: models.StatusPending,
		PurchaseDate:  now,
		EventDate:     req.EventDate,
		ExpiresAt:     now.Add(s.Opts.ReservationWindow),
	}

	err := s.Bun.RunInTx(ctx, s.txOptions(), func(ctx context.Context, tx bun.Tx) error {
		tickets := s.Tickets.WithTx(tx)
		ledger := s.Inventory.WithTx(tx)

		if ticket.Kind == models.KindVIP {
			cfg, err := ledger.GetConfig(ctx, req.EventID, req.Location)
			if err != nil {
				return err
			}
			// Re-validate the bound as part of the same transaction that
			// creates the ticket, not from the earlier availability read.
			if err := ledger.ReserveUnits(ctx, req.EventID, req.Location, req.Quantity); err != nil {
				return err
			}
			ticket.UnitCapacity = cfg.CapacityPerUnit
			ticket.TotalPrice = cfg.UnitPrice * float64(req.Quantity)
			ticket.ConfigID = cfg.ID
		} else {
			ticket.TotalPrice = s.Opts.GeneralPrice * float64(req.Quantity)
		}

		return tickets.CreateTicket(ctx, ticket)
	})
	if err != nil {
		var stock *models.InsufficientStockError
		if errors.As(err, &stock) {
			monitoring.TrackStockConflict(req.EventID, req.Location)
		}
		return nil, err
	}

	s.Logger.LogTicket("CREATE", ticket.TicketID, fmt.Sprintf("%s ticket for event %s, total %.2f", ticket.Kind, ticket.EventID, ticket.TotalPrice))

	code, err := s.Issuer.EnsureCode(ctx, ticket.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign validation code: %w", err)
	}
	ticket.ValidationCode = code

	resp := &models.PurchaseResponse{
		TicketID:       ticket.TicketID,
		ValidationCode: code,
		PaymentStatus:  models.StatusPending,
		TotalPrice:     ticket.TotalPrice,
		ExpiresAt:      ticket.ExpiresAt,
	}

	checkoutURL, paymentRef, err := s.Gateway.CreateCheckout(ctx, ticket)
	if err != nil {
		// The provider refused the preference. The ticket stays alive in
		// failed_preference so support can retry; the sweep reclaims it if
		// nobody does.
		s.Logger.Error("PAYMENT", fmt.Sprintf("checkout creation failed for ticket %s: %v", ticket.TicketID, err))
		if _, terr := s.Tickets.TransitionStatus(ctx, ticket.TicketID, models.StatusPending, models.StatusFailedPreference, ""); terr != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("failed to mark ticket %s failed_preference: %v", ticket.TicketID, terr))
		}
		resp.PaymentStatus = models.StatusFailedPreference
		return resp, nil
	}

	if err := s.Tickets.SetPaymentRef(ctx, ticket.TicketID, paymentRef); err != nil {
		return nil, fmt.Errorf("failed to store payment ref: %w", err)
	}
	resp.CheckoutURL = checkoutURL
	return resp, nil
}

func validatePurchase(req models.PurchaseRequest) error {
	var missing []string
	if req.EventID == "" {
		missing = append(missing, "event_id")
	}
	if req.Name == "" {
		missing = append(missing, "name")
	}
	if req.Email == "" {
		missing = append(missing, "email")
	}
	if req.DNI == "" {
		missing = append(missing, "dni")
	}
	switch req.Kind {
	case models.KindGeneral:
		if req.Gender == "" {
			missing = append(missing, "gender")
		}
	case models.KindVIP:
		if req.Location == "" {
			missing = append(missing, "location")
		}
	default:
		return fmt.Errorf("kind must be %q or %q", models.KindGeneral, models.KindVIP)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if req.Quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	return nil
}

// ---------------- STATE MACHINE ----------------

// Transition applies one status change with its inventory side effect, all in
// one transaction. Same-status calls are idempotent no-ops, which is what
// makes webhook redelivery safe.
func (s *TicketService) Transition(ctx context.Context, ticketID string, target models.PaymentStatus, method string) (*models.ReconcileResult, error) {
	var result models.ReconcileResult

	err := s.Bun.RunInTx(ctx, s.txOptions(), func(ctx context.Context, tx bun.Tx) error {
		tickets := s.Tickets.WithTx(tx)
		ledger := s.Inventory.WithTx(tx)

		ticket, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			return err
		}

		result = models.ReconcileResult{TicketID: ticketID, From: ticket.PaymentStatus, To: target}

		if ticket.PaymentStatus == target {
			result.Applied = false
			result.Replay = true
			return nil
		}
		if !models.CanTransition(ticket.PaymentStatus, target) {
			return &models.TransitionError{TicketID: ticketID, From: ticket.PaymentStatus, To: target}
		}

		// Claim the transition first. Zero rows means a concurrent writer
		// (another webhook delivery, or the sweep) invalidated our read.
		rows, err := tickets.TransitionStatus(ctx, ticketID, ticket.PaymentStatus, target, method)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrStaleTicket
		}

		if ticket.IsVIP() {
			switch {
			case target == models.StatusApproved:
				// The reservation at purchase should have made room, but the
				// bound is still enforced here: if the allocation fails the
				// whole transition rolls back.
				if err := ledger.AdjustSold(ctx, ticket.EventID, ticket.Location, ticket.Quantity); err != nil {
					return err
				}
			case ticket.PaymentStatus == models.StatusApproved:
				if err := ledger.AdjustSold(ctx, ticket.EventID, ticket.Location, -ticket.Quantity); err != nil {
					return err
				}
			}
		}

		result.Applied = true
		return nil
	})
	if err != nil {
		var invariant *models.InvariantViolationError
		if errors.As(err, &invariant) {
			s.Logger.LogInvariant("LEDGER", invariant.Error())
			monitoring.TrackInvariantViolation("inventory")
		}
		var stock *models.InsufficientStockError
		if errors.As(err, &stock) {
			monitoring.TrackStockConflict(stock.EventID, stock.Location)
		}
		return nil, err
	}

	if result.Applied {
		s.Logger.LogTicket("TRANSITION", ticketID, fmt.Sprintf("%s -> %s", result.From, result.To))
		if target == models.StatusApproved {
			monitoring.TrackApproval()
			s.afterApproval(ctx, ticketID)
		}
	}
	return &result, nil
}

// afterApproval runs the non-transactional follow-ups: render the QR pass
// and notify downstream. Failures here are logged, never rolled back; the
// approval itself already committed.
func (s *TicketService) afterApproval(ctx context.Context, ticketID string) {
	ticket, err := s.Tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("approved ticket %s vanished before QR generation: %v", ticketID, err))
		return
	}

	if s.QR != nil {
		pass, err := s.QR.GeneratePass(*ticket)
		if err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("failed to generate pass for ticket %s: %v", ticketID, err))
		} else if err := s.Tickets.SetQRCode(ctx, ticketID, pass); err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("failed to store pass for ticket %s: %v", ticketID, err))
		}
	}

	if s.Publisher != nil {
		event := models.TicketEvent{
			Type:      "ticket.approved",
			TicketID:  ticket.TicketID,
			EventID:   ticket.EventID,
			Status:    ticket.PaymentStatus,
			Timestamp: time.Now(),
		}
		if err := s.Publisher.PublishTicketApproved(event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish approval for ticket %s: %v", ticketID, err))
		}
	}
}

// ---------------- DOOR VALIDATION ----------------

// Validate marks an approved ticket as used, exactly once. The conditional
// update is the arbiter: of two concurrent scans of the same code, one wins
// and the other gets AlreadyValidatedError with the winner's timestamp.
func (s *TicketService) Validate(ctx context.Context, rawCode string) (*models.Ticket, error) {
	code, err := codes.Normalize(rawCode)
	if err != nil {
		return nil, err
	}

	var validated *models.Ticket
	err = s.Bun.RunInTx(ctx, s.txOptions(), func(ctx context.Context, tx bun.Tx) error {
		tickets := s.Tickets.WithTx(tx)

		ticket, err := tickets.GetTicketByCode(ctx, code)
		if err != nil {
			return err
		}
		if ticket.PaymentStatus != models.StatusApproved {
			return &models.NotApprovedError{Status: ticket.PaymentStatus, Ticket: ticket}
		}
		if ticket.Validated {
			return &models.AlreadyValidatedError{ValidatedAt: ticket.ValidatedAt, Ticket: ticket}
		}

		now := time.Now()
		rows, err := tickets.MarkValidated(ctx, ticket.TicketID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost a race: between our read and our write either someone
			// scanned this code, or the payment status moved off approved
			// (a concurrent refund, say). Report the committed outcome.
			fresh, err := tickets.GetTicketByCode(ctx, code)
			if err != nil {
				return err
			}
			return validationConflict(fresh)
		}

		ticket.Validated = true
		ticket.ValidatedAt = now
		validated = ticket
		return nil
	})
	if err != nil {
		var notApproved *models.NotApprovedError
		var alreadyValidated *models.AlreadyValidatedError
		switch {
		case errors.As(err, &notApproved):
			monitoring.TrackValidation("not_approved")
		case errors.As(err, &alreadyValidated):
			monitoring.TrackValidation("already_validated")
		}
		return nil, err
	}

	s.Logger.LogTicket("VALIDATE", validated.TicketID, fmt.Sprintf("code %s accepted at the door", code))
	monitoring.TrackValidation("accepted")

	if s.Publisher != nil {
		event := models.TicketEvent{
			Type:      "ticket.validated",
			TicketID:  validated.TicketID,
			EventID:   validated.EventID,
			Status:    validated.PaymentStatus,
			Timestamp: validated.ValidatedAt,
		}
		if err := s.Publisher.PublishTicketValidated(event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish validation for ticket %s: %v", validated.TicketID, err))
		}
	}
	return validated, nil
}

// validationConflict explains a MarkValidated miss from the committed row:
// a refund that moved the ticket off approved reads as a payment conflict,
// an earlier scan reads as already validated with the winner's timestamp.
func validationConflict(fresh *models.Ticket) error {
	if fresh.PaymentStatus != models.StatusApproved {
		return &models.NotApprovedError{Status: fresh.PaymentStatus, Ticket: fresh}
	}
	return &models.AlreadyValidatedError{ValidatedAt: fresh.ValidatedAt, Ticket: fresh}
}

// ---------------- READS ----------------

func (s *TicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.Tickets.GetTicketByID(ctx, id)
}

// CustomerTickets lists a customer's live tickets, newest purchase first.
func (s *TicketService) CustomerTickets(ctx context.Context, email string) ([]models.Ticket, error) {
	return s.Tickets.GetTicketsByEmail(ctx, email)
}

// Availability returns the buyer-facing stock view for an event.
func (s *TicketService) Availability(ctx context.Context, eventID string) ([]models.LocationAvailability, error) {
	configs, err := s.Inventory.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]models.LocationAvailability, len(configs))
	for i, cfg := range configs {
		out[i] = models.LocationAvailability{
			Location:        cfg.Location,
			UnitPrice:       cfg.UnitPrice,
			CapacityPerUnit: cfg.CapacityPerUnit,
			Remaining:       cfg.Remaining(),
			SoldOut:         cfg.Remaining() <= 0,
		}
	}
	return out, nil
}
