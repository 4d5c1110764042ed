package payments

import (
	"context"
	"errors"
	"fmt"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/monitoring"
	tickets "ms-admission/internal/tickets/service"
)

var (
	ErrUnhandledEvent        = errors.New("unhandled provider event")
	ErrUnknownProviderStatus = errors.New("unknown provider status")
)

// providerStatus is the single place where provider vocabulary is mapped to
// internal payment statuses. Hosted checkout event names and the plain words
// queue redeliveries use both land here.
var providerStatus = map[string]models.PaymentStatus{
	"checkout.session.completed":               models.StatusApproved,
	"checkout.session.async_payment_succeeded": models.StatusApproved,
	"checkout.session.async_payment_failed":    models.StatusRejected,
	"checkout.session.expired":                 models.StatusCancelled,

	"approved":     models.StatusApproved,
	"paid":         models.StatusApproved,
	"succeeded":    models.StatusApproved,
	"pending":      models.StatusPending,
	"in_process":   models.StatusInProcess,
	"processing":   models.StatusInProcess,
	"rejected":     models.StatusRejected,
	"failed":       models.StatusRejected,
	"cancelled":    models.StatusCancelled,
	"canceled":     models.StatusCancelled,
	"expired":      models.StatusCancelled,
	"refunded":     models.StatusCancelled,
	"charged_back": models.StatusCancelled,
}

// TranslateStatus maps one provider status word to the internal vocabulary.
func TranslateStatus(provider string) (models.PaymentStatus, bool) {
	status, ok := providerStatus[provider]
	return status, ok
}

// Reconciler applies verified provider notifications to tickets. Safe under
// redelivery: the replay cache short-circuits known notifications and the
// state machine treats same-status transitions as no-ops, so inventory is
// never adjusted twice for one payment.
type Reconciler struct {
	Service *tickets.TicketService
	Cache   ReplayCache
	Logger  *logger.Logger
}

func NewReconciler(service *tickets.TicketService, cache ReplayCache, log *logger.Logger) *Reconciler {
	return &Reconciler{Service: service, Cache: cache, Logger: log}
}

func (r *Reconciler) Process(ctx context.Context, n models.ProviderNotification) (*models.ReconcileResult, error) {
	if r.Cache != nil && n.NotificationID != "" && r.Cache.Seen(ctx, n.NotificationID) {
		monitoring.TrackWebhook("replay")
		r.Logger.LogPayment("WEBHOOK", n.PaymentID, fmt.Sprintf("notification %s already processed", n.NotificationID))
		return &models.ReconcileResult{Replay: true}, nil
	}

	target, ok := TranslateStatus(n.Status)
	if !ok {
		monitoring.TrackWebhook("unknown_status")
		return nil, fmt.Errorf("%w: %q", ErrUnknownProviderStatus, n.Status)
	}

	ticket, err := r.resolve(ctx, n)
	if err != nil {
		monitoring.TrackWebhook("unresolved")
		return nil, err
	}

	result, err := r.apply(ctx, ticket.TicketID, target, n.PaymentMethod)
	if err != nil {
		monitoring.TrackWebhook("error")
		return nil, err
	}

	if r.Cache != nil && n.NotificationID != "" {
		r.Cache.MarkSeen(ctx, n.NotificationID)
	}
	if result.Applied {
		monitoring.TrackWebhook("applied")
	} else {
		monitoring.TrackWebhook("noop")
	}
	return result, nil
}

// resolve finds the live ticket the notification talks about: by payment
// reference first, then by the merchant order ID, which checkout sessions
// carry as the ticket ID.
func (r *Reconciler) resolve(ctx context.Context, n models.ProviderNotification) (*models.Ticket, error) {
	ticket, err := r.Service.Tickets.GetTicketByPaymentRef(ctx, n.PaymentID)
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, models.ErrTicketNotFound) {
		return nil, err
	}
	if n.MerchantOrderID == "" {
		return nil, err
	}
	return r.Service.Tickets.GetTicketByID(ctx, n.MerchantOrderID)
}

func (r *Reconciler) apply(ctx context.Context, ticketID string, target models.PaymentStatus, method string) (*models.ReconcileResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		result, err := r.Service.Transition(ctx, ticketID, target, method)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, tickets.ErrStaleTicket) {
			// Another delivery or the sweep moved the ticket under us;
			// re-read and try once more before giving up.
			continue
		}
		var transition *models.TransitionError
		if errors.As(err, &transition) {
			// Out-of-order delivery: a stale status arrived after a final one.
			// The committed state wins.
			r.Logger.Warn("PAYMENT", fmt.Sprintf("ignoring out-of-order notification for ticket %s: %v", ticketID, err))
			return &models.ReconcileResult{TicketID: ticketID, From: transition.From, To: target, Applied: false}, nil
		}
		return nil, err
	}
	return nil, tickets.ErrStaleTicket
}
