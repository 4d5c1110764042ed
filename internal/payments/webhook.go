package payments

import (
	"encoding/json"
	"fmt"
	"ms-admission/internal/models"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseNotification verifies a provider webhook signature and extracts the
// payment notification. The event vocabulary is passed through untranslated;
// mapping to internal statuses happens in the reconciler.
func ParseNotification(payload []byte, sigHeader, secret string) (*models.ProviderNotification, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		method := ""
		if len(session.PaymentMethodTypes) > 0 {
			method = session.PaymentMethodTypes[0]
		}
		return &models.ProviderNotification{
			NotificationID:  event.ID,
			PaymentID:       session.ID,
			MerchantOrderID: session.ClientReferenceID,
			Status:          string(event.Type),
			PaymentMethod:   method,
			ReceivedAt:      time.Now(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}
}
