package payments

import (
	"context"
	"errors"
	"fmt"
	"ms-admission/internal/config"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrGatewayInitFailed = errors.New("failed to initialize payment gateway client")

// StripeGateway opens hosted checkout sessions for new tickets. The session
// ID becomes the ticket's payment reference; webhook notifications carry it
// back so the reconciler can resolve the ticket.
type StripeGateway struct {
	client *client.API
	cfg    config.PaymentConfig
	log    *logger.Logger
}

func NewStripeGateway(cfg config.PaymentConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not set")
		return nil, ErrGatewayInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "failed to initialize Stripe client")
		return nil, ErrGatewayInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized")
	return &StripeGateway{client: sc, cfg: cfg, log: log}, nil
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, ticket *models.Ticket) (string, string, error) {
	if ticket.TotalPrice <= 0 {
		return "", "", fmt.Errorf("invalid checkout amount: %.2f", ticket.TotalPrice)
	}

	description := fmt.Sprintf("General admission x%d", ticket.Quantity)
	if ticket.IsVIP() {
		description = fmt.Sprintf("VIP table %s x%d", ticket.Location, ticket.Quantity)
	}

	// Stripe wants the smallest currency unit.
	amount := int64(ticket.TotalPrice * 100)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		CustomerEmail:     stripe.String(ticket.CustomerEmail),
		ClientReferenceID: stripe.String(ticket.TicketID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.cfg.Currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
			},
		},
		Metadata: map[string]string{
			"ticket_id": ticket.TicketID,
			"event_id":  ticket.EventID,
		},
	}
	params.Context = ctx

	session, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("checkout session creation failed for ticket %s: %v", ticket.TicketID, err))
		return "", "", err
	}

	g.log.LogPayment("CHECKOUT", session.ID, fmt.Sprintf("session opened for ticket %s, amount %.2f %s", ticket.TicketID, ticket.TotalPrice, g.cfg.Currency))
	return session.URL, session.ID, nil
}
