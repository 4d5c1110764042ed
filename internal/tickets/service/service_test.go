package tickets_test

import (
	"context"
	"database/sql"
	"errors"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/monitoring"
	"ms-admission/internal/tickets/qr"
	tickets "ms-admission/internal/tickets/service"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

type stubGateway struct {
	fail  bool
	calls int
}

func (g *stubGateway) CreateCheckout(ctx context.Context, ticket *models.Ticket) (string, string, error) {
	g.calls++
	if g.fail {
		return "", "", errors.New("provider rejected the preference")
	}
	return "https://checkout.test/session", "cs_" + ticket.TicketID, nil
}

type recordingPublisher struct {
	approved  []models.TicketEvent
	validated []models.TicketEvent
}

func (p *recordingPublisher) PublishTicketApproved(event models.TicketEvent) error {
	p.approved = append(p.approved, event)
	return nil
}

func (p *recordingPublisher) PublishTicketValidated(event models.TicketEvent) error {
	p.validated = append(p.validated, event)
	return nil
}

func setupService(t *testing.T, gateway *stubGateway) (*tickets.TicketService, *recordingPublisher, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()

	for _, model := range []interface{}{(*models.Ticket)(nil), (*models.InventoryConfig)(nil)} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}

	publisher := &recordingPublisher{}
	opts := tickets.Options{
		ReservationWindow: 30 * time.Minute,
		CodeMaxAttempts:   12,
		GeneralPrice:      1500,
	}
	service := tickets.NewTicketService(bunDB, gateway, publisher, qr.NewGenerator("test-secret"), logger.NewLogger(), opts)
	return service, publisher, bunDB
}

func seedLocation(t *testing.T, service *tickets.TicketService, limit int) {
	t.Helper()
	err := service.Inventory.CreateConfig(context.Background(), &models.InventoryConfig{
		EventID:         "event1",
		Location:        "front_stage",
		UnitPrice:       45000,
		StockLimit:      limit,
		CapacityPerUnit: 10,
	})
	assert.NoError(t, err)
}

func vipRequest(quantity int) models.PurchaseRequest {
	return models.PurchaseRequest{
		EventID:   "event1",
		Kind:      models.KindVIP,
		Location:  "front_stage",
		Quantity:  quantity,
		Name:      "Ana Gomez",
		Email:     "ana@example.com",
		DNI:       "30111222",
		EventDate: time.Now().Add(72 * time.Hour),
	}
}

func generalRequest() models.PurchaseRequest {
	return models.PurchaseRequest{
		EventID:   "event1",
		Kind:      models.KindGeneral,
		Gender:    "female",
		Quantity:  2,
		Name:      "Ana Gomez",
		Email:     "ana@example.com",
		DNI:       "30111222",
		EventDate: time.Now().Add(72 * time.Hour),
	}
}

func TestPurchaseGeneral(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, err := service.Purchase(ctx, generalRequest())
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPending, resp.PaymentStatus)
	assert.Equal(t, 3000.0, resp.TotalPrice)
	assert.Len(t, resp.ValidationCode, 6)
	assert.Equal(t, "https://checkout.test/session", resp.CheckoutURL)

	ticket, err := service.GetTicket(ctx, resp.TicketID)
	assert.NoError(t, err)
	assert.Equal(t, "cs_"+resp.TicketID, ticket.PaymentRef)
	assert.False(t, ticket.ExpiresAt.IsZero())
}

func TestPurchaseVIPReservesStock(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 2)
	ctx := context.Background()

	resp, err := service.Purchase(ctx, vipRequest(1))
	assert.NoError(t, err)
	assert.Equal(t, 45000.0, resp.TotalPrice)

	ticket, _ := service.GetTicket(ctx, resp.TicketID)
	assert.Equal(t, 10, ticket.UnitCapacity)
	assert.NotZero(t, ticket.ConfigID)
}

func TestPurchaseVIPSoldOut(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 2)
	ctx := context.Background()

	_, err := service.Purchase(ctx, vipRequest(3))
	var stock *models.InsufficientStockError
	assert.ErrorAs(t, err, &stock)
	assert.Equal(t, 3, stock.Requested)
	assert.Equal(t, 0, gateway.calls)
}

func TestPurchaseVIPUnknownLocation(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	_, err := service.Purchase(ctx, vipRequest(1))
	assert.ErrorIs(t, err, models.ErrConfigNotFound)
}

func TestPurchaseValidation(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	missingGender := generalRequest()
	missingGender.Gender = ""
	_, err := service.Purchase(ctx, missingGender)
	assert.ErrorContains(t, err, "gender")

	missingLocation := vipRequest(1)
	missingLocation.Location = ""
	_, err = service.Purchase(ctx, missingLocation)
	assert.ErrorContains(t, err, "location")

	zeroQuantity := generalRequest()
	zeroQuantity.Quantity = 0
	_, err = service.Purchase(ctx, zeroQuantity)
	assert.ErrorContains(t, err, "quantity")

	badKind := generalRequest()
	badKind.Kind = "backstage"
	_, err = service.Purchase(ctx, badKind)
	assert.ErrorContains(t, err, "kind")
}

func TestPurchaseCheckoutFailureKeepsTicket(t *testing.T) {
	gateway := &stubGateway{fail: true}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, err := service.Purchase(ctx, generalRequest())
	assert.NoError(t, err)
	assert.Equal(t, models.StatusFailedPreference, resp.PaymentStatus)
	assert.Empty(t, resp.CheckoutURL)

	ticket, err := service.GetTicket(ctx, resp.TicketID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusFailedPreference, ticket.PaymentStatus)
	// The sweep can still reclaim it later.
	assert.True(t, ticket.PaymentStatus.TimeoutEligible())
}

func TestTransitionApprovalAllocatesStock(t *testing.T) {
	gateway := &stubGateway{}
	service, publisher, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 2)
	ctx := context.Background()

	resp, err := service.Purchase(ctx, vipRequest(1))
	assert.NoError(t, err)

	result, err := service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, models.StatusPending, result.From)

	cfg, _ := service.Inventory.GetConfig(ctx, "event1", "front_stage")
	assert.Equal(t, 1, cfg.SoldCount)

	ticket, _ := service.GetTicket(ctx, resp.TicketID)
	assert.Equal(t, models.StatusApproved, ticket.PaymentStatus)
	assert.Equal(t, "card", ticket.PaymentMethod)
	assert.NotEmpty(t, ticket.QRCode)

	assert.Len(t, publisher.approved, 1)
	assert.Equal(t, resp.TicketID, publisher.approved[0].TicketID)
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	gateway := &stubGateway{}
	service, publisher, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 2)
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, vipRequest(1))
	_, err := service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)

	// Redelivered approval: nothing moves a second time.
	result, err := service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)
	assert.False(t, result.Applied)
	assert.True(t, result.Replay)

	cfg, _ := service.Inventory.GetConfig(ctx, "event1", "front_stage")
	assert.Equal(t, 1, cfg.SoldCount)
	assert.Len(t, publisher.approved, 1)
}

func TestTransitionCancellationReleasesStock(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 2)
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, vipRequest(2))
	_, err := service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)

	cfg, _ := service.Inventory.GetConfig(ctx, "event1", "front_stage")
	assert.Equal(t, 2, cfg.SoldCount)

	result, err := service.Transition(ctx, resp.TicketID, models.StatusCancelled, "")
	assert.NoError(t, err)
	assert.True(t, result.Applied)

	cfg, _ = service.Inventory.GetConfig(ctx, "event1", "front_stage")
	assert.Equal(t, 0, cfg.SoldCount)
}

func TestTransitionInvalid(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, generalRequest())
	_, err := service.Transition(ctx, resp.TicketID, models.StatusCancelled, "")
	assert.NoError(t, err)

	// Cancelled is terminal.
	_, err = service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	var transition *models.TransitionError
	assert.ErrorAs(t, err, &transition)
	assert.Equal(t, models.StatusCancelled, transition.From)
}

func TestTransitionApprovalFailsWhenStockGone(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 1)
	ctx := context.Background()

	first, _ := service.Purchase(ctx, vipRequest(1))
	second, _ := service.Purchase(ctx, vipRequest(1))

	_, err := service.Transition(ctx, first.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)

	// The second approval would oversell; the whole transition rolls back.
	_, err = service.Transition(ctx, second.TicketID, models.StatusApproved, "card")
	var stock *models.InsufficientStockError
	assert.ErrorAs(t, err, &stock)

	ticket, _ := service.GetTicket(ctx, second.TicketID)
	assert.Equal(t, models.StatusPending, ticket.PaymentStatus)
	cfg, _ := service.Inventory.GetConfig(ctx, "event1", "front_stage")
	assert.Equal(t, 1, cfg.SoldCount)
}

func TestValidate(t *testing.T) {
	gateway := &stubGateway{}
	service, publisher, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, generalRequest())
	_, err := service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)

	ticket, err := service.Validate(ctx, " "+resp.ValidationCode+" ")
	assert.NoError(t, err)
	assert.True(t, ticket.Validated)
	assert.False(t, ticket.ValidatedAt.IsZero())
	assert.Len(t, publisher.validated, 1)
}

func TestValidateSecondScanConflicts(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, generalRequest())
	_, _ = service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")

	first, err := service.Validate(ctx, resp.ValidationCode)
	assert.NoError(t, err)

	_, err = service.Validate(ctx, resp.ValidationCode)
	var already *models.AlreadyValidatedError
	assert.ErrorAs(t, err, &already)
	assert.WithinDuration(t, first.ValidatedAt, already.ValidatedAt, time.Second)
	assert.NotNil(t, already.Ticket)
}

func TestValidateRequiresApproval(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, generalRequest())

	_, err := service.Validate(ctx, resp.ValidationCode)
	var notApproved *models.NotApprovedError
	assert.ErrorAs(t, err, &notApproved)
	assert.Equal(t, models.StatusPending, notApproved.Status)
}

func TestValidateUnknownCode(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()

	_, err := service.Validate(context.Background(), "999999")
	assert.ErrorIs(t, err, models.ErrTicketNotFound)

	_, err = service.Validate(context.Background(), "not-a-code")
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestAvailability(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	seedLocation(t, service, 2)
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, vipRequest(2))
	_, err := service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)

	availability, err := service.Availability(ctx, "event1")
	assert.NoError(t, err)
	assert.Len(t, availability, 1)
	assert.Equal(t, 0, availability[0].Remaining)
	assert.True(t, availability[0].SoldOut)
}

func TestCustomerTickets(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	first, err := service.Purchase(ctx, generalRequest())
	assert.NoError(t, err)
	second, err := service.Purchase(ctx, generalRequest())
	assert.NoError(t, err)

	other := generalRequest()
	other.Email = "someone-else@example.com"
	_, err = service.Purchase(ctx, other)
	assert.NoError(t, err)

	list, err := service.CustomerTickets(ctx, "ana@example.com")
	assert.NoError(t, err)
	assert.Len(t, list, 2)
	ids := []string{list[0].TicketID, list[1].TicketID}
	assert.Contains(t, ids, first.TicketID)
	assert.Contains(t, ids, second.TicketID)

	empty, err := service.CustomerTickets(ctx, "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestValidateConflictsAreCounted(t *testing.T) {
	gateway := &stubGateway{}
	service, _, bunDB := setupService(t, gateway)
	defer bunDB.Close()
	ctx := context.Background()

	resp, _ := service.Purchase(ctx, generalRequest())

	notApprovedBefore := testutil.ToFloat64(monitoring.Validations().WithLabelValues("not_approved"))
	_, err := service.Validate(ctx, resp.ValidationCode)
	var notApproved *models.NotApprovedError
	assert.ErrorAs(t, err, &notApproved)
	assert.Equal(t, notApprovedBefore+1, testutil.ToFloat64(monitoring.Validations().WithLabelValues("not_approved")))

	_, err = service.Transition(ctx, resp.TicketID, models.StatusApproved, "card")
	assert.NoError(t, err)
	_, err = service.Validate(ctx, resp.ValidationCode)
	assert.NoError(t, err)

	alreadyBefore := testutil.ToFloat64(monitoring.Validations().WithLabelValues("already_validated"))
	_, err = service.Validate(ctx, resp.ValidationCode)
	var alreadyValidated *models.AlreadyValidatedError
	assert.ErrorAs(t, err, &alreadyValidated)
	assert.Equal(t, alreadyBefore+1, testutil.ToFloat64(monitoring.Validations().WithLabelValues("already_validated")))
}
