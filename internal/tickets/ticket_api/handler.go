package ticket_api

import (
	"encoding/json"
	"errors"
	"ms-admission/internal/archive"
	"ms-admission/internal/config"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/payments"
	tickets "ms-admission/internal/tickets/service"
	"ms-admission/internal/utils"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	TicketService *tickets.TicketService
	Reconciler    *payments.Reconciler
	Sweeper       *archive.Sweeper
	Config        *config.Config
	Logger        *logger.Logger
}

func NewHandler(service *tickets.TicketService, reconciler *payments.Reconciler, sweeper *archive.Sweeper, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: service,
		Reconciler:    reconciler,
		Sweeper:       sweeper,
		Config:        cfg,
		Logger:        log,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to HTTP statuses. Conflicts that carry a
// ticket snapshot (already validated, not approved) include it in the body
// so door staff see what state the ticket is actually in.
func writeError(w http.ResponseWriter, err error) {
	var stock *models.InsufficientStockError
	var transition *models.TransitionError
	var notApproved *models.NotApprovedError
	var alreadyValidated *models.AlreadyValidatedError

	switch {
	case errors.Is(err, models.ErrTicketNotFound), errors.Is(err, models.ErrConfigNotFound):
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("not found", err.Error()))
	case errors.Is(err, models.ErrInvalidCode):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid code", err.Error()))
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("sold out", err.Error()))
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("invalid transition", err.Error()))
	case errors.As(err, &notApproved):
		writeJSON(w, http.StatusConflict, utils.ConflictResponse("ticket not approved", err.Error(), notApproved.Ticket))
	case errors.As(err, &alreadyValidated):
		writeJSON(w, http.StatusConflict, utils.ConflictResponse("ticket already validated", err.Error(), alreadyValidated.Ticket))
	default:
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal error", err.Error()))
	}
}

// PurchaseTicket creates a new ticket and opens the payment checkout.
func (h *Handler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	var req models.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	resp, err := h.TicketService.Purchase(r.Context(), req)
	if err != nil {
		var stock *models.InsufficientStockError
		switch {
		case errors.As(err, &stock), errors.Is(err, models.ErrConfigNotFound), errors.Is(err, models.ErrCodeSpaceExhausted):
			writeError(w, err)
		default:
			// Everything else out of Purchase is request validation.
			writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("purchase rejected", err.Error()))
		}
		return
	}

	status := http.StatusCreated
	if resp.PaymentStatus == models.StatusFailedPreference {
		// Ticket exists but checkout could not be opened.
		status = http.StatusAccepted
	}
	writeJSON(w, status, utils.SuccessResponse("ticket created", resp))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

// TicketPass serves the encrypted QR pass of an approved ticket as PNG.
func (h *Handler) TicketPass(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.TicketService.GetTicket(r.Context(), ticketID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(ticket.QRCode) == 0 {
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("pass not available", "ticket has no pass yet"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(ticket.QRCode)
}

// CustomerTickets lists the live tickets bought with an email address, so a
// buyer can recover a lost validation code.
func (h *Handler) CustomerTickets(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request", "email query parameter is required"))
		return
	}

	list, err := h.TicketService.CustomerTickets(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("tickets", list))
}

// EventAvailability returns the remaining VIP stock per location.
func (h *Handler) EventAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	availability, err := h.TicketService.Availability(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("availability", availability))
}

// ValidateTicket handles the door scan: a six-digit code in, the validated
// ticket out, or the conflict that explains why not.
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	ticket, err := h.TicketService.Validate(r.Context(), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket validated", ticket))
}
