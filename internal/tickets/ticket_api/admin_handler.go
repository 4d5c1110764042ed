package ticket_api

import (
	"encoding/json"
	"fmt"
	"ms-admission/internal/auth"
	"ms-admission/internal/models"
	"ms-admission/internal/utils"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CreateInventory registers a VIP location for an event.
func (h *Handler) CreateInventory(w http.ResponseWriter, r *http.Request) {
	var cfg models.InventoryConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if cfg.EventID == "" || cfg.Location == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid config", "event_id and location are required"))
		return
	}
	if cfg.StockLimit < 0 || cfg.UnitPrice < 0 || cfg.CapacityPerUnit < 1 {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid config", "stock_limit, unit_price and capacity_per_unit must be sensible"))
		return
	}

	if err := h.TicketService.Inventory.CreateConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	h.Logger.LogInventory("CREATE", cfg.EventID, cfg.Location, fmt.Sprintf("limit %d, price %.2f", cfg.StockLimit, cfg.UnitPrice))
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("inventory config created", cfg))
}

// UpdateInventory changes price or limits for a location. Lowering the limit
// below the already sold count is refused by the store.
func (h *Handler) UpdateInventory(w http.ResponseWriter, r *http.Request) {
	var cfg models.InventoryConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}

	if err := h.TicketService.Inventory.UpdateConfig(r.Context(), &cfg); err != nil {
		writeError(w, err)
		return
	}
	h.Logger.LogInventory("UPDATE", cfg.EventID, cfg.Location, fmt.Sprintf("limit %d, price %.2f", cfg.StockLimit, cfg.UnitPrice))
	writeJSON(w, http.StatusOK, utils.SuccessResponse("inventory config updated", cfg))
}

// TriggerSweep runs one sweep pass on demand.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	h.Logger.LogSweep("MANUAL", fmt.Sprintf("sweep requested by %s", h.operator(r)))

	result, err := h.Sweeper.RunOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("sweep completed", result))
}

// TriggerBackfill archives tickets older than the configured age, regardless
// of their expiry timestamps.
func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	h.Logger.LogSweep("MANUAL", fmt.Sprintf("backfill requested by %s", h.operator(r)))

	result, err := h.Sweeper.Backfill(r.Context(), h.Config.Sweep.BackfillAge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("backfill completed", result))
}

// ListArchives returns the archived tickets of an event, the audit trail for
// reclaimed reservations.
func (h *Handler) ListArchives(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	archives, err := h.Sweeper.Archives.ListArchivesByEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("archived tickets", archives))
}

// operator identifies who is calling an admin endpoint, for the audit log.
func (h *Handler) operator(r *http.Request) string {
	if op := auth.Operator(r.Context()); op != "" {
		return op
	}
	if token, err := auth.ExtractTokenFromRequest(r); err == nil {
		if op, err := auth.OperatorFromToken(token); err == nil {
			return op
		}
	}
	return "anonymous"
}
