package ticket_api

import (
	"errors"
	"fmt"
	"io"
	"ms-admission/internal/payments"
	"ms-admission/internal/utils"
	"net/http"
)

// Providers cap webhook payloads well under this.
const maxWebhookBody = 1 << 16

// PaymentWebhook receives provider notifications, verifies the signature and
// reconciles the referenced ticket. Always answers 200 for notifications we
// deliberately ignore, so the provider stops retrying them.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("unreadable body", err.Error()))
		return
	}

	notification, err := payments.ParseNotification(payload, r.Header.Get("Stripe-Signature"), h.Config.Payment.WebhookSecret)
	if err != nil {
		if errors.Is(err, payments.ErrUnhandledEvent) {
			writeJSON(w, http.StatusOK, utils.SuccessResponse("event ignored", nil))
			return
		}
		h.Logger.Warn("PAYMENT", fmt.Sprintf("webhook rejected: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("verification failed", err.Error()))
		return
	}

	result, err := h.Reconciler.Process(r.Context(), *notification)
	if err != nil {
		if errors.Is(err, payments.ErrUnknownProviderStatus) {
			writeJSON(w, http.StatusOK, utils.SuccessResponse("status ignored", nil))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("notification processed", result))
}
