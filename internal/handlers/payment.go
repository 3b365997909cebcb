package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/frozen-haven/api/internal/platform/httpx"
	"github.com/frozen-haven/api/internal/services"
)

const maxCallbackBodySize = 256 * 1024

// PaymentHandlers exposes the payment provider callback endpoints.
type PaymentHandlers struct {
	payments   services.PaymentService
	callbackMW func(http.Handler) http.Handler
}

// NewPaymentHandlers constructs a new PaymentHandlers instance. The callback
// middleware guards the webhook POST; the verification GET stays open so the
// storefront can poll it after redirect.
func NewPaymentHandlers(payments services.PaymentService, callbackMW func(http.Handler) http.Handler) *PaymentHandlers {
	return &PaymentHandlers{
		payments:   payments,
		callbackMW: callbackMW,
	}
}

// Routes registers the /payment endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.callbackMW != nil {
		r.With(h.callbackMW).Post("/callback", h.handleCallback)
	} else {
		r.Post("/callback", h.handleCallback)
	}
	r.Get("/callback", h.verifyReference)
}

func (h *PaymentHandlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var payload map[string]any
	if err := decodeJSONBody(w, r, maxCallbackBodySize, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.payments.HandleCallback(ctx, callbackCommandFromPayload(payload))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"order": buildOrderPayload(order, nil),
	})
}

func (h *PaymentHandlers) verifyReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	verification, err := h.payments.VerifyReference(ctx, r.URL.Query().Get("reference"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"verification": map[string]any{
			"reference":     verification.Reference,
			"status":        string(verification.Status),
			"amount":        verification.Amount,
			"currency":      verification.Currency,
			"transactionId": verification.TransactionID,
		},
	})
}

// callbackCommandFromPayload extracts the reference, status and transaction
// id from a provider webhook. Providers nest the interesting fields under
// "data"; older integrations post them at the top level.
func callbackCommandFromPayload(payload map[string]any) services.PaymentCallbackCommand {
	fields := payload
	if data, ok := payload["data"].(map[string]any); ok {
		fields = data
	}

	cmd := services.PaymentCallbackCommand{Payload: payload}
	for _, key := range []string{"tx_ref", "txRef", "reference"} {
		if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
			cmd.Reference = strings.TrimSpace(v)
			break
		}
	}
	if v, ok := fields["status"].(string); ok {
		cmd.Status = v
	}
	for _, key := range []string{"transaction_id", "transactionId", "id"} {
		switch v := fields[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				cmd.TransactionID = strings.TrimSpace(v)
			}
		case float64:
			cmd.TransactionID = strconv.FormatInt(int64(v), 10)
		}
		if cmd.TransactionID != "" {
			break
		}
	}
	return cmd
}
