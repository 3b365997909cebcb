package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/frozen-haven/api/internal/payments"
	"github.com/frozen-haven/api/internal/platform/httpx"
	"github.com/frozen-haven/api/internal/services"
)

// writeServiceError translates service errors into the canonical envelope.
// Anything unrecognised becomes a 500 with a generic message so internals
// never leak to storefront clients.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"productId": stockErr.ProductID,
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			}))
		return
	}

	var vErr *services.ValidationError
	if errors.As(err, &vErr) {
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", vErr.Message, http.StatusBadRequest))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrStockInvalidInput),
		errors.Is(err, services.ErrAlertInvalidInput),
		errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "Product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "Customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAlertNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("alert_not_found", "Alert not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidReference):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_reference", "Invalid payment reference", http.StatusBadRequest))
	case errors.Is(err, services.ErrVerificationFailed):
		httpErr := httpx.NewError("verification_failed", "Payment verification failed", http.StatusBadRequest)
		var provErr *payments.VerificationError
		if errors.As(err, &provErr) {
			details := map[string]any{"providerStatus": provErr.StatusCode}
			if provErr.Body != "" {
				details["providerBody"] = provErr.Body
			}
			httpErr = httpErr.WithDetails(details)
		}
		httpx.WriteError(ctx, w, httpErr)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "Internal server error", http.StatusInternalServerError))
	}
}
