package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/platform/httpx"
	"github.com/frozen-haven/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

type stockMovementRequest struct {
	ProductID string `json:"productId"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

type stockMovementPayload struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	Type          string    `json:"type"`
	Quantity      int       `json:"quantity"`
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
	Reason        string    `json:"reason"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AdminStockHandlers exposes the back-office stock ledger endpoints.
type AdminStockHandlers struct {
	stock services.StockService
}

// NewAdminStockHandlers constructs a new AdminStockHandlers instance.
func NewAdminStockHandlers(stock services.StockService) *AdminStockHandlers {
	return &AdminStockHandlers{stock: stock}
}

// Routes registers the /admin/stock endpoints.
func (h *AdminStockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stock/movements", h.applyMovement)
	r.Get("/stock/movements", h.listMovements)
	r.Get("/stock/low", h.listLowStock)
}

func (h *AdminStockHandlers) applyMovement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req stockMovementRequest
	if err := decodeJSONBody(w, r, maxAdminBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON body", http.StatusBadRequest))
		return
	}

	movement, err := h.stock.ApplyMovement(ctx, services.StockMovementCommand{
		ProductID: req.ProductID,
		Type:      domain.MovementType(strings.TrimSpace(req.Type)),
		Quantity:  req.Quantity,
		Reason:    req.Reason,
		Reference: req.Reference,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"movement": buildMovementPayload(movement),
	})
}

func (h *AdminStockHandlers) listMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.MovementFilter{ProductID: strings.TrimSpace(query.Get("productId"))}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}

	movements, err := h.stock.ListMovements(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payloads := make([]stockMovementPayload, 0, len(movements))
	for _, movement := range movements {
		payloads = append(payloads, buildMovementPayload(movement))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"movements": payloads})
}

func (h *AdminStockHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stock_service_unavailable", "stock service unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.stock.ListLowStock(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payloads := make([]productPayload, 0, len(products))
	for _, product := range products {
		payloads = append(payloads, buildProductPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": payloads})
}

func buildMovementPayload(movement domain.StockMovement) stockMovementPayload {
	return stockMovementPayload{
		ID:            movement.ID,
		ProductID:     movement.ProductID,
		Type:          string(movement.Type),
		Quantity:      movement.Quantity,
		PreviousStock: movement.PreviousStock,
		NewStock:      movement.NewStock,
		Reason:        movement.Reason,
		Reference:     movement.Reference,
		CreatedAt:     movement.CreatedAt,
	}
}
