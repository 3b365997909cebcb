package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/platform/httpx"
	"github.com/frozen-haven/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

type placeOrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// placeOrderRequest uses pointers for the money fields so a missing field is
// distinguishable from an explicit zero.
type placeOrderRequest struct {
	CustomerName        string                  `json:"customerName"`
	CustomerEmail       string                  `json:"customerEmail"`
	CustomerPhone       string                  `json:"customerPhone"`
	DeliveryAddress     string                  `json:"deliveryAddress"`
	SpecialInstructions string                  `json:"specialInstructions"`
	PaymentMethod       string                  `json:"paymentMethod"`
	Subtotal            *float64                `json:"subtotal"`
	DeliveryFee         *float64                `json:"deliveryFee"`
	Total               *float64                `json:"total"`
	Items               []placeOrderItemRequest `json:"items"`
}

type updateOrderRequest struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"paymentStatus"`
	TransactionID *string `json:"transactionId"`
}

type orderItemPayload struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Unit      string  `json:"unit,omitempty"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

type orderPayload struct {
	ID                  string             `json:"id"`
	CustomerName        string             `json:"customerName"`
	CustomerEmail       string             `json:"customerEmail"`
	CustomerPhone       string             `json:"customerPhone"`
	DeliveryAddress     string             `json:"deliveryAddress"`
	SpecialInstructions string             `json:"specialInstructions,omitempty"`
	PaymentMethod       string             `json:"paymentMethod,omitempty"`
	Items               []orderItemPayload `json:"items"`
	Subtotal            float64            `json:"subtotal"`
	DeliveryFee         float64            `json:"deliveryFee"`
	Total               float64            `json:"total"`
	Status              string             `json:"status"`
	PaymentStatus       string             `json:"paymentStatus"`
	TransactionID       string             `json:"transactionId,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

type timelineStepPayload struct {
	Status  string `json:"status"`
	Label   string `json:"label"`
	Reached bool   `json:"reached"`
	Current bool   `json:"current"`
}

// OrderHandlers exposes the storefront order endpoints.
type OrderHandlers struct {
	orders   services.OrderService
	updateMW func(http.Handler) http.Handler
}

// NewOrderHandlers constructs a new OrderHandlers instance. The update
// middleware guards PATCH, which is a back-office operation on an otherwise
// public group.
func NewOrderHandlers(orders services.OrderService, updateMW func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		orders:   orders,
		updateMW: updateMW,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.findOrders)
	r.Get("/{orderID}", h.getOrder)
	if h.updateMW != nil {
		r.With(h.updateMW).Patch("/{orderID}", h.updateOrder)
	} else {
		r.Patch("/{orderID}", h.updateOrder)
	}
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(w, r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
		PaymentMethod:       req.PaymentMethod,
		Subtotal:            req.Subtotal,
		DeliveryFee:         req.DeliveryFee,
		Total:               req.Total,
		Items:               items,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"orderId": order.ID,
		"order":   buildOrderPayload(order, nil),
	})
}

func (h *OrderHandlers) findOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	orders, err := h.orders.FindOrders(ctx, services.OrderLookupCommand{
		OrderID: strings.TrimSpace(query.Get("orderId")),
		Email:   strings.TrimSpace(query.Get("email")),
		Phone:   strings.TrimSpace(query.Get("phone")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order, nil))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": payloads})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	details, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	timeline := make([]timelineStepPayload, 0, len(details.Timeline))
	for _, step := range details.Timeline {
		timeline = append(timeline, timelineStepPayload{
			Status:  string(step.Status),
			Label:   step.Label,
			Reached: step.Reached,
			Current: step.Current,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"order":    buildOrderPayload(details.Order, details.Products),
		"timeline": timeline,
	})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateOrderRequest
	if err := decodeJSONBody(w, r, maxOrderBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOrderCommand{OrderID: chi.URLParam(r, "orderID")}
	if req.Status != nil {
		status := domain.OrderStatus(strings.TrimSpace(*req.Status))
		cmd.Status = &status
	}
	if req.PaymentStatus != nil {
		paymentStatus := domain.PaymentStatus(strings.TrimSpace(*req.PaymentStatus))
		cmd.PaymentStatus = &paymentStatus
	}
	if req.TransactionID != nil {
		cmd.TransactionID = req.TransactionID
	}

	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"order": buildOrderPayload(order, nil),
	})
}

// buildOrderPayload renders an order, enriching items with catalog data when
// a product map is supplied.
func buildOrderPayload(order domain.Order, products map[string]domain.Product) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		payload := orderItemPayload{
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		if product, ok := products[item.ProductID]; ok {
			payload.Unit = product.Unit
			payload.ImageURL = product.ImageURL
		}
		items = append(items, payload)
	}

	return orderPayload{
		ID:                  order.ID,
		CustomerName:        order.CustomerName,
		CustomerEmail:       order.CustomerEmail,
		CustomerPhone:       order.CustomerPhone,
		DeliveryAddress:     order.DeliveryAddress,
		SpecialInstructions: order.SpecialInstructions,
		PaymentMethod:       order.PaymentMethod,
		Items:               items,
		Subtotal:            order.Subtotal,
		DeliveryFee:         order.DeliveryFee,
		Total:               order.Total,
		Status:              string(order.Status),
		PaymentStatus:       string(order.PaymentStatus),
		TransactionID:       order.TransactionID,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
