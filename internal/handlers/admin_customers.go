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

type customerPayload struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	TotalOrders int       `json:"totalOrders"`
	TotalSpent  float64   `json:"totalSpent"`
	LastOrderAt time.Time `json:"lastOrderAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AdminCustomerHandlers exposes the back-office customer endpoints.
type AdminCustomerHandlers struct {
	customers services.CustomerService
}

// NewAdminCustomerHandlers constructs a new AdminCustomerHandlers instance.
func NewAdminCustomerHandlers(customers services.CustomerService) *AdminCustomerHandlers {
	return &AdminCustomerHandlers{customers: customers}
}

// Routes registers the /admin/customers endpoints.
func (h *AdminCustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/customers", h.listCustomers)
	r.Get("/customers/{customerID}", h.getCustomer)
}

func (h *AdminCustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	customers, err := h.customers.ListCustomers(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payloads := make([]customerPayload, 0, len(customers))
	for _, customer := range customers {
		payloads = append(payloads, buildCustomerPayload(customer))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"customers": payloads})
}

func (h *AdminCustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customer_service_unavailable", "customer service unavailable", http.StatusServiceUnavailable))
		return
	}

	customer, err := h.customers.GetCustomer(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"customer": buildCustomerPayload(customer)})
}

func buildCustomerPayload(customer domain.Customer) customerPayload {
	return customerPayload{
		ID:          customer.ID,
		Email:       customer.Email,
		Name:        customer.Name,
		Phone:       customer.Phone,
		Address:     customer.Address,
		TotalOrders: customer.TotalOrders,
		TotalSpent:  customer.TotalSpent,
		LastOrderAt: customer.LastOrderAt,
		CreatedAt:   customer.CreatedAt,
	}
}
