package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/services"
)

type stubCustomerService struct {
	getFn  func(context.Context, string) (domain.Customer, error)
	listFn func(context.Context, int) ([]domain.Customer, error)
}

func (s *stubCustomerService) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return domain.Customer{}, errors.New("not implemented")
}

func (s *stubCustomerService) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if s.listFn != nil {
		return s.listFn(ctx, limit)
	}
	return nil, errors.New("not implemented")
}

func adminCustomerRouter(handler *AdminCustomerHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminCustomersListForwardsLimit(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	var capturedLimit int
	service := &stubCustomerService{
		listFn: func(ctx context.Context, limit int) ([]domain.Customer, error) {
			capturedLimit = limit
			return []domain.Customer{
				{
					ID:          "ada.obi@example.com",
					Email:       "ada.obi@example.com",
					Name:        "Ada Obi",
					TotalOrders: 3,
					TotalSpent:  45200.5,
					LastOrderAt: now,
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/customers?limit=25", nil)
	rr := httptest.NewRecorder()
	adminCustomerRouter(NewAdminCustomerHandlers(service)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedLimit != 25 {
		t.Fatalf("expected limit forwarded, got %d", capturedLimit)
	}

	body := decodeBody(t, rr)
	customers, ok := body["customers"].([]any)
	if !ok || len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %v", body["customers"])
	}
	customer := customers[0].(map[string]any)
	if customer["email"] != "ada.obi@example.com" || customer["totalOrders"] != float64(3) {
		t.Fatalf("unexpected customer payload: %v", customer)
	}
	if customer["totalSpent"] != 45200.5 {
		t.Fatalf("expected total spent, got %v", customer["totalSpent"])
	}
}

func TestAdminCustomersGetNotFound(t *testing.T) {
	service := &stubCustomerService{
		getFn: func(ctx context.Context, id string) (domain.Customer, error) {
			return domain.Customer{}, fmt.Errorf("customer %s: %w", id, services.ErrCustomerNotFound)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/customers/missing@example.com", nil)
	rr := httptest.NewRecorder()
	adminCustomerRouter(NewAdminCustomerHandlers(service)).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["code"] != "customer_not_found" {
		t.Fatalf("expected customer_not_found code, got %v", body["code"])
	}
}
