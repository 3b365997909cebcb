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

type stubCatalogService struct {
	listFn     func(context.Context, string) ([]domain.Product, error)
	getFn      func(context.Context, string) (domain.Product, error)
	setImageFn func(context.Context, string, string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	if s.listFn != nil {
		return s.listFn(ctx, category)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) SetProductImage(ctx context.Context, id, imageURL string) error {
	if s.setImageFn != nil {
		return s.setImageFn(ctx, id, imageURL)
	}
	return errors.New("not implemented")
}

func productRouter(handler *ProductHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/products", handler.Routes)
	return router
}

func TestProductHandlersListForwardsCategory(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	var capturedCategory string
	service := &stubCatalogService{
		listFn: func(ctx context.Context, category string) ([]domain.Product, error) {
			capturedCategory = category
			return []domain.Product{
				{ID: "prod-chicken", Title: "Frozen Chicken", Category: "poultry", Unit: "kg", Price: 5500, Stock: 20, Active: true, UpdatedAt: now},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/products?category=poultry", nil)
	rr := httptest.NewRecorder()
	productRouter(NewProductHandlers(service)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedCategory != "poultry" {
		t.Fatalf("expected category forwarded, got %q", capturedCategory)
	}

	body := decodeBody(t, rr)
	products, ok := body["products"].([]any)
	if !ok || len(products) != 1 {
		t.Fatalf("expected 1 product, got %v", body["products"])
	}
	product := products[0].(map[string]any)
	if product["id"] != "prod-chicken" || product["price"] != float64(5500) {
		t.Fatalf("unexpected product payload: %v", product)
	}
}

func TestProductHandlersGetNotFound(t *testing.T) {
	service := &stubCatalogService{
		getFn: func(ctx context.Context, id string) (domain.Product, error) {
			return domain.Product{}, fmt.Errorf("product %s: %w", id, services.ErrProductNotFound)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/products/prod-missing", nil)
	rr := httptest.NewRecorder()
	productRouter(NewProductHandlers(service)).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["code"] != "product_not_found" {
		t.Fatalf("expected product_not_found code, got %v", body["code"])
	}
}
