package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

func newCatalogService(t *testing.T, products repositories.ProductRepository) CatalogService {
	t.Helper()
	service, err := NewCatalogService(CatalogServiceDeps{
		Products: products,
		Clock:    func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return service
}

func TestCatalogServiceListFiltersActiveProducts(t *testing.T) {
	var captured repositories.ProductListQuery
	repo := &stubProductRepo{
		listFn: func(_ context.Context, query repositories.ProductListQuery) ([]domain.Product, error) {
			captured = query
			return []domain.Product{{ID: "prod-1", Title: "Frozen Chicken"}}, nil
		},
	}

	products, err := newCatalogService(t, repo).ListProducts(context.Background(), "  poultry ")
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 1 || products[0].ID != "prod-1" {
		t.Fatalf("unexpected products %v", products)
	}
	if captured.Category != "poultry" {
		t.Fatalf("expected trimmed category, got %q", captured.Category)
	}
	if !captured.ActiveOnly {
		t.Fatal("catalog reads must exclude inactive products")
	}
	if captured.Limit != catalogListLimit {
		t.Fatalf("unexpected limit %d", captured.Limit)
	}
}

func TestCatalogServiceGetMapsNotFound(t *testing.T) {
	repo := &stubProductRepo{
		getFn: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, pfirestore.WrapError("product.get", status.Error(codes.NotFound, "missing"))
		},
	}

	_, err := newCatalogService(t, repo).GetProduct(context.Background(), "prod-9")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalogServiceGetRequiresID(t *testing.T) {
	_, err := newCatalogService(t, &stubProductRepo{}).GetProduct(context.Background(), "  ")
	if !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
}

func TestCatalogServiceSetProductImageStampsClock(t *testing.T) {
	var gotID, gotURL string
	var gotNow time.Time
	repo := &stubProductRepo{
		setImageURLFn: func(_ context.Context, productID, imageURL string, now time.Time) error {
			gotID, gotURL, gotNow = productID, imageURL, now
			return nil
		},
	}

	err := newCatalogService(t, repo).SetProductImage(context.Background(), "prod-1", "https://cdn.example.com/prod-1.webp")
	if err != nil {
		t.Fatalf("SetProductImage: %v", err)
	}
	if gotID != "prod-1" || gotURL != "https://cdn.example.com/prod-1.webp" {
		t.Fatalf("unexpected arguments %q %q", gotID, gotURL)
	}
	want := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	if !gotNow.Equal(want) {
		t.Fatalf("expected clock time %v, got %v", want, gotNow)
	}
}

func TestCatalogServiceSetProductImageValidatesInput(t *testing.T) {
	service := newCatalogService(t, &stubProductRepo{})

	if err := service.SetProductImage(context.Background(), "", "https://cdn.example.com/a.png"); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for missing id, got %v", err)
	}
	if err := service.SetProductImage(context.Background(), "prod-1", "  "); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput for missing url, got %v", err)
	}
}
