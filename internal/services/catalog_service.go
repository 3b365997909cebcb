package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const catalogListLimit = 200

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	products, err := s.products.List(ctx, repositories.ProductListQuery{
		Category:   strings.TrimSpace(category),
		ActiveOnly: true,
		Limit:      catalogListLimit,
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}

	product, err := s.products.Get(ctx, id)
	if err != nil {
		var fsErr *pfirestore.Error
		if errors.As(err, &fsErr) && fsErr.IsNotFound() {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return domain.Product{}, mapStockRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) SetProductImage(ctx context.Context, id, imageURL string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if strings.TrimSpace(imageURL) == "" {
		return fmt.Errorf("%w: image url is required", ErrStockInvalidInput)
	}

	if err := s.products.SetImageURL(ctx, id, imageURL, s.clock()); err != nil {
		return mapStockRepositoryError(err)
	}
	return nil
}
