package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/repositories"
)

const (
	defaultLowStockThreshold = 5
	defaultMovementPageLimit = 50
	lowStockListLimit        = 100
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrProductNotFound indicates the referenced product does not exist.
	ErrProductNotFound = errors.New("stock: product not found")
	// ErrInsufficientStock indicates an out movement would drop stock below zero.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
)

// InsufficientStockError carries availability details for API responses.
type InsufficientStockError struct {
	ProductID string
	Title     string
	Available int
	Requested int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	name := e.Title
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", name, e.Available, e.Requested)
}

// Unwrap lets callers match with errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// StockServiceDeps bundles the collaborators required to construct a stock service.
type StockServiceDeps struct {
	Products          repositories.ProductRepository
	Alerts            AlertService
	LowStockThreshold int
	MovementPageLimit int
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	products  repositories.ProductRepository
	alerts    AlertService
	threshold int
	pageLimit int
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}

	threshold := deps.LowStockThreshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	pageLimit := deps.MovementPageLimit
	if pageLimit <= 0 {
		pageLimit = defaultMovementPageLimit
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		products:  deps.Products,
		alerts:    deps.Alerts,
		threshold: threshold,
		pageLimit: pageLimit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *stockService) ApplyMovement(ctx context.Context, cmd StockMovementCommand) (domain.StockMovement, error) {
	applied, err := s.ApplyMovements(ctx, []StockMovementCommand{cmd})
	if err != nil {
		return domain.StockMovement{}, err
	}
	return applied[0], nil
}

func (s *stockService) ApplyMovements(ctx context.Context, cmds []StockMovementCommand) ([]domain.StockMovement, error) {
	movements, err := s.buildMovements(cmds, s.clock())
	if err != nil {
		return nil, err
	}

	applied, err := s.products.ApplyMovements(ctx, movements)
	if err != nil {
		return nil, mapStockRepositoryError(err)
	}

	s.logger(ctx, "stock.movements_applied", map[string]any{"count": len(applied)})
	s.raiseLowStockAlerts(ctx, applied)

	return applied, nil
}

func (s *stockService) CheckAvailability(ctx context.Context, productID string, quantity int) (StockAvailability, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockAvailability{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if quantity <= 0 {
		return StockAvailability{}, fmt.Errorf("%w: quantity must be positive", ErrStockInvalidInput)
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return StockAvailability{}, mapStockRepositoryError(err)
	}

	return StockAvailability{
		ProductID: product.ID,
		Title:     product.Title,
		Available: product.Stock,
		Requested: quantity,
		InStock:   product.Active && product.Stock >= quantity,
	}, nil
}

func (s *stockService) ListMovements(ctx context.Context, filter MovementFilter) ([]domain.StockMovement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	movements, err := s.products.ListMovements(ctx, repositories.MovementListQuery{
		ProductID: strings.TrimSpace(filter.ProductID),
		Limit:     limit,
	})
	if err != nil {
		return nil, mapStockRepositoryError(err)
	}
	return movements, nil
}

func (s *stockService) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.ListLowStock(ctx, s.threshold, lowStockListLimit)
	if err != nil {
		return nil, mapStockRepositoryError(err)
	}
	return products, nil
}

func (s *stockService) buildMovements(cmds []StockMovementCommand, now time.Time) ([]domain.StockMovement, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("%w: at least one movement is required", ErrStockInvalidInput)
	}

	movements := make([]domain.StockMovement, 0, len(cmds))
	for _, cmd := range cmds {
		productID := strings.TrimSpace(cmd.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
		}
		if !cmd.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown movement type %q", ErrStockInvalidInput, cmd.Type)
		}
		if cmd.Quantity < 0 || (cmd.Type != domain.MovementAdjustment && cmd.Quantity == 0) {
			return nil, fmt.Errorf("%w: quantity %d is not allowed for %s movements", ErrStockInvalidInput, cmd.Quantity, cmd.Type)
		}
		if strings.TrimSpace(cmd.Reason) == "" {
			return nil, fmt.Errorf("%w: reason is required", ErrStockInvalidInput)
		}

		movements = append(movements, domain.StockMovement{
			ID:        s.newID(),
			ProductID: productID,
			Type:      cmd.Type,
			Quantity:  cmd.Quantity,
			Reason:    strings.TrimSpace(cmd.Reason),
			Reference: strings.TrimSpace(cmd.Reference),
			CreatedAt: now,
		})
	}
	return movements, nil
}

func (s *stockService) raiseLowStockAlerts(ctx context.Context, applied []domain.StockMovement) {
	if s.alerts == nil {
		return
	}
	for _, m := range applied {
		if m.Type == domain.MovementIn || m.NewStock > s.threshold {
			continue
		}
		_, err := s.alerts.Notify(ctx, AlertCommand{
			Message:  fmt.Sprintf("Low stock: product %s is down to %d", m.ProductID, m.NewStock),
			Category: domain.AlertCategoryStock,
			Priority: domain.AlertPriorityMedium,
			Metadata: map[string]any{
				"productId": m.ProductID,
				"stock":     m.NewStock,
			},
		})
		if err != nil {
			s.logger(ctx, "stock.low_stock_alert_failed", map[string]any{
				"productId": m.ProductID,
				"error":     err.Error(),
			})
		}
	}
}

func mapStockRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return &InsufficientStockError{
				ProductID: stockErr.ProductID,
				Available: stockErr.Available,
				Requested: stockErr.Requested,
			}
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, stockErr.Message)
		case repositories.StockErrorInvalidMovement:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}

	return err
}
