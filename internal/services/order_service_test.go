package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/repositories"
)

type stubProductRepo struct {
	getFn            func(ctx context.Context, id string) (domain.Product, error)
	getManyFn        func(ctx context.Context, ids []string) (map[string]domain.Product, error)
	listFn           func(ctx context.Context, query repositories.ProductListQuery) ([]domain.Product, error)
	applyMovementsFn func(ctx context.Context, movements []domain.StockMovement) ([]domain.StockMovement, error)
	listMovementsFn  func(ctx context.Context, query repositories.MovementListQuery) ([]domain.StockMovement, error)
	listLowStockFn   func(ctx context.Context, threshold, limit int) ([]domain.Product, error)
	setImageURLFn    func(ctx context.Context, productID, imageURL string, now time.Time) error
}

func (s *stubProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if s.getManyFn != nil {
		return s.getManyFn(ctx, ids)
	}
	return map[string]domain.Product{}, nil
}

func (s *stubProductRepo) List(ctx context.Context, query repositories.ProductListQuery) ([]domain.Product, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return nil, nil
}

func (s *stubProductRepo) ApplyMovements(ctx context.Context, movements []domain.StockMovement) ([]domain.StockMovement, error) {
	if s.applyMovementsFn != nil {
		return s.applyMovementsFn(ctx, movements)
	}
	return movements, nil
}

func (s *stubProductRepo) ListMovements(ctx context.Context, query repositories.MovementListQuery) ([]domain.StockMovement, error) {
	if s.listMovementsFn != nil {
		return s.listMovementsFn(ctx, query)
	}
	return nil, nil
}

func (s *stubProductRepo) ListLowStock(ctx context.Context, threshold, limit int) ([]domain.Product, error) {
	if s.listLowStockFn != nil {
		return s.listLowStockFn(ctx, threshold, limit)
	}
	return nil, nil
}

func (s *stubProductRepo) SetImageURL(ctx context.Context, productID, imageURL string, now time.Time) error {
	if s.setImageURLFn != nil {
		return s.setImageURLFn(ctx, productID, imageURL, now)
	}
	return nil
}

type stubOrderRepo struct {
	createFn             func(ctx context.Context, order domain.Order, movements []domain.StockMovement) ([]domain.StockMovement, error)
	getFn                func(ctx context.Context, id string) (domain.Order, error)
	findFn               func(ctx context.Context, query repositories.OrderLookupQuery) ([]domain.Order, error)
	updateFn             func(ctx context.Context, id string, patch repositories.OrderPatch, now time.Time) (domain.Order, error)
	applyPaymentResultFn func(ctx context.Context, id string, result repositories.PaymentResult, now time.Time) (domain.Order, error)
}

func (s *stubOrderRepo) Create(ctx context.Context, order domain.Order, movements []domain.StockMovement) ([]domain.StockMovement, error) {
	if s.createFn != nil {
		return s.createFn(ctx, order, movements)
	}
	return movements, nil
}

func (s *stubOrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByContact(ctx context.Context, query repositories.OrderLookupQuery) ([]domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, query)
	}
	return nil, nil
}

func (s *stubOrderRepo) Update(ctx context.Context, id string, patch repositories.OrderPatch, now time.Time) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, patch, now)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ApplyPaymentResult(ctx context.Context, id string, result repositories.PaymentResult, now time.Time) (domain.Order, error) {
	if s.applyPaymentResultFn != nil {
		return s.applyPaymentResultFn(ctx, id, result, now)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubCustomerRepo struct {
	recordOrderFn func(ctx context.Context, snapshot repositories.CustomerOrderSnapshot) (domain.Customer, error)
	getFn         func(ctx context.Context, id string) (domain.Customer, error)
	listFn        func(ctx context.Context, limit int) ([]domain.Customer, error)
}

func (s *stubCustomerRepo) RecordOrder(ctx context.Context, snapshot repositories.CustomerOrderSnapshot) (domain.Customer, error) {
	if s.recordOrderFn != nil {
		return s.recordOrderFn(ctx, snapshot)
	}
	return domain.Customer{}, nil
}

func (s *stubCustomerRepo) Get(ctx context.Context, id string) (domain.Customer, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return domain.Customer{}, errors.New("not implemented")
}

func (s *stubCustomerRepo) List(ctx context.Context, limit int) ([]domain.Customer, error) {
	if s.listFn != nil {
		return s.listFn(ctx, limit)
	}
	return nil, nil
}

type captureAlertService struct {
	notifyErr error
	commands  []AlertCommand
}

func (c *captureAlertService) Notify(_ context.Context, cmd AlertCommand) (domain.AdminAlert, error) {
	c.commands = append(c.commands, cmd)
	if c.notifyErr != nil {
		return domain.AdminAlert{}, c.notifyErr
	}
	return domain.AdminAlert{ID: "alert-1", Message: cmd.Message}, nil
}

func (c *captureAlertService) List(context.Context, AlertFilter) ([]domain.AdminAlert, error) {
	return nil, nil
}

func (c *captureAlertService) MarkRead(context.Context, string) error {
	return nil
}

func (c *captureAlertService) Cleanup(context.Context) (int, error) {
	return 0, nil
}

func testCatalog() map[string]domain.Product {
	return map[string]domain.Product{
		"prod-chicken": {ID: "prod-chicken", Title: "Frozen Chicken", Price: 5500, Stock: 20, Active: true},
		"prod-fish":    {ID: "prod-fish", Title: "Frozen Fish", Price: 4200.25, Stock: 4, Active: true},
	}
}

func money(v float64) *float64 {
	return &v
}

func validPlaceOrderCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		CustomerName:    "Ada Obi",
		CustomerEmail:   "Ada.Obi@Example.com",
		CustomerPhone:   "+2348012345678",
		DeliveryAddress: "12 Marina Road, Lagos",
		Subtotal:        money(15200.25),
		DeliveryFee:     money(1500),
		Total:           money(16700.25),
		Items: []OrderItemInput{
			{ProductID: "prod-chicken", Quantity: 2},
			{ProductID: "prod-fish", Quantity: 1},
		},
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestOrderServicePlaceOrderHappyPath(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			if len(ids) != 2 {
				t.Fatalf("expected 2 product ids, got %d", len(ids))
			}
			return testCatalog(), nil
		},
	}
	var created domain.Order
	var createdMovements []domain.StockMovement
	orders := &stubOrderRepo{
		createFn: func(_ context.Context, order domain.Order, movements []domain.StockMovement) ([]domain.StockMovement, error) {
			created = order
			createdMovements = movements
			return movements, nil
		},
	}
	var snapshot repositories.CustomerOrderSnapshot
	customers := &stubCustomerRepo{
		recordOrderFn: func(_ context.Context, s repositories.CustomerOrderSnapshot) (domain.Customer, error) {
			snapshot = s
			return domain.Customer{ID: s.Email}, nil
		},
	}
	alerts := &captureAlertService{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:      orders,
		Products:    products,
		Customers:   customers,
		Alerts:      alerts,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "mv-1" },
	})

	order, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if !strings.HasPrefix(order.ID, "ORD-1749556800000-") {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	suffix := strings.TrimPrefix(order.ID, "ORD-1749556800000-")
	if len(suffix) != 9 || suffix != strings.ToUpper(suffix) {
		t.Fatalf("unexpected order id suffix %q", suffix)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected initial statuses %s/%s", order.Status, order.PaymentStatus)
	}
	if order.CustomerEmail != "ada.obi@example.com" {
		t.Fatalf("email not normalised: %s", order.CustomerEmail)
	}
	if order.Subtotal != 15200.25 {
		t.Fatalf("unexpected subtotal %v", order.Subtotal)
	}
	if order.Total != order.Subtotal+order.DeliveryFee {
		t.Fatalf("total %v != subtotal %v + fee %v", order.Total, order.Subtotal, order.DeliveryFee)
	}
	if created.ID != order.ID {
		t.Fatalf("order was not persisted")
	}
	if len(createdMovements) != 2 {
		t.Fatalf("expected 2 stock movements, got %d", len(createdMovements))
	}
	for _, m := range createdMovements {
		if m.Type != domain.MovementOut {
			t.Fatalf("expected out movement, got %s", m.Type)
		}
		if m.Reason != "sale" || m.Reference != order.ID {
			t.Fatalf("unexpected movement reason/reference %s/%s", m.Reason, m.Reference)
		}
	}
	if snapshot.Email != "ada.obi@example.com" || snapshot.Total != order.Total {
		t.Fatalf("unexpected customer snapshot %+v", snapshot)
	}
	if len(alerts.commands) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts.commands))
	}
	if alerts.commands[0].Category != domain.AlertCategoryOrder || alerts.commands[0].Priority != domain.AlertPriorityMedium {
		t.Fatalf("unexpected alert %+v", alerts.commands[0])
	}
}

func TestOrderServicePlaceOrderAggregatesDuplicateLines(t *testing.T) {
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return testCatalog(), nil
		},
	}
	orders := &stubOrderRepo{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Products: products})

	cmd := validPlaceOrderCommand()
	cmd.Items = []OrderItemInput{
		{ProductID: "prod-chicken", Quantity: 1},
		{ProductID: "prod-chicken", Quantity: 2},
	}
	cmd.Subtotal = money(16500)
	cmd.Total = money(18000)

	order, err := svc.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 3 {
		t.Fatalf("expected one aggregated line of 3, got %+v", order.Items)
	}
}

func TestOrderServicePlaceOrderValidation(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}, Products: &stubProductRepo{}})

	cases := []struct {
		name    string
		mutate  func(*PlaceOrderCommand)
		message string
	}{
		{"missing name", func(c *PlaceOrderCommand) { c.CustomerName = " " }, "Missing required field: customerName"},
		{"missing email", func(c *PlaceOrderCommand) { c.CustomerEmail = "" }, "Missing required field: customerEmail"},
		{"missing phone", func(c *PlaceOrderCommand) { c.CustomerPhone = "" }, "Missing required field: customerPhone"},
		{"missing address", func(c *PlaceOrderCommand) { c.DeliveryAddress = "" }, "Missing required field: deliveryAddress"},
		{"no items", func(c *PlaceOrderCommand) { c.Items = nil }, "Order must contain at least one item"},
		{"zero quantity", func(c *PlaceOrderCommand) { c.Items[0].Quantity = 0 }, "Item quantities must be positive"},
		{"missing subtotal", func(c *PlaceOrderCommand) { c.Subtotal = nil }, "Missing required field: subtotal"},
		{"missing delivery fee", func(c *PlaceOrderCommand) { c.DeliveryFee = nil }, "Missing required field: deliveryFee"},
		{"missing total", func(c *PlaceOrderCommand) { c.Total = nil }, "Missing required field: total"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validPlaceOrderCommand()
			tc.mutate(&cmd)

			_, err := svc.PlaceOrder(context.Background(), cmd)
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Message != tc.message {
				t.Fatalf("expected message %q, got %v", tc.message, err)
			}
		})
	}
}

func TestOrderServicePlaceOrderRejectsTotalMismatch(t *testing.T) {
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return testCatalog(), nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}, Products: products})

	cases := []struct {
		name    string
		mutate  func(*PlaceOrderCommand)
		message string
	}{
		{"stale subtotal", func(c *PlaceOrderCommand) { c.Subtotal = money(100) }, "Submitted subtotal does not match the cart"},
		{"stale total", func(c *PlaceOrderCommand) { c.Total = money(15200.25) }, "Submitted total does not match subtotal plus delivery fee"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validPlaceOrderCommand()
			tc.mutate(&cmd)

			_, err := svc.PlaceOrder(context.Background(), cmd)
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Message != tc.message {
				t.Fatalf("expected message %q, got %v", tc.message, err)
			}
		})
	}
}

func TestOrderServicePlaceOrderInsufficientStock(t *testing.T) {
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return testCatalog(), nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}, Products: products})

	cmd := validPlaceOrderCommand()
	cmd.Items = []OrderItemInput{{ProductID: "prod-fish", Quantity: 10}}

	_, err := svc.PlaceOrder(context.Background(), cmd)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 4 || stockErr.Requested != 10 {
		t.Fatalf("unexpected availability details %+v", stockErr)
	}
}

func TestOrderServicePlaceOrderUnknownProduct(t *testing.T) {
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}, Products: products})

	_, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestOrderServicePlaceOrderRaceLosesToLedger(t *testing.T) {
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return testCatalog(), nil
		},
	}
	orders := &stubOrderRepo{
		createFn: func(_ context.Context, _ domain.Order, _ []domain.StockMovement) ([]domain.StockMovement, error) {
			return nil, &repositories.StockError{
				Code:      repositories.StockErrorInsufficient,
				ProductID: "prod-fish",
				Available: 0,
				Requested: 1,
			}
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Products: products})

	_, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock from ledger, got %v", err)
	}
}

func TestOrderServicePlaceOrderSurvivesCustomerUpsertFailure(t *testing.T) {
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return testCatalog(), nil
		},
	}
	customers := &stubCustomerRepo{
		recordOrderFn: func(context.Context, repositories.CustomerOrderSnapshot) (domain.Customer, error) {
			return domain.Customer{}, errors.New("firestore down")
		},
	}
	var events []string
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:    &stubOrderRepo{},
		Products:  products,
		Customers: customers,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})

	if _, err := svc.PlaceOrder(context.Background(), validPlaceOrderCommand()); err != nil {
		t.Fatalf("order should not fail on customer upsert: %v", err)
	}

	logged := false
	for _, event := range events {
		if event == "order.customer_upsert_failed" {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("expected upsert failure to be logged, got events %v", events)
	}
}

func TestOrderServiceGetOrderBuildsTimeline(t *testing.T) {
	order := domain.Order{
		ID:     "ORD-1-ABC",
		Status: domain.OrderStatusPreparing,
		Items:  []domain.OrderItem{{ProductID: "prod-chicken", Quantity: 1}},
	}
	orders := &stubOrderRepo{
		getFn: func(_ context.Context, id string) (domain.Order, error) {
			return order, nil
		},
	}
	products := &stubProductRepo{
		getManyFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return testCatalog(), nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Products: products})

	details, err := svc.GetOrder(context.Background(), "ORD-1-ABC")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(details.Timeline) != 5 {
		t.Fatalf("expected 5 timeline stages, got %d", len(details.Timeline))
	}
	reached := 0
	for _, step := range details.Timeline {
		if step.Reached {
			reached++
		}
		if step.Current && step.Status != domain.OrderStatusPreparing {
			t.Fatalf("unexpected current stage %s", step.Status)
		}
	}
	if reached != 3 {
		t.Fatalf("expected 3 reached stages, got %d", reached)
	}
	if _, ok := details.Products["prod-chicken"]; !ok {
		t.Fatal("expected product enrichment")
	}
}

func TestOrderServiceGetOrderNotFound(t *testing.T) {
	orders := &stubOrderRepo{
		getFn: func(_ context.Context, id string) (domain.Order, error) {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order missing", nil)
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Products: &stubProductRepo{}})

	_, err := svc.GetOrder(context.Background(), "ORD-0-MISSING")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceFindOrdersRequiresIdentifier(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}, Products: &stubProductRepo{}})

	_, err := svc.FindOrders(context.Background(), OrderLookupCommand{})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrderServiceFindOrdersAppliesLookupLimit(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, query repositories.OrderLookupQuery) ([]domain.Order, error) {
			if query.Limit != 10 {
				t.Fatalf("expected default lookup limit 10, got %d", query.Limit)
			}
			return []domain.Order{{ID: "ORD-1-A"}}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Products: &stubProductRepo{}})

	found, err := svc.FindOrders(context.Background(), OrderLookupCommand{Email: "ada.obi@example.com"})
	if err != nil {
		t.Fatalf("find orders: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected one order, got %d", len(found))
	}
}

func TestOrderServiceUpdateOrderValidatesStatus(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}, Products: &stubProductRepo{}})

	bad := domain.OrderStatus("shipped")
	_, err := svc.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ORD-1-A", Status: &bad})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
