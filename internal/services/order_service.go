package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/repositories"
)

const (
	orderIDPrefix       = "ORD"
	orderSuffixLength   = 9
	orderSuffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	defaultLookupLimit  = 10

	saleMovementReason = "sale"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
)

// ValidationError carries a customer-facing message for a rejected submission.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap lets callers match with errors.Is(err, ErrOrderInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrOrderInvalidInput
}

func missingField(name string) error {
	return &ValidationError{Message: "Missing required field: " + name}
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Customers   repositories.CustomerRepository
	Alerts      AlertService
	LookupLimit int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	products    repositories.ProductRepository
	customers   repositories.CustomerRepository
	alerts      AlertService
	lookupLimit int
	sanitizer   *bluemonday.Policy
	printer     *message.Printer
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	lookupLimit := deps.LookupLimit
	if lookupLimit <= 0 {
		lookupLimit = defaultLookupLimit
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

	return &orderService{
		orders:      deps.Orders,
		products:    deps.Products,
		customers:   deps.Customers,
		alerts:      deps.Alerts,
		lookupLimit: lookupLimit,
		sanitizer:   bluemonday.StrictPolicy(),
		printer:     message.NewPrinter(language.English),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	if err := validatePlaceOrderInput(cmd); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	lines := aggregateOrderLines(cmd.Items)

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return domain.Order{}, mapStockRepositoryError(err)
	}

	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := 0.0
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}
		if !product.Active {
			return domain.Order{}, &ValidationError{Message: fmt.Sprintf("Product %s is not available", product.Title)}
		}
		if product.Stock < line.Quantity {
			return domain.Order{}, &InsufficientStockError{
				ProductID: product.ID,
				Title:     product.Title,
				Available: product.Stock,
				Requested: line.Quantity,
			}
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Title:     product.Title,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
		subtotal += product.Price * float64(line.Quantity)
	}

	subtotal = domain.Round2(subtotal)
	deliveryFee := domain.Round2(*cmd.DeliveryFee)
	total := domain.Round2(subtotal + deliveryFee)

	// The storefront submits its own totals; they must agree with the
	// catalog prices or the cart is stale.
	if domain.Round2(*cmd.Subtotal) != subtotal {
		return domain.Order{}, &ValidationError{Message: "Submitted subtotal does not match the cart"}
	}
	if domain.Round2(*cmd.Total) != total {
		return domain.Order{}, &ValidationError{Message: "Submitted total does not match subtotal plus delivery fee"}
	}

	orderID, err := newOrderID(now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("generate order id: %w", err)
	}

	order := domain.Order{
		ID:                  orderID,
		CustomerName:        strings.TrimSpace(cmd.CustomerName),
		CustomerEmail:       domain.NormalizeEmail(cmd.CustomerEmail),
		CustomerPhone:       strings.TrimSpace(cmd.CustomerPhone),
		DeliveryAddress:     strings.TrimSpace(cmd.DeliveryAddress),
		SpecialInstructions: s.sanitizer.Sanitize(strings.TrimSpace(cmd.SpecialInstructions)),
		PaymentMethod:       strings.TrimSpace(cmd.PaymentMethod),
		Items:               items,
		Subtotal:            subtotal,
		DeliveryFee:         deliveryFee,
		Total:               total,
		Status:              domain.OrderStatusPending,
		PaymentStatus:       domain.PaymentStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	movements := make([]domain.StockMovement, 0, len(items))
	for _, item := range items {
		movements = append(movements, domain.StockMovement{
			ID:        s.newID(),
			ProductID: item.ProductID,
			Type:      domain.MovementOut,
			Quantity:  item.Quantity,
			Reason:    saleMovementReason,
			Reference: orderID,
			CreatedAt: now,
		})
	}

	if _, err := s.orders.Create(ctx, order, movements); err != nil {
		mapped := mapStockRepositoryError(err)
		if errors.Is(mapped, ErrInsufficientStock) || errors.Is(mapped, ErrProductNotFound) {
			return domain.Order{}, mapped
		}
		return domain.Order{}, s.mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.placed", map[string]any{
		"orderId": order.ID,
		"items":   len(order.Items),
		"total":   order.Total,
	})

	s.recordCustomer(ctx, order)
	s.notifyOrderPlaced(ctx, order)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (OrderDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return OrderDetails{}, &ValidationError{Message: "Missing required field: orderId"}
	}

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return OrderDetails{}, s.mapOrderRepositoryError(err)
	}

	details := OrderDetails{
		Order:    order,
		Timeline: orderTimeline(order.Status),
	}

	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		s.logger(ctx, "order.enrichment_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	} else {
		details.Products = products
	}

	return details, nil
}

func (s *orderService) FindOrders(ctx context.Context, cmd OrderLookupCommand) ([]domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	email := strings.TrimSpace(cmd.Email)
	phone := strings.TrimSpace(cmd.Phone)
	if orderID == "" && email == "" && phone == "" {
		return nil, &ValidationError{Message: "Provide an orderId, email or phone to look up orders"}
	}

	orders, err := s.orders.FindByContact(ctx, repositories.OrderLookupQuery{
		OrderID: orderID,
		Email:   email,
		Phone:   phone,
		Limit:   s.lookupLimit,
	})
	if err != nil {
		return nil, s.mapOrderRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, &ValidationError{Message: "Missing required field: orderId"}
	}
	if cmd.Status == nil && cmd.PaymentStatus == nil && cmd.TransactionID == nil {
		return domain.Order{}, &ValidationError{Message: "Provide at least one field to update"}
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return domain.Order{}, &ValidationError{Message: fmt.Sprintf("Unknown order status %q", *cmd.Status)}
	}
	if cmd.PaymentStatus != nil && !cmd.PaymentStatus.Valid() {
		return domain.Order{}, &ValidationError{Message: fmt.Sprintf("Unknown payment status %q", *cmd.PaymentStatus)}
	}

	order, err := s.orders.Update(ctx, orderID, repositories.OrderPatch{
		Status:        cmd.Status,
		PaymentStatus: cmd.PaymentStatus,
		TransactionID: cmd.TransactionID,
	}, s.clock())
	if err != nil {
		return domain.Order{}, s.mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.updated", map[string]any{"orderId": order.ID, "status": string(order.Status)})
	return order, nil
}

func (s *orderService) recordCustomer(ctx context.Context, order domain.Order) {
	if s.customers == nil {
		return
	}
	_, err := s.customers.RecordOrder(ctx, repositories.CustomerOrderSnapshot{
		Email:     order.CustomerEmail,
		Name:      order.CustomerName,
		Phone:     order.CustomerPhone,
		Address:   order.DeliveryAddress,
		Total:     order.Total,
		OrderedAt: order.CreatedAt,
	})
	if err != nil {
		s.logger(ctx, "order.customer_upsert_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) notifyOrderPlaced(ctx context.Context, order domain.Order) {
	if s.alerts == nil {
		return
	}
	_, err := s.alerts.Notify(ctx, AlertCommand{
		Message:  s.printer.Sprintf("New order %s from %s (%d items, ₦%.2f)", order.ID, order.CustomerName, len(order.Items), order.Total),
		Category: domain.AlertCategoryOrder,
		Priority: domain.AlertPriorityMedium,
		Metadata: map[string]any{
			"orderId": order.ID,
			"total":   order.Total,
		},
	})
	if err != nil {
		s.logger(ctx, "order.alert_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorInvalidUpdate:
			return &ValidationError{Message: orderErr.Message}
		}
	}

	return err
}

func validatePlaceOrderInput(cmd PlaceOrderCommand) error {
	if strings.TrimSpace(cmd.CustomerName) == "" {
		return missingField("customerName")
	}
	email := domain.NormalizeEmail(cmd.CustomerEmail)
	if email == "" {
		return missingField("customerEmail")
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Message: "Invalid email address"}
	}
	if strings.TrimSpace(cmd.CustomerPhone) == "" {
		return missingField("customerPhone")
	}
	if strings.TrimSpace(cmd.DeliveryAddress) == "" {
		return missingField("deliveryAddress")
	}
	if len(cmd.Items) == 0 {
		return &ValidationError{Message: "Order must contain at least one item"}
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return missingField("items[].productId")
		}
		if item.Quantity <= 0 {
			return &ValidationError{Message: "Item quantities must be positive"}
		}
	}
	if cmd.Subtotal == nil {
		return missingField("subtotal")
	}
	if cmd.DeliveryFee == nil {
		return missingField("deliveryFee")
	}
	if cmd.Total == nil {
		return missingField("total")
	}
	if *cmd.DeliveryFee < 0 {
		return &ValidationError{Message: "Delivery fee cannot be negative"}
	}
	return nil
}

type orderLine struct {
	ProductID string
	Quantity  int
}

// aggregateOrderLines folds duplicate cart lines together, preserving the
// order the products first appeared in.
func aggregateOrderLines(items []OrderItemInput) []orderLine {
	index := make(map[string]int, len(items))
	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if i, ok := index[productID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, orderLine{ProductID: productID, Quantity: item.Quantity})
	}
	return lines
}

// newOrderID builds the business id ORD-<unix millis>-<9 uppercase base36>.
func newOrderID(now time.Time) (string, error) {
	buf := make([]byte, orderSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := make([]byte, orderSuffixLength)
	for i, b := range buf {
		suffix[i] = orderSuffixAlphabet[int(b)%len(orderSuffixAlphabet)]
	}
	return fmt.Sprintf("%s-%d-%s", orderIDPrefix, now.UnixMilli(), suffix), nil
}

var timelineStages = []struct {
	status domain.OrderStatus
	label  string
}{
	{domain.OrderStatusPending, "Order placed"},
	{domain.OrderStatusConfirmed, "Confirmed"},
	{domain.OrderStatusPreparing, "Preparing"},
	{domain.OrderStatusOutForDelivery, "Out for delivery"},
	{domain.OrderStatusDelivered, "Delivered"},
}

// orderTimeline renders the five stage delivery progress for a status. A
// cancelled order reports no progress beyond placement.
func orderTimeline(status domain.OrderStatus) []OrderTimelineStep {
	current := -1
	for i, stage := range timelineStages {
		if stage.status == status {
			current = i
			break
		}
	}
	if status == domain.OrderStatusCancelled {
		current = 0
	}

	steps := make([]OrderTimelineStep, len(timelineStages))
	for i, stage := range timelineStages {
		steps[i] = OrderTimelineStep{
			Status:  stage.status,
			Label:   stage.label,
			Reached: current >= 0 && i <= current,
			Current: i == current && status != domain.OrderStatusCancelled,
		}
	}
	return steps
}
