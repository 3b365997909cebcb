package services

import (
	"context"
	"time"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/payments"
)

// StockMovementCommand describes one requested stock ledger entry.
type StockMovementCommand struct {
	ProductID string
	Type      domain.MovementType
	Quantity  int
	Reason    string
	Reference string
}

// StockAvailability reports whether a requested quantity can be fulfilled.
type StockAvailability struct {
	ProductID string
	Title     string
	Available int
	Requested int
	InStock   bool
}

// MovementFilter narrows stock movement history reads.
type MovementFilter struct {
	ProductID string
	Limit     int
}

// StockService maintains product stock through an append-only movement ledger.
type StockService interface {
	ApplyMovement(ctx context.Context, cmd StockMovementCommand) (domain.StockMovement, error)
	ApplyMovements(ctx context.Context, cmds []StockMovementCommand) ([]domain.StockMovement, error)
	CheckAvailability(ctx context.Context, productID string, quantity int) (StockAvailability, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]domain.StockMovement, error)
	ListLowStock(ctx context.Context) ([]domain.Product, error)
}

// CatalogService reads the product catalog for the storefront and maintains
// product imagery for the back office.
type CatalogService interface {
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	SetProductImage(ctx context.Context, id, imageURL string) error
}

// OrderItemInput is one cart line as submitted by the storefront.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// PlaceOrderCommand carries a checkout submission. Subtotal, DeliveryFee and
// Total are pointers so an absent field can be told apart from zero; the
// service recomputes them from catalog prices and rejects mismatches.
type PlaceOrderCommand struct {
	CustomerName        string
	CustomerEmail       string
	CustomerPhone       string
	DeliveryAddress     string
	SpecialInstructions string
	PaymentMethod       string
	Subtotal            *float64
	DeliveryFee         *float64
	Total               *float64
	Items               []OrderItemInput
}

// OrderLookupCommand identifies a customer's orders. At least one field must be set.
type OrderLookupCommand struct {
	OrderID string
	Email   string
	Phone   string
}

// UpdateOrderCommand patches the mutable order fields. Nil fields are left untouched.
type UpdateOrderCommand struct {
	OrderID       string
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	TransactionID *string
}

// OrderTimelineStep is one stage of the delivery progress timeline.
type OrderTimelineStep struct {
	Status  domain.OrderStatus
	Label   string
	Reached bool
	Current bool
}

// OrderDetails pairs an order with catalog enrichment for the tracking page.
type OrderDetails struct {
	Order    domain.Order
	Products map[string]domain.Product
	Timeline []OrderTimelineStep
}

// OrderService owns the order placement workflow and order reads.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (OrderDetails, error)
	FindOrders(ctx context.Context, cmd OrderLookupCommand) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (domain.Order, error)
}

// PaymentCallbackCommand carries the payment provider's webhook payload.
type PaymentCallbackCommand struct {
	Reference     string
	Status        string
	TransactionID string
	Payload       map[string]any
}

// PaymentService settles provider callbacks against orders.
type PaymentService interface {
	HandleCallback(ctx context.Context, cmd PaymentCallbackCommand) (domain.Order, error)
	VerifyReference(ctx context.Context, reference string) (payments.Verification, error)
}

// CustomerService exposes back-office customer aggregates.
type CustomerService interface {
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
}

// AlertCommand raises a back-office alert.
type AlertCommand struct {
	Message  string
	Category domain.AlertCategory
	Priority domain.AlertPriority
	Metadata map[string]any
}

// AlertFilter narrows alert reads.
type AlertFilter struct {
	UnreadOnly bool
	Category   domain.AlertCategory
	Limit      int
}

// AlertService manages transient admin alerts.
type AlertService interface {
	Notify(ctx context.Context, cmd AlertCommand) (domain.AdminAlert, error)
	List(ctx context.Context, filter AlertFilter) ([]domain.AdminAlert, error)
	MarkRead(ctx context.Context, id string) error
	Cleanup(ctx context.Context) (int, error)
}

// AlertMessage is the payload fanned out to the alerts topic.
type AlertMessage struct {
	AlertID   string    `json:"alertId"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AlertPublisher fans alerts out to interested consumers. Publish failures
// must never fail the workflow that raised the alert.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, msg AlertMessage) error
}
