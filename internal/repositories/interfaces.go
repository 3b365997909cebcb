package repositories

import (
	"context"
	"time"

	"github.com/frozen-haven/api/internal/domain"
)

// ProductListQuery filters catalog reads.
type ProductListQuery struct {
	Category   string
	ActiveOnly bool
	Limit      int
}

// MovementListQuery filters the stock movement ledger (newest first).
type MovementListQuery struct {
	ProductID string
	Limit     int
}

// ProductRepository persists products and their stock movement ledger.
type ProductRepository interface {
	Get(ctx context.Context, id string) (domain.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
	List(ctx context.Context, query ProductListQuery) ([]domain.Product, error)
	// ApplyMovements runs every movement in a single transaction. Movements
	// carry ID, Type, Quantity, Reason, Reference and CreatedAt; the
	// repository fills PreviousStock and NewStock from the stored products.
	// Either all movements commit or none do.
	ApplyMovements(ctx context.Context, movements []domain.StockMovement) ([]domain.StockMovement, error)
	ListMovements(ctx context.Context, query MovementListQuery) ([]domain.StockMovement, error)
	ListLowStock(ctx context.Context, threshold, limit int) ([]domain.Product, error)
	SetImageURL(ctx context.Context, productID, imageURL string, now time.Time) error
}

// OrderLookupQuery identifies a customer's orders. At least one field must be set.
type OrderLookupQuery struct {
	OrderID string
	Email   string
	Phone   string
	Limit   int
}

// OrderPatch updates the mutable order fields. Nil fields are left untouched.
type OrderPatch struct {
	Status        *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	TransactionID *string
}

// PaymentResult records the outcome of a payment callback against an order.
type PaymentResult struct {
	PaymentStatus domain.PaymentStatus
	OrderStatus   domain.OrderStatus
	TransactionID string
	Payload       map[string]any
}

// OrderRepository persists customer orders.
type OrderRepository interface {
	// Create persists the order and applies its stock movements in one
	// transaction, so an order can never commit against stock it does not
	// have. Movements follow the ApplyMovements contract.
	Create(ctx context.Context, order domain.Order, movements []domain.StockMovement) ([]domain.StockMovement, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	FindByContact(ctx context.Context, query OrderLookupQuery) ([]domain.Order, error)
	Update(ctx context.Context, id string, patch OrderPatch, now time.Time) (domain.Order, error)
	// ApplyPaymentResult overwrites the payment fields unconditionally so
	// repeated provider callbacks converge on the latest outcome.
	ApplyPaymentResult(ctx context.Context, id string, result PaymentResult, now time.Time) (domain.Order, error)
}

// CustomerOrderSnapshot carries the contact details captured with an order.
type CustomerOrderSnapshot struct {
	Email     string
	Name      string
	Phone     string
	Address   string
	Total     float64
	OrderedAt time.Time
}

// CustomerRepository maintains per-email order aggregates.
type CustomerRepository interface {
	// RecordOrder upserts the customer keyed by normalised email,
	// incrementing totalOrders and totalSpent inside a transaction.
	RecordOrder(ctx context.Context, snapshot CustomerOrderSnapshot) (domain.Customer, error)
	Get(ctx context.Context, id string) (domain.Customer, error)
	List(ctx context.Context, limit int) ([]domain.Customer, error)
}

// AlertListQuery filters admin alerts.
type AlertListQuery struct {
	UnreadOnly bool
	Category   domain.AlertCategory
	Limit      int
}

// AlertRepository persists transient admin alerts.
type AlertRepository interface {
	Create(ctx context.Context, alert domain.AdminAlert) error
	List(ctx context.Context, query AlertListQuery) ([]domain.AdminAlert, error)
	MarkRead(ctx context.Context, id string, now time.Time) error
	// DeleteExpired removes alerts whose expiresAt is before the cutoff,
	// deleting at most batchSize documents per call.
	DeleteExpired(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

// NotificationRepository queues outbound notifications for external senders.
type NotificationRepository interface {
	Enqueue(ctx context.Context, notification domain.Notification) error
}
