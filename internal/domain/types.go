package domain

import (
	"math"
	"strings"
	"time"
)

// MovementType enumerates the kinds of stock ledger entries.
type MovementType string

const (
	// MovementIn adds quantity to a product's stock (restock, returns).
	MovementIn MovementType = "in"
	// MovementOut removes quantity from a product's stock (sales, spoilage).
	MovementOut MovementType = "out"
	// MovementAdjustment sets the stock to an absolute value (recounts).
	MovementAdjustment MovementType = "adjustment"
)

// Valid reports whether the movement type is one of the known values.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

// OrderStatus tracks an order through the delivery lifecycle.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Valid reports whether the order status is one of the known values.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks the payment outcome independently of fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid reports whether the payment status is one of the known values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// AlertCategory groups admin alerts by the subsystem that raised them.
type AlertCategory string

const (
	AlertCategoryOrder    AlertCategory = "order"
	AlertCategoryPayment  AlertCategory = "payment"
	AlertCategoryCustomer AlertCategory = "customer"
	AlertCategoryStock    AlertCategory = "stock"
	AlertCategorySystem   AlertCategory = "system"
)

// AlertPriority ranks admin alerts for back-office triage.
type AlertPriority string

const (
	AlertPriorityLow    AlertPriority = "low"
	AlertPriorityMedium AlertPriority = "medium"
	AlertPriorityHigh   AlertPriority = "high"
)

// Product is a catalog entry together with its quantity on hand.
type Product struct {
	ID          string
	Title       string
	Description string
	Category    string
	Unit        string
	Price       float64
	Stock       int
	ImageURL    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StockMovement is one immutable entry in a product's stock ledger.
type StockMovement struct {
	ID            string
	ProductID     string
	Type          MovementType
	Quantity      int
	PreviousStock int
	NewStock      int
	Reason        string
	Reference     string
	CreatedAt     time.Time
}

// OrderItem is a purchased line embedded in an order document.
type OrderItem struct {
	ProductID string
	Title     string
	Quantity  int
	UnitPrice float64
}

// Order captures a customer's purchase and its status machine.
type Order struct {
	ID                  string
	CustomerID          string
	CustomerName        string
	CustomerEmail       string
	CustomerPhone       string
	DeliveryAddress     string
	SpecialInstructions string
	Items               []OrderItem
	Subtotal            float64
	DeliveryFee         float64
	Total               float64
	Status              OrderStatus
	PaymentStatus       PaymentStatus
	PaymentMethod       string
	TransactionID       string
	PaymentPayload      map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Customer aggregates order history for one distinct email address.
type Customer struct {
	ID          string
	Email       string
	Name        string
	Phone       string
	Address     string
	TotalOrders int
	TotalSpent  float64
	LastOrderAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AdminAlert is a transient back-office notice about a business event.
type AdminAlert struct {
	ID        string
	Message   string
	Category  AlertCategory
	Priority  AlertPriority
	IsRead    bool
	Metadata  map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Notification is a queued outbound message awaiting an external sender.
type Notification struct {
	ID        string
	Channel   string
	Recipient string
	Subject   string
	OrderID   string
	Status    string
	CreatedAt time.Time
}

// NormalizeEmail lowercases and trims an email for use as a customer key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}
