package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository stores customer orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Create persists a new order together with its stock movements in one
// transaction. Duplicate ids surface as OrderErrorAlreadyExists; insufficient
// stock aborts the whole transaction so no order is written.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order, movements []domain.StockMovement) ([]domain.StockMovement, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return nil, repositories.NewOrderError(repositories.OrderErrorInvalidUpdate, "order id is required", nil)
	}
	if len(movements) > 0 {
		if err := validateMovements(movements); err != nil {
			return nil, err
		}
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapOrderError("orders.create", err)
	}

	var applied []domain.StockMovement
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		if len(movements) > 0 {
			var txErr error
			applied, txErr = applyMovementsTx(client, tx, movements)
			if txErr != nil {
				return txErr
			}
		}
		return tx.Create(client.Collection(ordersCollection).Doc(order.ID), newOrderDocument(order))
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, repositories.NewOrderError(repositories.OrderErrorAlreadyExists, fmt.Sprintf("order %s already exists", order.ID), err)
		}
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return nil, wrapStockError("orders.create", err)
		}
		return nil, wrapOrderError("orders.create", err)
	}
	return applied, nil
}

// Get loads a single order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.get", err)
	}

	snap, err := client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Order{}, orderNotFound(id, err)
		}
		return domain.Order{}, wrapOrderError("orders.get", err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByContact returns a customer's orders newest first. The query must
// carry an order id, email or phone; the order id wins when present.
func (r *OrderRepository) FindByContact(ctx context.Context, query repositories.OrderLookupQuery) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}

	if orderID := strings.TrimSpace(query.OrderID); orderID != "" {
		order, err := r.Get(ctx, orderID)
		if err != nil {
			var orderErr *repositories.OrderError
			if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorNotFound {
				return nil, nil
			}
			return nil, err
		}
		return []domain.Order{order}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapOrderError("orders.findByContact", err)
	}

	q := client.Collection(ordersCollection).Query
	switch {
	case strings.TrimSpace(query.Email) != "":
		q = q.Where("customerEmail", "==", domain.NormalizeEmail(query.Email))
	case strings.TrimSpace(query.Phone) != "":
		q = q.Where("customerPhone", "==", strings.TrimSpace(query.Phone))
	default:
		return nil, repositories.NewOrderError(repositories.OrderErrorInvalidUpdate, "order lookup requires an order id, email or phone", nil)
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapOrderError("orders.findByContact", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}
	return orders, nil
}

// Update patches the mutable order fields inside a transaction and returns
// the updated order.
func (r *OrderRepository) Update(ctx context.Context, id string, patch repositories.OrderPatch, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}
	if patch.Status == nil && patch.PaymentStatus == nil && patch.TransactionID == nil {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidUpdate, "order update requires at least one field", nil)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidUpdate, fmt.Sprintf("unknown order status %q", *patch.Status), nil)
	}
	if patch.PaymentStatus != nil && !patch.PaymentStatus.Valid() {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorInvalidUpdate, fmt.Sprintf("unknown payment status %q", *patch.PaymentStatus), nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.update", err)
	}

	var updated domain.Order
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(ordersCollection).Doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return orderNotFound(id, err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}

		if patch.Status != nil {
			doc.Status = string(*patch.Status)
		}
		if patch.PaymentStatus != nil {
			doc.PaymentStatus = string(*patch.PaymentStatus)
		}
		if patch.TransactionID != nil {
			doc.TransactionID = strings.TrimSpace(*patch.TransactionID)
		}
		doc.UpdatedAt = now.UTC()

		updated = doc.toDomain(id)
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.update", err)
	}
	return updated, nil
}

// ApplyPaymentResult overwrites the payment outcome so provider retries stay
// idempotent. The latest callback always wins.
func (r *OrderRepository) ApplyPaymentResult(ctx context.Context, id string, result repositories.PaymentResult, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.applyPaymentResult", err)
	}

	var updated domain.Order
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(ordersCollection).Doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return orderNotFound(id, err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}

		doc.PaymentStatus = string(result.PaymentStatus)
		if result.OrderStatus != "" {
			doc.Status = string(result.OrderStatus)
		}
		if result.TransactionID != "" {
			doc.TransactionID = result.TransactionID
		}
		if result.Payload != nil {
			doc.PaymentPayload = result.Payload
		}
		doc.UpdatedAt = now.UTC()

		updated = doc.toDomain(id)
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.applyPaymentResult", err)
	}
	return updated, nil
}

type orderItemDocument struct {
	ProductID string  `firestore:"productId"`
	Title     string  `firestore:"title"`
	Quantity  int     `firestore:"quantity"`
	UnitPrice float64 `firestore:"unitPrice"`
}

type orderDocument struct {
	CustomerID          string              `firestore:"customerId,omitempty"`
	CustomerName        string              `firestore:"customerName"`
	CustomerEmail       string              `firestore:"customerEmail"`
	CustomerPhone       string              `firestore:"customerPhone"`
	DeliveryAddress     string              `firestore:"deliveryAddress"`
	SpecialInstructions string              `firestore:"specialInstructions,omitempty"`
	Items               []orderItemDocument `firestore:"items"`
	Subtotal            float64             `firestore:"subtotal"`
	DeliveryFee         float64             `firestore:"deliveryFee"`
	Total               float64             `firestore:"total"`
	Status              string              `firestore:"status"`
	PaymentStatus       string              `firestore:"paymentStatus"`
	PaymentMethod       string              `firestore:"paymentMethod,omitempty"`
	PaymentPayload      map[string]any      `firestore:"paymentPayload,omitempty"`
	TransactionID       string              `firestore:"transactionId,omitempty"`
	CreatedAt           time.Time           `firestore:"createdAt"`
	UpdatedAt           time.Time           `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orderDocument{
		CustomerID:          order.CustomerID,
		CustomerName:        strings.TrimSpace(order.CustomerName),
		CustomerEmail:       domain.NormalizeEmail(order.CustomerEmail),
		CustomerPhone:       strings.TrimSpace(order.CustomerPhone),
		DeliveryAddress:     strings.TrimSpace(order.DeliveryAddress),
		SpecialInstructions: order.SpecialInstructions,
		Items:               items,
		Subtotal:            order.Subtotal,
		DeliveryFee:         order.DeliveryFee,
		Total:               order.Total,
		Status:              string(order.Status),
		PaymentStatus:       string(order.PaymentStatus),
		PaymentMethod:       strings.TrimSpace(order.PaymentMethod),
		PaymentPayload:      order.PaymentPayload,
		TransactionID:       order.TransactionID,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return domain.Order{
		ID:                  id,
		CustomerID:          d.CustomerID,
		CustomerName:        d.CustomerName,
		CustomerEmail:       d.CustomerEmail,
		CustomerPhone:       d.CustomerPhone,
		DeliveryAddress:     d.DeliveryAddress,
		SpecialInstructions: d.SpecialInstructions,
		Items:               items,
		Subtotal:            d.Subtotal,
		DeliveryFee:         d.DeliveryFee,
		Total:               d.Total,
		Status:              domain.OrderStatus(d.Status),
		PaymentStatus:       domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:       d.PaymentMethod,
		PaymentPayload:      d.PaymentPayload,
		TransactionID:       d.TransactionID,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func orderNotFound(id string, err error) *repositories.OrderError {
	return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", id), err)
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	return pfirestore.WrapError(op, err)
}
