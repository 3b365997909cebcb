package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/payments"
	"github.com/frozen-haven/api/internal/repositories"
)

var (
	// ErrInvalidReference indicates the payment reference is empty or malformed.
	ErrInvalidReference = errors.New("payment: invalid reference")
	// ErrVerificationFailed indicates the provider rejected the verification request.
	ErrVerificationFailed = errors.New("payment: verification failed")
)

// PaymentServiceDeps bundles the collaborators required to construct a payment service.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Notifications repositories.NotificationRepository
	Alerts        AlertService
	Provider      payments.Provider
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders        repositories.OrderRepository
	notifications repositories.NotificationRepository
	alerts        AlertService
	provider      payments.Provider
	printer       *message.Printer
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
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

	return &paymentService{
		orders:        deps.Orders,
		notifications: deps.Notifications,
		alerts:        deps.Alerts,
		provider:      deps.Provider,
		printer:       message.NewPrinter(language.English),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// HandleCallback settles a provider callback against its order. Replays of
// the same callback converge on the same stored state.
func (s *paymentService) HandleCallback(ctx context.Context, cmd PaymentCallbackCommand) (domain.Order, error) {
	orderID, err := OrderIDFromReference(cmd.Reference)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	result := repositories.PaymentResult{
		TransactionID: strings.TrimSpace(cmd.TransactionID),
		Payload:       cmd.Payload,
	}
	paid := isSuccessfulStatus(cmd.Status)
	if paid {
		result.PaymentStatus = domain.PaymentStatusPaid
		result.OrderStatus = domain.OrderStatusConfirmed
	} else {
		result.PaymentStatus = domain.PaymentStatusFailed
	}

	order, err := s.orders.ApplyPaymentResult(ctx, orderID, result, now)
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorNotFound {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, err
	}

	s.logger(ctx, "payment.callback_settled", map[string]any{
		"orderId":       order.ID,
		"paymentStatus": string(order.PaymentStatus),
	})

	s.notifyPaymentOutcome(ctx, order, paid)
	if paid {
		s.enqueueConfirmation(ctx, order)
	}

	return order, nil
}

// VerifyReference proxies the provider's verification endpoint.
func (s *paymentService) VerifyReference(ctx context.Context, reference string) (payments.Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return payments.Verification{}, fmt.Errorf("%w: reference is required", ErrInvalidReference)
	}
	if s.provider == nil {
		return payments.Verification{}, fmt.Errorf("%w: no payment provider configured", ErrVerificationFailed)
	}

	verification, err := s.provider.VerifyReference(ctx, reference)
	if err != nil {
		return payments.Verification{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	return verification, nil
}

func (s *paymentService) notifyPaymentOutcome(ctx context.Context, order domain.Order, paid bool) {
	if s.alerts == nil {
		return
	}

	cmd := AlertCommand{
		Category: domain.AlertCategoryPayment,
		Metadata: map[string]any{
			"orderId": order.ID,
			"total":   order.Total,
		},
	}
	if paid {
		cmd.Message = s.printer.Sprintf("Payment received for order %s (₦%.2f)", order.ID, order.Total)
		cmd.Priority = domain.AlertPriorityLow
	} else {
		cmd.Message = fmt.Sprintf("Payment failed for order %s", order.ID)
		cmd.Priority = domain.AlertPriorityHigh
	}

	if _, err := s.alerts.Notify(ctx, cmd); err != nil {
		s.logger(ctx, "payment.alert_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) enqueueConfirmation(ctx context.Context, order domain.Order) {
	if s.notifications == nil {
		return
	}
	err := s.notifications.Enqueue(ctx, domain.Notification{
		ID:        s.newID(),
		Channel:   "email",
		Recipient: order.CustomerEmail,
		Subject:   fmt.Sprintf("Order %s confirmed", order.ID),
		OrderID:   order.ID,
		Status:    "pending",
		CreatedAt: s.clock(),
	})
	if err != nil {
		s.logger(ctx, "payment.notification_enqueue_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

// OrderIDFromReference extracts the business order id from a provider
// reference. References are either the order id itself or the order id with a
// provider suffix appended after a dash.
func OrderIDFromReference(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", fmt.Errorf("%w: reference is required", ErrInvalidReference)
	}

	if strings.HasPrefix(ref, orderIDPrefix+"-") {
		parts := strings.SplitN(ref, "-", 4)
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
		}
		return strings.Join(parts[:3], "-"), nil
	}

	orderID, _, _ := strings.Cut(ref, "-")
	if orderID == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}
	return orderID, nil
}

func isSuccessfulStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "successful", "success":
		return true
	}
	return false
}
