package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
)

const notificationsCollection = "notifications"

// NotificationRepository queues outbound notifications in Firestore for an
// external sender to drain.
type NotificationRepository struct {
	provider *pfirestore.Provider
}

// NewNotificationRepository constructs a Firestore backed notification queue.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{provider: provider}, nil
}

// Enqueue persists a pending notification.
func (r *NotificationRepository) Enqueue(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.provider == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("notifications.enqueue", err)
	}

	_, err = client.Collection(notificationsCollection).Doc(notification.ID).Create(ctx, notificationDocument{
		Channel:   notification.Channel,
		Recipient: notification.Recipient,
		Subject:   notification.Subject,
		OrderID:   notification.OrderID,
		Status:    notification.Status,
		CreatedAt: notification.CreatedAt.UTC(),
	})
	if err != nil {
		return pfirestore.WrapError("notifications.enqueue", err)
	}
	return nil
}

type notificationDocument struct {
	Channel   string    `firestore:"channel"`
	Recipient string    `firestore:"recipient"`
	Subject   string    `firestore:"subject"`
	OrderID   string    `firestore:"orderId,omitempty"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
}
