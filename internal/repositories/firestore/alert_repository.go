package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const alertsCollection = "adminAlerts"

// AlertRepository stores transient admin alerts in Firestore.
type AlertRepository struct {
	provider *pfirestore.Provider
}

// NewAlertRepository constructs a Firestore backed alert repository.
func NewAlertRepository(provider *pfirestore.Provider) (*AlertRepository, error) {
	if provider == nil {
		return nil, errors.New("alert repository requires firestore provider")
	}
	return &AlertRepository{provider: provider}, nil
}

// Create persists a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert domain.AdminAlert) error {
	if r == nil || r.provider == nil {
		return errors.New("alert repository not initialised")
	}
	if strings.TrimSpace(alert.ID) == "" {
		return errors.New("alert id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("alerts.create", err)
	}

	_, err = client.Collection(alertsCollection).Doc(alert.ID).Create(ctx, newAlertDocument(alert))
	if err != nil {
		return pfirestore.WrapError("alerts.create", err)
	}
	return nil
}

// List returns alerts newest first, optionally unread only or by category.
func (r *AlertRepository) List(ctx context.Context, query repositories.AlertListQuery) ([]domain.AdminAlert, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("alert repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("alerts.list", err)
	}

	q := client.Collection(alertsCollection).Query
	if query.UnreadOnly {
		q = q.Where("isRead", "==", false)
	}
	if query.Category != "" {
		q = q.Where("category", "==", string(query.Category))
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var alerts []domain.AdminAlert
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("alerts.list", err)
		}
		var doc alertDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", snap.Ref.ID, err)
		}
		alerts = append(alerts, doc.toDomain(snap.Ref.ID))
	}
	return alerts, nil
}

// MarkRead flags an alert as read.
func (r *AlertRepository) MarkRead(ctx context.Context, id string, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("alert repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("alert id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("alerts.markRead", err)
	}

	_, err = client.Collection(alertsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "isRead", Value: true},
		{Path: "readAt", Value: now.UTC()},
	})
	if err != nil {
		return pfirestore.WrapError("alerts.markRead", err)
	}
	return nil
}

// DeleteExpired removes alerts whose expiresAt is before the cutoff, at most
// batchSize per call. It returns the number of alerts deleted.
func (r *AlertRepository) DeleteExpired(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("alert repository not initialised")
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("alerts.deleteExpired", err)
	}

	iter := client.Collection(alertsCollection).Query.
		Where("expiresAt", "<", cutoff.UTC()).
		Limit(batchSize).
		Documents(ctx)
	defer iter.Stop()

	batch := client.Batch()
	deleted := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError("alerts.deleteExpired", err)
		}
		batch.Delete(snap.Ref)
		deleted++
	}
	if deleted == 0 {
		return 0, nil
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, pfirestore.WrapError("alerts.deleteExpired", err)
	}
	return deleted, nil
}

type alertDocument struct {
	Message   string         `firestore:"message"`
	Category  string         `firestore:"category"`
	Priority  string         `firestore:"priority"`
	IsRead    bool           `firestore:"isRead"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
	ExpiresAt time.Time      `firestore:"expiresAt"`
}

func newAlertDocument(alert domain.AdminAlert) alertDocument {
	return alertDocument{
		Message:   alert.Message,
		Category:  string(alert.Category),
		Priority:  string(alert.Priority),
		IsRead:    alert.IsRead,
		Metadata:  alert.Metadata,
		CreatedAt: alert.CreatedAt.UTC(),
		ExpiresAt: alert.ExpiresAt.UTC(),
	}
}

func (d alertDocument) toDomain(id string) domain.AdminAlert {
	return domain.AdminAlert{
		ID:        id,
		Message:   d.Message,
		Category:  domain.AlertCategory(d.Category),
		Priority:  domain.AlertPriority(d.Priority),
		IsRead:    d.IsRead,
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}
