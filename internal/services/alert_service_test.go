package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/repositories"
)

type stubAlertRepo struct {
	created         []domain.AdminAlert
	createErr       error
	listFn          func(ctx context.Context, query repositories.AlertListQuery) ([]domain.AdminAlert, error)
	markReadFn      func(ctx context.Context, id string, now time.Time) error
	deleteExpiredFn func(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

func (s *stubAlertRepo) Create(_ context.Context, alert domain.AdminAlert) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, alert)
	return nil
}

func (s *stubAlertRepo) List(ctx context.Context, query repositories.AlertListQuery) ([]domain.AdminAlert, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return nil, nil
}

func (s *stubAlertRepo) MarkRead(ctx context.Context, id string, now time.Time) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, id, now)
	}
	return nil
}

func (s *stubAlertRepo) DeleteExpired(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if s.deleteExpiredFn != nil {
		return s.deleteExpiredFn(ctx, cutoff, batchSize)
	}
	return 0, nil
}

type capturePublisher struct {
	messages []AlertMessage
	err      error
}

func (c *capturePublisher) PublishAlert(_ context.Context, msg AlertMessage) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func newTestAlertService(t *testing.T, deps AlertServiceDeps) AlertService {
	t.Helper()
	svc, err := NewAlertService(deps)
	if err != nil {
		t.Fatalf("new alert service: %v", err)
	}
	return svc
}

func TestAlertServiceNotifySetsExpiry(t *testing.T) {
	now := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	repo := &stubAlertRepo{}
	publisher := &capturePublisher{}

	svc := newTestAlertService(t, AlertServiceDeps{
		Alerts:      repo,
		Publisher:   publisher,
		TTL:         7 * 24 * time.Hour,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "alert-1" },
	})

	alert, err := svc.Notify(context.Background(), AlertCommand{
		Message:  "New order ORD-1-ABC",
		Category: domain.AlertCategoryOrder,
		Priority: domain.AlertPriorityMedium,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if !alert.ExpiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", alert.ExpiresAt)
	}
	if alert.IsRead {
		t.Fatal("new alerts must start unread")
	}
	if len(repo.created) != 1 {
		t.Fatalf("alert not persisted")
	}
	if len(publisher.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.AlertID != "alert-1" || msg.Category != "order" || msg.Priority != "medium" {
		t.Fatalf("unexpected published message %+v", msg)
	}
}

func TestAlertServiceNotifyDefaults(t *testing.T) {
	repo := &stubAlertRepo{}
	svc := newTestAlertService(t, AlertServiceDeps{Alerts: repo})

	alert, err := svc.Notify(context.Background(), AlertCommand{Message: "something happened"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if alert.Category != domain.AlertCategorySystem || alert.Priority != domain.AlertPriorityLow {
		t.Fatalf("unexpected defaults %+v", alert)
	}
}

func TestAlertServiceNotifyRequiresMessage(t *testing.T) {
	svc := newTestAlertService(t, AlertServiceDeps{Alerts: &stubAlertRepo{}})

	if _, err := svc.Notify(context.Background(), AlertCommand{Message: "   "}); !errors.Is(err, ErrAlertInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAlertServiceNotifySurvivesPublishFailure(t *testing.T) {
	repo := &stubAlertRepo{}
	publisher := &capturePublisher{err: errors.New("topic gone")}
	svc := newTestAlertService(t, AlertServiceDeps{Alerts: repo, Publisher: publisher})

	if _, err := svc.Notify(context.Background(), AlertCommand{Message: "order placed"}); err != nil {
		t.Fatalf("publish failure must not fail notify: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("alert should still be persisted")
	}
}

func TestAlertServiceCleanupUsesBatchSize(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	repo := &stubAlertRepo{
		deleteExpiredFn: func(_ context.Context, cutoff time.Time, batchSize int) (int, error) {
			if !cutoff.Equal(now) {
				t.Fatalf("unexpected cutoff %s", cutoff)
			}
			if batchSize != 25 {
				t.Fatalf("unexpected batch size %d", batchSize)
			}
			return 3, nil
		},
	}
	svc := newTestAlertService(t, AlertServiceDeps{
		Alerts:           repo,
		CleanupBatchSize: 25,
		Clock:            func() time.Time { return now },
	})

	deleted, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
}

func TestAlertServiceMarkReadRequiresID(t *testing.T) {
	svc := newTestAlertService(t, AlertServiceDeps{Alerts: &stubAlertRepo{}})

	if err := svc.MarkRead(context.Background(), " "); !errors.Is(err, ErrAlertInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAlertServiceListCapsLimit(t *testing.T) {
	repo := &stubAlertRepo{
		listFn: func(_ context.Context, query repositories.AlertListQuery) ([]domain.AdminAlert, error) {
			if query.Limit != 50 {
				t.Fatalf("expected capped limit 50, got %d", query.Limit)
			}
			if !query.UnreadOnly {
				t.Fatalf("unread filter not carried")
			}
			return nil, nil
		},
	}
	svc := newTestAlertService(t, AlertServiceDeps{Alerts: repo})

	if _, err := svc.List(context.Background(), AlertFilter{UnreadOnly: true, Limit: 500}); err != nil {
		t.Fatalf("list: %v", err)
	}
}
