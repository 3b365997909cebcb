package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const (
	defaultAlertTTL         = 7 * 24 * time.Hour
	defaultAlertListLimit   = 50
	defaultCleanupBatchSize = 200
)

var (
	// ErrAlertInvalidInput signals the caller provided invalid arguments.
	ErrAlertInvalidInput = errors.New("alert: invalid input")
	// ErrAlertNotFound indicates the alert could not be located.
	ErrAlertNotFound = errors.New("alert: not found")
)

// AlertServiceDeps bundles the collaborators required to construct an alert service.
type AlertServiceDeps struct {
	Alerts           repositories.AlertRepository
	Publisher        AlertPublisher
	TTL              time.Duration
	CleanupBatchSize int
	Clock            func() time.Time
	IDGenerator      func() string
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type alertService struct {
	alerts    repositories.AlertRepository
	publisher AlertPublisher
	ttl       time.Duration
	batchSize int
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewAlertService wires dependencies into a concrete AlertService implementation.
func NewAlertService(deps AlertServiceDeps) (AlertService, error) {
	if deps.Alerts == nil {
		return nil, errors.New("alert service: alert repository is required")
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultAlertTTL
	}
	batchSize := deps.CleanupBatchSize
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
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

	return &alertService{
		alerts:    deps.Alerts,
		publisher: deps.Publisher,
		ttl:       ttl,
		batchSize: batchSize,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Notify persists a new alert and fans it out. Fan-out failures are logged
// and never fail the caller's workflow.
func (s *alertService) Notify(ctx context.Context, cmd AlertCommand) (domain.AdminAlert, error) {
	message := strings.TrimSpace(cmd.Message)
	if message == "" {
		return domain.AdminAlert{}, fmt.Errorf("%w: message is required", ErrAlertInvalidInput)
	}

	category := cmd.Category
	if category == "" {
		category = domain.AlertCategorySystem
	}
	priority := cmd.Priority
	if priority == "" {
		priority = domain.AlertPriorityLow
	}

	now := s.clock()
	alert := domain.AdminAlert{
		ID:        s.newID(),
		Message:   message,
		Category:  category,
		Priority:  priority,
		Metadata:  cmd.Metadata,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return domain.AdminAlert{}, err
	}

	if s.publisher != nil {
		err := s.publisher.PublishAlert(ctx, AlertMessage{
			AlertID:   alert.ID,
			Message:   alert.Message,
			Category:  string(alert.Category),
			Priority:  string(alert.Priority),
			CreatedAt: alert.CreatedAt,
			ExpiresAt: alert.ExpiresAt,
		})
		if err != nil {
			s.logger(ctx, "alert.publish_failed", map[string]any{
				"alertId": alert.ID,
				"error":   err.Error(),
			})
		}
	}

	return alert, nil
}

func (s *alertService) List(ctx context.Context, filter AlertFilter) ([]domain.AdminAlert, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultAlertListLimit {
		limit = defaultAlertListLimit
	}

	return s.alerts.List(ctx, repositories.AlertListQuery{
		UnreadOnly: filter.UnreadOnly,
		Category:   filter.Category,
		Limit:      limit,
	})
}

func (s *alertService) MarkRead(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: alert id is required", ErrAlertInvalidInput)
	}

	if err := s.alerts.MarkRead(ctx, id, s.clock()); err != nil {
		var fsErr *pfirestore.Error
		if errors.As(err, &fsErr) && fsErr.IsNotFound() {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		return err
	}
	return nil
}

// Cleanup deletes alerts past their expiry and reports how many went.
func (s *alertService) Cleanup(ctx context.Context) (int, error) {
	deleted, err := s.alerts.DeleteExpired(ctx, s.clock(), s.batchSize)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger(ctx, "alert.cleanup", map[string]any{"deleted": deleted})
	}
	return deleted, nil
}
