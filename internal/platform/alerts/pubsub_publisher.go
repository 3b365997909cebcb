package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/frozen-haven/api/internal/services"
)

// PubSubAlertPublisher fans admin alerts out to a Pub/Sub topic so the
// back-office feed and notification workers can consume them.
type PubSubAlertPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubAlertPublisher constructs a Pub/Sub backed alert publisher.
func NewPubSubAlertPublisher(topic *pubsub.Topic) (*PubSubAlertPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub alert publisher: topic is required")
	}
	return &PubSubAlertPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishAlert enqueues an alert message on the configured topic.
func (p *PubSubAlertPublisher) PublishAlert(ctx context.Context, message services.AlertMessage) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub alert publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "alertId", message.AlertID)
	setAttr(attrs, "category", message.Category)
	setAttr(attrs, "priority", message.Priority)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
