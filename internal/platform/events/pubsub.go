package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	domain "github.com/psicolfis/checkout-api/internal/domain"
)

// PubSubPublisher publishes transaction status changes to a Cloud Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
	newID func() string
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, newID: defaultID}, nil
}

// PublishStatusChange blocks until the server acknowledges the message.
func (p *PubSubPublisher) PublishStatusChange(ctx context.Context, change domain.TransactionStatusChange) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	event := newStatusChanged(change, p.newID)
	data, err := encode(event)
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}
