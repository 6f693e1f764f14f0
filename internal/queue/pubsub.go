package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

// PubSubPublisher publishes discovery messages to a Pub/Sub topic. It
// authenticates with Application Default Credentials.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher creates the client and verifies the topic exists.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSubPublisher{client: client, topic: topic}, nil
}

// Publish marshals the message to JSON and waits for the server ack so
// the caller gets a real per-message result.
func (p *PubSubPublisher) Publish(ctx context.Context, msg catalog.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return catalog.Transient("publish", msg.URL, err)
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// PubSubSubscriber adapts a Pub/Sub subscription to the pull-style
// Consumer interface. Messages are acked once handed to the caller;
// downstream idempotence covers redelivery.
type PubSubSubscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	out    chan catalog.Message
	log    *zap.Logger
}

// NewPubSubSubscriber creates the client and verifies the subscription.
func NewPubSubSubscriber(ctx context.Context, projectID, subscriptionID string, log *zap.Logger) (*PubSubSubscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub subscription %q: %w", subscriptionID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}
	return &PubSubSubscriber{
		client: client,
		sub:    sub,
		out:    make(chan catalog.Message),
		log:    log,
	}, nil
}

// Start runs the streaming pull until ctx is canceled. Malformed payloads
// are acked and dropped; they would never parse on redelivery either.
func (s *PubSubSubscriber) Start(ctx context.Context) error {
	defer close(s.out)
	err := s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var msg catalog.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			s.log.Warn("dropping malformed queue message", zap.Error(err))
			m.Ack()
			return
		}
		select {
		case s.out <- msg:
			m.Ack()
		case <-ctx.Done():
			m.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Receive blocks until a message arrives, the context ends, or the
// subscriber stops.
func (s *PubSubSubscriber) Receive(ctx context.Context) (catalog.Message, error) {
	select {
	case <-ctx.Done():
		return catalog.Message{}, ctx.Err()
	case msg, ok := <-s.out:
		if !ok {
			return catalog.Message{}, catalog.ErrQueueClosed
		}
		return msg, nil
	}
}

// Close closes the underlying client.
func (s *PubSubSubscriber) Close() error {
	return s.client.Close()
}
