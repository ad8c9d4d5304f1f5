// Package pubsub publishes job completion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Publisher sends completion events to a Pub/Sub topic. Authentication uses
// Application Default Credentials.
type Publisher struct {
	client  *pubsub.Client
	topicID string
	topic   *pubsub.Topic
	logger  *zap.Logger
}

// New creates a Pub/Sub client and verifies the configured topic exists,
// failing fast on startup misconfiguration.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Publisher{
		client:  client,
		topicID: topicID,
		topic:   topic,
		logger:  logger,
	}, nil
}

// Publish sends the JSON-encoded payload to the topic. The send itself is
// asynchronous; the Pub/Sub client batches and retries in the background,
// so the returned id is empty for this fire-and-forget path.
func (p *Publisher) Publish(ctx context.Context, topicID string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode completion payload: %w", err)
	}
	topic := p.topic
	if topicID != p.topicID {
		topic = p.client.Topic(topicID)
		defer topic.Stop()
	}
	_ = topic.Publish(ctx, &pubsub.Message{Data: data})
	return "", nil
}

// Close stops the topic publisher and closes the client connection.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
