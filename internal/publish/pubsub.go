package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSub publishes events to one Pub/Sub topic.
type PubSub struct {
	topic *pubsub.Topic
}

// NewPubSub wraps an existing topic. The caller owns the client and calls
// Stop through Close when the run ends.
func NewPubSub(topic *pubsub.Topic) (*PubSub, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &PubSub{topic: topic}, nil
}

// Publish marshals the event to JSON and waits for the server-assigned ID.
func (p *PubSub) Publish(ctx context.Context, event any) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return id, nil
}

// Close flushes outstanding publishes.
func (p *PubSub) Close() {
	p.topic.Stop()
}
