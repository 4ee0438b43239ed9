// Package pubsub carries pipeline messages over Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
)

// Publisher publishes to Pub/Sub topics, mapping pipeline topic names to topic IDs.
type Publisher struct {
	client   *pubsub.Client
	topicIDs map[string]string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPublisher creates a Publisher. topicIDs maps pipeline topic names (for
// example queue.TopicMatches) to Pub/Sub topic IDs; unmapped names are used as-is.
func NewPublisher(client *pubsub.Client, topicIDs map[string]string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	return &Publisher{
		client:   client,
		topicIDs: topicIDs,
		topics:   make(map[string]*pubsub.Topic),
	}, nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t
	}
	id := name
	if mapped, ok := p.topicIDs[name]; ok && mapped != "" {
		id = mapped
	}
	t := p.client.Topic(id)
	p.topics[name] = t
	return t
}

// Publish encodes the payload and waits for the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := queue.Encode(payload)
	if err != nil {
		return "", err
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content-type": "application/json"},
	}
	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message to %s: %w", topic, err)
	}
	return id, nil
}

// Stop flushes and stops every topic publisher.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		t.Stop()
	}
}
