package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/id/uuid"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
)

// Broker routes published payloads to named in-memory topics.
type Broker struct {
	mu     sync.Mutex
	depth  int
	topics map[string]*Queue
	ids    *uuid.Generator
	now    func() time.Time
}

// NewBroker creates a broker whose topics buffer up to depth messages.
func NewBroker(depth int) *Broker {
	if depth <= 0 {
		depth = 1024
	}
	return &Broker{
		depth:  depth,
		topics: make(map[string]*Queue),
		ids:    uuid.New(),
		now:    time.Now,
	}
}

// Topic returns the queue backing name, creating it on first use.
func (b *Broker) Topic(name string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.topics[name]
	if !ok {
		q = NewQueue(b.depth)
		b.topics[name] = q
	}
	return q
}

// Publish encodes payload and enqueues it on topic.
func (b *Broker) Publish(ctx context.Context, topic string, payload any) (string, error) {
	body, err := queue.Encode(payload)
	if err != nil {
		return "", err
	}
	msg := queue.Message{
		ID:          b.ids.MustNewID(),
		Body:        body,
		Attempt:     1,
		PublishedAt: b.now().UTC(),
	}
	if err := b.Topic(topic).Enqueue(ctx, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return msg.ID, nil
}

// CloseTopic closes one topic so its consumers exit after draining.
func (b *Broker) CloseTopic(name string) {
	b.Topic(name).Close()
}

// Close closes every topic.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.topics {
		q.Close()
	}
}
