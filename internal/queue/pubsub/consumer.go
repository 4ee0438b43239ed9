package pubsub

import (
	"context"
	"fmt"
	"sync/atomic"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
)

// ConsumerConfig controls subscription receive behavior.
type ConsumerConfig struct {
	Subscription  string
	Concurrency   int
	MaxDeliveries int
}

// Consumer receives from one subscription. Each Pub/Sub message is handed to
// the handler as a batch of one; failures are nacked so Pub/Sub redelivers them.
type Consumer struct {
	sub     *pubsub.Subscription
	handler queue.Handler
	cfg     ConsumerConfig
	logger  *zap.Logger

	acked   atomic.Int64
	nacked  atomic.Int64
	dropped atomic.Int64
}

// NewConsumer binds handler to a subscription.
func NewConsumer(client *pubsub.Client, handler queue.Handler, cfg ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if cfg.Subscription == "" {
		return nil, fmt.Errorf("subscription is required")
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(cfg.Subscription)
	if cfg.Concurrency > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.Concurrency
	}
	return &Consumer{
		sub:     sub,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("subscription", cfg.Subscription)),
	}, nil
}

// Run blocks receiving messages until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		c.handle(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("receive %s: %w", c.cfg.Subscription, err)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, m *pubsub.Message) {
	attempt := 1
	if m.DeliveryAttempt != nil {
		attempt = *m.DeliveryAttempt
	}
	msg := queue.Message{
		ID:          m.ID,
		Body:        m.Data,
		Attempt:     attempt,
		PublishedAt: m.PublishTime,
	}
	res := c.handler.HandleBatch(ctx, []queue.Message{msg})
	err, failed := res.Failures[msg.ID]
	switch {
	case !failed:
		c.acked.Add(1)
		m.Ack()
	case m.DeliveryAttempt != nil && attempt >= c.cfg.MaxDeliveries:
		c.dropped.Add(1)
		c.logger.Error("message dropped after max deliveries",
			zap.String("message_id", msg.ID), zap.Int("attempt", attempt), zap.Error(err))
		m.Ack()
	default:
		c.nacked.Add(1)
		c.logger.Warn("message nacked for redelivery",
			zap.String("message_id", msg.ID), zap.Int("attempt", attempt), zap.Error(err))
		m.Nack()
	}
}

// Counts reports acked, nacked and dropped totals.
func (c *Consumer) Counts() (acked, nacked, dropped int64) {
	return c.acked.Load(), c.nacked.Load(), c.dropped.Load()
}
