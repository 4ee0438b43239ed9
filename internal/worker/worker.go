// Package worker implements the batch consume loop over an in-memory topic.
package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
)

// Source yields messages from one topic.
type Source interface {
	Dequeue(ctx context.Context) (queue.Message, error)
	TryDequeue() (queue.Message, bool)
}

// Config controls Worker behavior.
type Config struct {
	Name          string
	BatchSize     int
	MaxDeliveries int
}

// Stats counts what a worker has seen.
type Stats struct {
	Handled     int64
	Redelivered int64
	Dropped     int64
}

// Worker pulls batches from a source, hands them to a handler, and redelivers
// the messages the handler reports as failed.
type Worker struct {
	source  Source
	handler queue.Handler
	cfg     Config
	logger  *zap.Logger

	handled     atomic.Int64
	redelivered atomic.Int64
	dropped     atomic.Int64
}

// New constructs a Worker.
func New(source Source, handler queue.Handler, cfg Config, logger *zap.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:  source,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("consumer", cfg.Name)),
	}
}

// Run blocks, consuming batches until the context finishes or the source is
// closed and every pending redelivery has been attempted.
func (w *Worker) Run(ctx context.Context) error {
	var pending []queue.Message
	for {
		batch, rest, err := w.nextBatch(ctx, pending)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				w.logger.Debug("consumer stopped", zap.Error(err))
				return nil
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		pending = append(rest, w.process(ctx, batch)...)
	}
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Handled:     w.handled.Load(),
		Redelivered: w.redelivered.Load(),
		Dropped:     w.dropped.Load(),
	}
}

func (w *Worker) nextBatch(ctx context.Context, pending []queue.Message) ([]queue.Message, []queue.Message, error) {
	size := w.cfg.BatchSize
	if len(pending) >= size {
		return pending[:size], pending[size:], nil
	}
	batch := append([]queue.Message(nil), pending...)
	if len(batch) == 0 {
		msg, err := w.source.Dequeue(ctx)
		if err != nil {
			return nil, nil, err
		}
		batch = append(batch, msg)
	}
	for len(batch) < size {
		msg, ok := w.source.TryDequeue()
		if !ok {
			break
		}
		batch = append(batch, msg)
	}
	return batch, nil, nil
}

func (w *Worker) process(ctx context.Context, batch []queue.Message) []queue.Message {
	res := w.handler.HandleBatch(ctx, batch)
	w.handled.Add(int64(len(batch)))

	var retry []queue.Message
	for _, msg := range batch {
		err, failed := res.Failures[msg.ID]
		if !failed {
			continue
		}
		if msg.Attempt >= w.cfg.MaxDeliveries {
			w.dropped.Add(1)
			w.logger.Error("message dropped after max deliveries",
				zap.String("message_id", msg.ID),
				zap.Int("attempt", msg.Attempt),
				zap.Error(err),
			)
			continue
		}
		msg.Attempt++
		w.redelivered.Add(1)
		w.logger.Warn("message scheduled for redelivery",
			zap.String("message_id", msg.ID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		retry = append(retry, msg)
	}
	return retry
}
