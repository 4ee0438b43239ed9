// Package writer upserts routed match records into the persistent store.
package writer

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/metrics"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
)

// Putter stores a match under its composite key, replacing any prior record.
type Putter interface {
	Put(ctx context.Context, m match.Match) error
}

// Writer implements queue.Handler for the new and changed topics.
type Writer struct {
	store   Putter
	logger  *zap.Logger
	written atomic.Int64
	failed  atomic.Int64
}

// New builds a Writer.
func New(store Putter, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, logger: logger.Named("writer")}
}

// Write decodes one message body and upserts it.
func (w *Writer) Write(ctx context.Context, body []byte) (match.Match, error) {
	m, err := match.Decode(body)
	if err != nil {
		return match.Match{}, err
	}
	if err := w.store.Put(ctx, m); err != nil {
		if !faults.IsStore(err) {
			err = faults.Store(err, "put match")
		}
		return m, err
	}
	return m, nil
}

// HandleBatch writes each message in order and records failures per message.
func (w *Writer) HandleBatch(ctx context.Context, batch []queue.Message) queue.BatchResult {
	var result queue.BatchResult
	for _, msg := range batch {
		m, err := w.Write(ctx, msg.Body)
		if err != nil {
			metrics.ObserveStoreWrite("error")
			w.failed.Add(1)
			w.logger.Error("match write failed",
				zap.String("message_id", msg.ID),
				zap.Int("attempt", msg.Attempt),
				zap.Error(err),
			)
			result.Fail(msg.ID, err)
			continue
		}
		metrics.ObserveStoreWrite("ok")
		w.written.Add(1)
		w.logger.Debug("match written",
			zap.String("message_id", msg.ID),
			zap.Int64("match_id", m.ID),
			zap.Int64("start_time_epoch", m.StartTimeEpoch),
		)
	}
	return result
}

// Written reports how many records were stored successfully.
func (w *Writer) Written() int64 {
	return w.written.Load()
}

// Failed reports how many write attempts failed.
func (w *Writer) Failed() int64 {
	return w.failed.Load()
}
