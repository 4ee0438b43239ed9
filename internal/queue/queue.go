// Package queue defines the messaging contracts between pipeline stages.
//
// Producers publish match records to a topic; consumers receive them in
// batches and report per-message failures so that only the failed messages
// are redelivered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Topic names used by the pipeline.
const (
	TopicMatches        = "matches"
	TopicNewMatches     = "new_matches"
	TopicChangedMatches = "changed_matches"
)

// ErrClosed is returned when a topic no longer accepts or yields messages.
var ErrClosed = errors.New("queue closed")

// Message is one delivered queue record.
type Message struct {
	ID          string
	Body        []byte
	Attempt     int
	PublishedAt time.Time
}

// Publisher sends a payload to a topic and returns the broker-assigned ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Handler processes a batch. Messages absent from the result's failures are acknowledged.
type Handler interface {
	HandleBatch(ctx context.Context, batch []Message) BatchResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, batch []Message) BatchResult

// HandleBatch calls f.
func (f HandlerFunc) HandleBatch(ctx context.Context, batch []Message) BatchResult {
	return f(ctx, batch)
}

// BatchResult reports per-message failures by message ID.
type BatchResult struct {
	Failures map[string]error
}

// Fail records a failure for id.
func (r *BatchResult) Fail(id string, err error) {
	if r.Failures == nil {
		r.Failures = make(map[string]error)
	}
	r.Failures[id] = err
}

// Failed reports whether id failed.
func (r BatchResult) Failed(id string) bool {
	_, ok := r.Failures[id]
	return ok
}

// FailedIDs returns the IDs of failed messages in batch order.
func (r BatchResult) FailedIDs(batch []Message) []string {
	var ids []string
	for _, msg := range batch {
		if r.Failed(msg.ID) {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

// Encode renders a payload as a message body. Byte payloads pass through unchanged.
func Encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}
