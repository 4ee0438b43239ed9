package memory

import (
	"context"
	"fmt"
	"sync"
)

// Recorder stores published payloads for inspection.
type Recorder struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	failures map[string]error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{failures: make(map[string]error)}
}

// FailTopic makes every later publish to topic return err.
func (p *Recorder) FailTopic(topic string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[topic] = err
}

// Publish records the message and returns a pseudo ID.
func (p *Recorder) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[topic]; err != nil {
		return "", err
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Recorder) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// OnTopic returns the payloads recorded for topic in publish order.
func (p *Recorder) OnTopic(topic string) []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []any
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
