// Package detector classifies incoming match records against the stored
// snapshot and routes new and changed records to their own topics.
package detector

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/metrics"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/JakeFAU/ncaa-match-pipeline/internal/detector")

// Outcome is the terminal state of one classification.
type Outcome string

// Classification outcomes.
const (
	OutcomeNew       Outcome = "new"
	OutcomeChanged   Outcome = "changed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Getter reads the stored snapshot for a key.
type Getter interface {
	Get(ctx context.Context, key match.Key) (match.Document, bool, error)
}

// Clock supplies the time used when re-stamping emitted records.
type Clock interface {
	Now() time.Time
}

// Config names the output topics.
type Config struct {
	NewTopic     string
	ChangedTopic string
}

// Option customises a Detector.
type Option func(*Detector)

// WithRestamp sets processTimeEpoch on emitted records from clock. The
// incoming record is left untouched.
func WithRestamp(clock Clock) Option {
	return func(d *Detector) {
		d.clock = clock
	}
}

// Decision is the result of classifying one record.
type Decision struct {
	Outcome Outcome
	Key     match.Key
	Changed []string
}

// Detector implements queue.Handler.
type Detector struct {
	store     Getter
	publisher queue.Publisher
	cfg       Config
	clock     Clock
	logger    *zap.Logger
}

// New builds a Detector. Empty topic names fall back to the pipeline defaults.
func New(store Getter, publisher queue.Publisher, cfg Config, logger *zap.Logger, opts ...Option) *Detector {
	if cfg.NewTopic == "" {
		cfg.NewTopic = queue.TopicNewMatches
	}
	if cfg.ChangedTopic == "" {
		cfg.ChangedTopic = queue.TopicChangedMatches
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify looks up the stored snapshot for m and decides its outcome.
// It does not publish.
func (d *Detector) Classify(ctx context.Context, m match.Match) (Decision, error) {
	key := m.Key()
	stored, found, err := d.store.Get(ctx, key)
	if err != nil {
		return Decision{Outcome: OutcomeFailed, Key: key}, fmt.Errorf("lookup match %s: %w", key, err)
	}
	if !found {
		return Decision{Outcome: OutcomeNew, Key: key}, nil
	}
	changed, err := match.Diff(stored, m)
	if err != nil {
		return Decision{Outcome: OutcomeFailed, Key: key}, faults.Malformed(fmt.Errorf("compare match %s: %w", key, err))
	}
	if len(changed) == 0 {
		return Decision{Outcome: OutcomeUnchanged, Key: key}, nil
	}
	return Decision{Outcome: OutcomeChanged, Key: key, Changed: changed}, nil
}

// Process decodes, classifies and routes a single message body.
func (d *Detector) Process(ctx context.Context, body []byte) (decision Decision, err error) {
	ctx, span := tracer.Start(ctx, "detector.process")
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(decision.Outcome)), attribute.String("key", decision.Key.String()))
		telemetry.End(span, err)
	}()

	m, err := match.Decode(body)
	if err != nil {
		return Decision{Outcome: OutcomeFailed}, err
	}
	decision, err = d.Classify(ctx, m)
	if err != nil {
		return decision, err
	}

	var topic string
	switch decision.Outcome {
	case OutcomeNew:
		topic = d.cfg.NewTopic
	case OutcomeChanged:
		topic = d.cfg.ChangedTopic
	default:
		return decision, nil
	}
	if _, err := d.publisher.Publish(ctx, topic, d.emitted(m)); err != nil {
		return Decision{Outcome: OutcomeFailed, Key: decision.Key}, fmt.Errorf("publish match %s to %s: %w", decision.Key, topic, err)
	}
	return decision, nil
}

// HandleBatch processes every message in order. A failure is recorded for
// that message only and the rest of the batch continues.
func (d *Detector) HandleBatch(ctx context.Context, batch []queue.Message) queue.BatchResult {
	var result queue.BatchResult
	for _, msg := range batch {
		decision, err := d.Process(ctx, msg.Body)
		metrics.ObserveDetectorOutcome(string(decision.Outcome))
		if err != nil {
			d.logger.Warn("match classification failed",
				zap.String("message_id", msg.ID),
				zap.Int("attempt", msg.Attempt),
				zap.Bool("malformed", faults.IsMalformed(err)),
				zap.Error(err),
			)
			result.Fail(msg.ID, err)
			continue
		}
		d.logger.Debug("match classified",
			zap.String("message_id", msg.ID),
			zap.Int64("match_id", decision.Key.ID),
			zap.String("outcome", string(decision.Outcome)),
			zap.Strings("changed", decision.Changed),
		)
	}
	return result
}

func (d *Detector) emitted(m match.Match) match.Match {
	if d.clock == nil {
		return m
	}
	out := m.Clone()
	out.ProcessTimeEpoch = d.clock.Now().Unix()
	return out
}
