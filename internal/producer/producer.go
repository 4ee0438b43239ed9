// Package producer walks the locator grid, fetches and normalizes every
// scoreboard, and publishes the resulting match records.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/metrics"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/scoreboard"
)

// Source fetches and normalizes the matches for one locator.
type Source interface {
	Matches(ctx context.Context, loc locator.Locator) ([]match.Match, scoreboard.Result)
}

// Config controls the grid and parallelism.
type Config struct {
	Genders     []string
	Divisions   []string
	Concurrency int
	Topic       string
}

// Summary aggregates one run.
type Summary struct {
	Locators        int
	Matches         int
	Emitted         int
	PublishFailures int
	Results         map[string]int
}

func (s *Summary) add(res scoreboard.Result, matches int) {
	if s.Results == nil {
		s.Results = make(map[string]int)
	}
	s.Locators++
	s.Matches += matches
	s.Results[res.Status]++
}

// Producer emits match records onto the outbound topic.
type Producer struct {
	source    Source
	publisher queue.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Producer.
func New(source Source, publisher queue.Publisher, cfg Config, logger *zap.Logger) *Producer {
	if cfg.Topic == "" {
		cfg.Topic = queue.TopicMatches
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		source:    source,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("producer"),
	}
}

// RunBatch fetches every locator in [start, end], waits for all fetches,
// sorts the whole batch, then publishes it. Invalid grid values or an
// inverted range fail before any fetch.
func (p *Producer) RunBatch(ctx context.Context, start, end time.Time) (Summary, error) {
	enum, err := locator.NewEnumerator(p.cfg.Genders, p.cfg.Divisions, start, end)
	if err != nil {
		return Summary{}, err
	}
	p.logger.Info("batch started",
		zap.Int("locators", enum.Len()),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.String("start", start.Format(locator.DateLayout)),
		zap.String("end", end.Format(locator.DateLayout)),
	)

	var locs []locator.Locator
	for loc := range enum.All() {
		locs = append(locs, loc)
	}
	perLocator, err := p.fetchAll(ctx, locs)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	var batch []match.Match
	for _, r := range perLocator {
		summary.add(r.result, len(r.matches))
		batch = append(batch, r.matches...)
	}
	match.SortBatch(batch)
	p.emit(ctx, batch, &summary)

	p.logger.Info("batch finished",
		zap.Int("locators", summary.Locators),
		zap.Int("matches", summary.Matches),
		zap.Int("emitted", summary.Emitted),
		zap.Int("publish_failures", summary.PublishFailures),
	)
	return summary, ctx.Err()
}

// RunSingle fetches one locator and publishes its matches in feed order.
// The matches are also returned so on-demand callers can answer with them.
func (p *Producer) RunSingle(ctx context.Context, loc locator.Locator) ([]match.Match, Summary, error) {
	matches, res := p.source.Matches(ctx, loc)
	var summary Summary
	summary.add(res, len(matches))
	p.emit(ctx, matches, &summary)
	if matches == nil {
		matches = []match.Match{}
	}
	return matches, summary, ctx.Err()
}

type locatorResult struct {
	matches []match.Match
	result  scoreboard.Result
}

// fetchAll keeps results in enumeration order regardless of completion order.
func (p *Producer) fetchAll(ctx context.Context, locs []locator.Locator) ([]locatorResult, error) {
	out := make([]locatorResult, len(locs))
	if p.cfg.Concurrency == 1 {
		for i, loc := range locs {
			matches, res := p.source.Matches(ctx, loc)
			out[i] = locatorResult{matches: matches, result: res}
		}
		return out, nil
	}

	pool, err := ants.NewPool(p.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create fetch pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var submitErr error
	for i, loc := range locs {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			matches, res := p.source.Matches(ctx, loc)
			out[i] = locatorResult{matches: matches, result: res}
		}); err != nil {
			wg.Done()
			submitErr = fmt.Errorf("submit fetch for %s: %w", loc, err)
			break
		}
	}
	wg.Wait()
	if submitErr != nil {
		return nil, submitErr
	}
	return out, nil
}

func (p *Producer) emit(ctx context.Context, matches []match.Match, summary *Summary) {
	for _, m := range matches {
		if _, err := p.publisher.Publish(ctx, p.cfg.Topic, m); err != nil {
			summary.PublishFailures++
			p.logger.Error("publish match failed",
				zap.Int64("match_id", m.ID),
				zap.Int64("start_time_epoch", m.StartTimeEpoch),
				zap.Error(err),
			)
			continue
		}
		summary.Emitted++
	}
	metrics.ObserveEmitted(summary.Emitted)
}
