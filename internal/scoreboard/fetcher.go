package scoreboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	collyfetcher "github.com/JakeFAU/ncaa-match-pipeline/internal/fetcher/colly"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/metrics"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/retry"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/storage"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/JakeFAU/ncaa-match-pipeline/internal/scoreboard")

// Transport issues one HTTP GET.
type Transport interface {
	Get(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Clock supplies processing timestamps.
type Clock interface {
	Now() time.Time
}

// Limiter paces requests to the feed host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher digests archived payloads.
type Hasher interface {
	Hash(data []byte) string
}

// Result is the outcome of fetching one locator. Games is empty for any
// outcome other than metrics.ResultMatches.
type Result struct {
	Locator   locator.Locator
	URL       string
	Status    string
	Attempts  int
	UpdatedAt int64
	Games     []json.RawMessage
	Err       error
}

// Fetcher retrieves scoreboard documents with bounded retries and never
// fails its caller: every failure degrades to an empty Result.
type Fetcher struct {
	transport Transport
	urls      locator.URLBuilder
	policy    *retry.Policy
	clock     Clock
	logger    *zap.Logger

	limiter Limiter
	archive storage.BlobStore
	hasher  Hasher
	digests sync.Map
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithArchive stores each successful body in blobs. When hasher is set,
// unchanged bodies are not rewritten.
func WithArchive(blobs storage.BlobStore, hasher Hasher) Option {
	return func(f *Fetcher) {
		f.archive = blobs
		f.hasher = hasher
	}
}

// WithLimiter waits on l before every attempt, retries included.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// NewFetcher builds a Fetcher.
func NewFetcher(
	transport Transport,
	urls locator.URLBuilder,
	policy *retry.Policy,
	clock Clock,
	logger *zap.Logger,
	opts ...Option,
) *Fetcher {
	if policy == nil {
		policy = retry.NewPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		transport: transport,
		urls:      urls,
		policy:    policy,
		clock:     clock,
		logger:    logger.Named("scoreboard"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the games for loc. A 404 or an empty games array returns
// an empty result immediately; transient statuses and connection errors are
// retried per the policy.
func (f *Fetcher) Fetch(ctx context.Context, loc locator.Locator) Result {
	url := f.urls.URL(loc)
	ctx, span := tracer.Start(ctx, "scoreboard.fetch", trace.WithAttributes(
		attribute.String("locator", loc.String()),
		attribute.String("url", url),
	))
	res := f.fetch(ctx, loc, url)
	span.SetAttributes(
		attribute.String("result", res.Status),
		attribute.Int("attempts", res.Attempts),
		attribute.Int("games", len(res.Games)),
	)
	telemetry.End(span, res.Err)
	return res
}

func (f *Fetcher) fetch(ctx context.Context, loc locator.Locator, url string) Result {
	res := Result{Locator: loc, URL: url}
	logger := f.logger.With(zap.String("locator", loc.String()), zap.String("url", res.URL))

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, res.URL); err != nil {
				return f.finish(logger, res, metrics.ResultFailed, fmt.Errorf("fetch %s: %w", loc, err))
			}
		}
		resp, err := f.transport.Get(ctx, res.URL)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return f.finish(logger, res, metrics.ResultFailed, fmt.Errorf("fetch %s: %w", loc, ctxErr))
		}

		var transient error
		switch {
		case err != nil:
			metrics.ObserveFetchAttempt(metrics.AttemptNetwork)
			transient = faults.Transient(fmt.Errorf("get %s: %w", res.URL, err))
		case resp.StatusCode == http.StatusNotFound:
			metrics.ObserveFetchAttempt(metrics.AttemptNotFound)
			return f.finish(logger, res, metrics.ResultNotFound, nil)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			metrics.ObserveFetchAttempt(metrics.AttemptOK)
			return f.accept(ctx, logger, res, resp.Body)
		case f.policy.RetryableStatus(resp.StatusCode):
			metrics.ObserveFetchAttempt(metrics.AttemptRetryable)
			transient = faults.Transient(fmt.Errorf("get %s: status %d", res.URL, resp.StatusCode))
		default:
			metrics.ObserveFetchAttempt(metrics.AttemptFatal)
			return f.finish(logger, res, metrics.ResultFailed, fmt.Errorf("get %s: status %d", res.URL, resp.StatusCode))
		}

		if !f.policy.ShouldRetry(attempt) {
			return f.finish(logger, res, metrics.ResultExhausted, transient)
		}
		logger.Warn("transient fetch failure, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", f.policy.Backoff(attempt)),
			zap.Error(transient),
		)
		if err := f.policy.Wait(ctx, attempt); err != nil {
			return f.finish(logger, res, metrics.ResultFailed, fmt.Errorf("fetch %s: %w", loc, err))
		}
	}
}

// Matches fetches loc and normalizes every game. Records that fail
// normalization are logged and skipped.
func (f *Fetcher) Matches(ctx context.Context, loc locator.Locator) ([]match.Match, Result) {
	res := f.Fetch(ctx, loc)
	if len(res.Games) == 0 {
		return nil, res
	}
	processTime := f.now().Unix()
	out := make([]match.Match, 0, len(res.Games))
	for i, raw := range res.Games {
		m, err := Normalize(raw, res.UpdatedAt, loc, processTime)
		switch {
		case err != nil:
			metrics.ObserveNormalized("malformed")
			f.logger.Warn("skipping malformed game",
				zap.String("locator", loc.String()),
				zap.Int("index", i),
				zap.Error(err),
			)
		case m == nil:
			metrics.ObserveNormalized("skipped")
		default:
			metrics.ObserveNormalized("ok")
			out = append(out, *m)
		}
	}
	return out, res
}

func (f *Fetcher) accept(ctx context.Context, logger *zap.Logger, res Result, body []byte) Result {
	f.archiveBody(ctx, logger, res.Locator, body)

	payload, err := decodeFeed(body)
	if err != nil {
		return f.finish(logger, res, metrics.ResultFailed, err)
	}
	if len(payload.Games) == 0 {
		return f.finish(logger, res, metrics.ResultEmpty, nil)
	}
	res.UpdatedAt = payload.UpdatedAt
	res.Games = payload.Games
	return f.finish(logger, res, metrics.ResultMatches, nil)
}

func (f *Fetcher) archiveBody(ctx context.Context, logger *zap.Logger, loc locator.Locator, body []byte) {
	if f.archive == nil {
		return
	}
	key := loc.ArchiveKey()
	var digest string
	if f.hasher != nil {
		digest = f.hasher.Hash(body)
		if prev, ok := f.digests.Load(key); ok && prev == digest {
			logger.Debug("payload unchanged, archive skipped", zap.String("sha256", digest))
			return
		}
	}
	uri, err := f.archive.PutObject(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive payload failed", zap.String("key", key), zap.Error(err))
		return
	}
	if digest != "" {
		f.digests.Store(key, digest)
	}
	logger.Debug("payload archived", zap.String("uri", uri), zap.String("sha256", digest))
}

func (f *Fetcher) finish(logger *zap.Logger, res Result, status string, err error) Result {
	res.Status = status
	res.Err = err
	metrics.ObserveFetchResult(status)
	fields := []zap.Field{zap.String("result", status), zap.Int("attempts", res.Attempts)}
	switch status {
	case metrics.ResultFailed, metrics.ResultExhausted:
		logger.Error("scoreboard fetch failed", append(fields, zap.Error(err))...)
	default:
		logger.Debug("scoreboard fetched", append(fields, zap.Int("games", len(res.Games)))...)
	}
	return res
}

func (f *Fetcher) now() time.Time {
	if f.clock == nil {
		return time.Now().UTC()
	}
	return f.clock.Now()
}
