// Package retry provides the bounded exponential backoff policy applied to feed fetches.
package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"net/http"
	"time"
)

// Sleeper blocks for d or until ctx ends. Tests inject a recorder.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy decides how many attempts are made, which statuses are retried, and
// how long to wait between attempts.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      bool
	retryable   map[int]struct{}
	sleep       Sleeper
}

// Option customizes a Policy.
type Option func(*Policy)

// WithMaxAttempts bounds the total number of attempts (first try included).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets the base and maximum delays.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(p *Policy) {
		if base > 0 {
			p.baseDelay = base
		}
		if maxDelay > 0 {
			p.maxDelay = maxDelay
		}
	}
}

// WithJitter randomizes each delay within [d/2, d).
func WithJitter() Option {
	return func(p *Policy) { p.jitter = true }
}

// WithRetryableStatuses replaces the transient status set.
func WithRetryableStatuses(codes ...int) Option {
	return func(p *Policy) {
		p.retryable = make(map[int]struct{}, len(codes))
		for _, c := range codes {
			p.retryable[c] = struct{}{}
		}
	}
}

// WithSleeper swaps the delay function.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		if s != nil {
			p.sleep = s
		}
	}
}

// DefaultRetryableStatuses are the transient HTTP statuses.
var DefaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// NewPolicy builds a policy: 5 attempts, 1s base doubling to a 30s cap.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: 5,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
		sleep:       sleepContext,
	}
	WithRetryableStatuses(DefaultRetryableStatuses...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts is the attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryableStatus reports whether an HTTP status is transient.
func (p *Policy) RetryableStatus(code int) bool {
	_, ok := p.retryable[code]
	return ok
}

// ShouldRetry reports whether another attempt is allowed after attempt (1-based).
func (p *Policy) ShouldRetry(attempt int) bool {
	return attempt < p.maxAttempts
}

// Backoff returns the wait after the given 1-based attempt: base * 2^(attempt-1), capped.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	d := time.Duration(delay)
	if !p.jitter {
		return d
	}
	return d/2 + randomJitter(d/2)
}

// Wait sleeps for the backoff after attempt.
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	return p.sleep(ctx, p.Backoff(attempt))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
