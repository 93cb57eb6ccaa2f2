// Package ratelimit gates calls into the quota-limited embedding provider.
// It tracks token and request consumption in sliding windows and delays
// reservations until capacity is available; a reservation never fails, it
// only waits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/metrics"
)

// Provider defaults for text-embedding traffic.
const (
	DefaultTokensPerMinute   = 1_000_000
	DefaultRequestsPerMinute = 3_000
)

const (
	window = time.Minute
	// epsilon pads every computed wait so the oldest window entry has
	// actually expired when the caller re-checks.
	epsilon = 100 * time.Millisecond
	// maxMinuteWait caps the tokens-per-minute wait. Best-effort compliance
	// is preferred over stalling an upload for most of a minute.
	maxMinuteWait = 5 * time.Second
)

type tokenEvent struct {
	at     time.Time
	tokens int
}

// Limiter is a sliding-window token and request budget. One instance is
// constructed at process bootstrap and injected into every component that
// talks to the provider; the two histories are its only mutable state and
// every mutation happens under one mutex. Histories are never persisted.
type Limiter struct {
	mu                sync.Mutex
	tokensPerMinute   int
	requestsPerMinute int
	tokensPerSecond   int
	tokenEvents       []tokenEvent
	requestEvents     []time.Time
	logger            *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter. Non-positive budgets fall back to the provider
// defaults; tokensPerSecond, when zero, derives as 80% of the per-minute
// budget spread over a second.
func New(tokensPerMinute, requestsPerMinute, tokensPerSecond int, logger *zap.Logger) *Limiter {
	if tokensPerMinute <= 0 {
		tokensPerMinute = DefaultTokensPerMinute
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if tokensPerSecond <= 0 {
		tokensPerSecond = tokensPerMinute * 8 / 10 / 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		tokensPerMinute:   tokensPerMinute,
		requestsPerMinute: requestsPerMinute,
		tokensPerSecond:   tokensPerSecond,
		logger:            logger,
		now:               time.Now,
		sleep:             sleepCtx,
	}
}

// Reserve blocks until the estimated token count fits the request, minute
// and second windows, then records the reservation into both histories.
// Capacity is claimed optimistically before the provider call completes;
// RecordUsage reconciles with the true count afterward. Returns early only
// when ctx is cancelled.
func (l *Limiter) Reserve(ctx context.Context, estimatedTokens int) error {
	if wait := l.requestWait(); wait > 0 {
		l.logger.Info("Rate limit: waiting for request capacity",
			zap.Duration("wait", wait),
			zap.Int("requests_per_minute", l.requestsPerMinute),
		)
		metrics.RateLimitWaitDuration.WithLabelValues("requests").Observe(wait.Seconds())
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if wait := l.minuteTokenWait(estimatedTokens); wait > 0 {
		if wait > maxMinuteWait {
			wait = maxMinuteWait
		}
		if wait > time.Second {
			l.logger.Info("Rate limit: waiting for minute token capacity",
				zap.Duration("wait", wait),
				zap.Int("tokens_per_minute", l.tokensPerMinute),
			)
		}
		metrics.RateLimitWaitDuration.WithLabelValues("tokens_minute").Observe(wait.Seconds())
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if wait := l.secondTokenWait(estimatedTokens); wait > 0 {
		l.logger.Debug("Rate limit: waiting for second token capacity",
			zap.Duration("wait", wait),
		)
		metrics.RateLimitWaitDuration.WithLabelValues("tokens_second").Observe(wait.Seconds())
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.commit(estimatedTokens)
	return nil
}

// RecordUsage appends the true token count after a provider call. Both the
// reservation and the usage entry stay in the window; the double count is a
// deliberate bias toward under-admission.
func (l *Limiter) RecordUsage(actualTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokenEvents = append(l.tokenEvents, tokenEvent{at: l.now(), tokens: actualTokens})
}

// requestWait returns how long to wait for the request window, 0 if none.
func (l *Limiter) requestWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.requestEvents) < l.requestsPerMinute {
		return 0
	}
	wait := window - now.Sub(l.requestEvents[0]) + epsilon
	if wait < 0 {
		return 0
	}
	return wait
}

// minuteTokenWait returns how long to wait for the minute token window.
func (l *Limiter) minuteTokenWait(estimatedTokens int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	total := 0
	for _, e := range l.tokenEvents {
		total += e.tokens
	}
	if total+estimatedTokens <= l.tokensPerMinute || len(l.tokenEvents) == 0 {
		return 0
	}
	wait := window - now.Sub(l.tokenEvents[0].at) + epsilon
	if wait < 0 {
		return 0
	}
	return wait
}

// secondTokenWait returns the wait until the next whole-second boundary when
// the trailing-second token sum would overflow.
func (l *Limiter) secondTokenWait(estimatedTokens int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	secondAgo := now.Add(-time.Second)
	total := 0
	for _, e := range l.tokenEvents {
		if !e.at.Before(secondAgo) {
			total += e.tokens
		}
	}
	if total+estimatedTokens <= l.tokensPerSecond {
		return 0
	}
	return now.Truncate(time.Second).Add(time.Second + epsilon).Sub(now)
}

// commit records the reservation into both histories.
func (l *Limiter) commit(estimatedTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokenEvents = append(l.tokenEvents, tokenEvent{at: now, tokens: estimatedTokens})
	l.requestEvents = append(l.requestEvents, now)
}

// prune drops window entries older than one minute. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-window)

	i := 0
	for i < len(l.tokenEvents) && l.tokenEvents[i].at.Before(cutoff) {
		i++
	}
	l.tokenEvents = l.tokenEvents[i:]

	j := 0
	for j < len(l.requestEvents) && l.requestEvents[j].Before(cutoff) {
		j++
	}
	l.requestEvents = l.requestEvents[j:]
}

// windowTokens returns the current trailing-minute token sum.
func (l *Limiter) windowTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	total := 0
	for _, e := range l.tokenEvents {
		total += e.tokens
	}
	return total
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
