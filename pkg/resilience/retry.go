// Package resilience provides the fixed-delay retry policy used while waiting
// for asynchronous work (such as a snapshot export) to become visible, and a
// circuit breaker for the index engine.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted is returned by Poll when every attempt came back without a
// result.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy is a bounded, fixed-delay retry budget. The first call counts as
// attempt 1; Delay is slept between attempts, never after the last one.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Fixed returns a Policy with the given budget and delay.
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Delay: delay}
}

// Immediate is a zero-delay policy, mostly useful in tests.
func Immediate(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Poll calls fn until it reports done, the budget runs out, or ctx is
// cancelled. fn returning an error consumes the attempt like a miss; the last
// such error is wrapped into the exhaustion error. Poll returns the number of
// attempts made.
func Poll(ctx context.Context, name string, p Policy, logger *slog.Logger, fn func(attempt int) (bool, error)) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("operation", name)
	budget := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		done, err := fn(attempt)
		if err != nil {
			lastErr = err
			logger.Warn("attempt failed", "attempt", attempt, "max_attempts", budget, "error", err)
		}
		if done {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}
		if attempt == budget {
			break
		}
		logger.Info("waiting before next attempt", "attempt", attempt, "max_attempts", budget, "delay", p.Delay)
		if err := sleep(ctx, p.Delay); err != nil {
			return attempt, fmt.Errorf("%s aborted during backoff: %w", name, err)
		}
	}
	if lastErr != nil {
		return budget, fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, budget, lastErr)
	}
	return budget, fmt.Errorf("%s: %w after %d attempts", name, ErrExhausted, budget)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
