// Package retry factors the "attempt with deadline, backoff, cap" pattern
// spec.md §9 calls out ("ad-hoc retry/backoff scattered across call sites")
// into one combinator used uniformly for every agent RPC.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// Config controls one combinator invocation.
type Config struct {
	MaxAttempts    int           // total attempts, including the first
	InitialDelay   time.Duration
	MaxDelay       time.Duration // cap, per spec.md §4.2 ("capped at 30s")
	BackoffFactor  float64
	JitterFraction float64
	PerAttempt     time.Duration // deadline applied to each attempt via context
}

// DefaultDispatchConfig matches spec.md §4.2/§4.9: up to 5 attempts,
// exponential backoff capped at 30s, each attempt bounded by a 10s deadline.
func DefaultDispatchConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.1,
		PerAttempt:     10 * time.Second,
	}
}

// Attempt runs fn up to cfg.MaxAttempts times, waiting an exponentially
// growing (capped, jittered) delay between attempts. fn receives a context
// bounded by cfg.PerAttempt when set. Returns the last error if every
// attempt fails, or nil on the first success.
func Attempt(ctx context.Context, cfg Config, operation string, fn func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context ended before attempt %d: %w", operation, attempt+1, err)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.PerAttempt > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.PerAttempt)
		}
		err := fn(attemptCtx, attempt)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if attempt > 0 {
				logging.Log.WithField("operation", operation).
					WithField("attempt", attempt+1).
					Info("dispatch succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if attempt > 0 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
		wait := withJitter(delay, cfg.JitterFraction)

		logging.Log.WithField("operation", operation).
			WithField("attempt", attempt+1).
			WithField("delay", wait).
			WithError(err).
			Warn("dispatch attempt failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: context ended during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s: exhausted %d attempts: %w", operation, cfg.MaxAttempts, lastErr)
}

// Backoff computes the delay before the (attempt+1)th dispatch of something
// that has already failed `attempt` times, per cfg. Used by the scheduler to
// decide how long a job must wait in queue before its assignment is
// reattempted after a dispatch RPC failure (spec.md §4.2, §7): the job is
// reinserted at its queue position immediately, but the scheduler skips
// redispatching it until this delay elapses, so cumulative dispatch
// failures back off exponentially up to cfg.MaxDelay exactly as a single
// retrying call would.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt <= 0 {
		return withJitter(cfg.InitialDelay, cfg.JitterFraction)
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return withJitter(delay, cfg.JitterFraction)
}

func withJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	if fraction > 1 {
		fraction = 1
	}
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
