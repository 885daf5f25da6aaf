package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptSucceedsOnFirstTry(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2.0}
	calls := 0

	err := Attempt(context.Background(), cfg, "op", func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAttemptRetriesUntilSuccess(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2.0}
	calls := 0

	err := Attempt(context.Background(), cfg, "op", func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestAttemptExhaustsMaxAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2.0}
	calls := 0

	err := Attempt(context.Background(), cfg, "op", func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestAttemptRespectsContextCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2.0}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Attempt(ctx, cfg, "op", func(ctx context.Context, attempt int) error {
		return errors.New("should not matter")
	})

	require.Error(t, err)
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2.0, JitterFraction: 0}

	assert.Equal(t, time.Second, Backoff(0, cfg))
	assert.Equal(t, 2*time.Second, Backoff(1, cfg))
	assert.Equal(t, 4*time.Second, Backoff(2, cfg))
	assert.Equal(t, 30*time.Second, Backoff(10, cfg), "must cap at MaxDelay")
}

func TestBackoffJitterNeverReducesDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2.0, JitterFraction: 0.25}

	for i := 0; i < 20; i++ {
		d := Backoff(1, cfg)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second+time.Duration(float64(2*time.Second)*0.25))
	}
}
