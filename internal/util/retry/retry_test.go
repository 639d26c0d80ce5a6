package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExponentialBackoff_Success(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_SuccessAfterRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithExponentialBackoff_MaxRetries(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	}, WithMaxRetries(3), WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	// MaxRetries counts retries after the first attempt.
	assert.Equal(t, 4, attempts)
	assert.Contains(t, err.Error(), "persistent error")
}

func TestWithExponentialBackoff_ContextCancellation(t *testing.T) {
	t.Parallel()
	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithExponentialBackoff(ctx, func() error {
		attempts++
		return errors.New("error")
	}, WithInitialDelay(10*time.Millisecond))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_FatalError(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return Fatal(errors.New("fatal error"))
	}, WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_NotRetryable(t *testing.T) {
	t.Parallel()
	permanent := errors.New("bad request")
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return permanent
	},
		WithInitialDelay(time.Millisecond),
		WithRetryable(func(err error) bool { return !errors.Is(err, permanent) }),
	)

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_FakeClockBackoff(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	var waits []time.Duration
	var attempts atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- WithExponentialBackoff(context.Background(), func() error {
			if attempts.Add(1) < 4 {
				return errors.New("transient")
			}
			return nil
		},
			WithClock(clock),
			WithInitialDelay(time.Second),
			WithMaxDelay(3*time.Second),
			WithOnRetry(func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }),
		)
	}()

	for range 3 {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
	}

	require.NoError(t, <-done)
	assert.Equal(t, int32(4), attempts.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, waits)
}

func TestFatal(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Fatal(nil))

	originalErr := errors.New("test error")
	err := Fatal(originalErr)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, originalErr.Error(), err.Error())
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("regular error"), false},
		{"fatal error", Fatal(errors.New("fatal")), true},
		{"joined fatal", errors.Join(Fatal(errors.New("base")), errors.New("more")), true},
		{"wrapped fatal", fmt.Errorf("context: %w", Fatal(errors.New("base"))), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestFatalError_Unwrap(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("sentinel error")
	fatalErr := Fatal(sentinel)

	assert.Same(t, sentinel, errors.Unwrap(fatalErr))
	assert.ErrorIs(t, fmt.Errorf("context: %w", fatalErr), sentinel)
}
