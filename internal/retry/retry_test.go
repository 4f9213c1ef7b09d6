package retry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	errTransient := errors.New("not yet")
	errFatal := errors.New("permission denied")

	tests := []struct {
		name        string
		failures    int
		failWith    error
		shouldRetry ShouldRetryFunc
		wantCalls   int
		wantErr     error
	}{
		{name: "first attempt succeeds", wantCalls: 1},
		{name: "succeeds after retries", failures: 2, failWith: errTransient, wantCalls: 3},
		{name: "exhausted", failures: 10, failWith: errTransient, wantCalls: 4, wantErr: errTransient},
		{
			name:        "non-retryable stops immediately",
			failures:    10,
			failWith:    errFatal,
			shouldRetry: func(err error) bool { return !errors.Is(err, errFatal) },
			wantCalls:   1,
			wantErr:     errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{MaxRetries: 4, InitialBackoff: time.Millisecond}

			calls := 0
			err := Do(context.Background(), cfg, func() error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			}, tt.shouldRetry)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDo_ExhaustedMessage(t *testing.T) {
	err := Do(context.Background(), Config{MaxRetries: 3, InitialBackoff: time.Millisecond},
		func() error { return os.ErrNotExist }, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := Do(ctx, Config{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond}, func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("error")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 3)
}

func TestDo_Deadline(t *testing.T) {
	cfg := Config{
		MaxRetries:     1000,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Deadline:       60 * time.Millisecond,
	}

	start := time.Now()
	err := Do(context.Background(), cfg, func() error { return os.ErrNotExist }, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		attempt int
		want    time.Duration
	}{
		{"first", Config{InitialBackoff: 10 * time.Millisecond, MaxRetries: 5}, 1, 10 * time.Millisecond},
		{"doubles", Config{InitialBackoff: 10 * time.Millisecond, MaxRetries: 5}, 4, 80 * time.Millisecond},
		{"capped", Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, MaxRetries: 5}, 5, 50 * time.Millisecond},
		// base 200ms + 200ms*0.5*2/5.
		{"jitter", Config{InitialBackoff: 100 * time.Millisecond, MaxRetries: 5, Jitter: 0.5}, 2, 240 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateBackoff(tt.cfg, tt.attempt))
		})
	}
}
