package sheet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quickRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		Retryable:   IsRetryable,
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := quickRetry(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &RemoteError{Status: 503, Op: "batch", Reason: "remote server error"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnClientFault(t *testing.T) {
	calls := 0
	fault := &RemoteError{Status: 403, Op: "metadata", Reason: "permission denied"}
	err := quickRetry(3).Do(context.Background(), func(context.Context) error {
		calls++
		return fault
	})
	require.ErrorIs(t, err, fault)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := quickRetry(3).Do(context.Background(), func(context.Context) error {
		calls++
		return &RemoteError{Status: 429, Op: "batch", Reason: "rate limited"}
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.True(t, IsRetryable(err))
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Multiplier:  2,
		Retryable:   func(error) bool { return true },
	}

	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestErrorClassification(t *testing.T) {
	require.True(t, IsRetryable(&RemoteError{Status: 500}))
	require.True(t, IsRetryable(&RemoteError{Status: 429}))
	require.True(t, IsRetryable(&RemoteError{Status: 0, Err: errors.New("dial tcp: timeout")}))
	require.False(t, IsRetryable(&RemoteError{Status: 404}))

	require.True(t, IsClientFault(&RemoteError{Status: 400}))
	require.False(t, IsClientFault(&RemoteError{Status: 503}))
	require.False(t, IsClientFault(errors.New("other")))

	require.True(t, IsNotConfigured(ErrNotConfigured))
	require.True(t, IsExhausted(&ExhaustedError{Attempts: 3, Err: errors.New("x")}))
	require.False(t, IsExhausted(errors.New("x")))
}
