package pkgregistry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/webbundler/internal/pkgregistry"
)

func TestDo_SucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := pkgregistry.Do(context.Background(), pkgregistry.RetryConfig{MaxAttempts: 3}, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableErrorsUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := pkgregistry.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
	err := pkgregistry.Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return pkgregistry.Retryable(errors.New("transient"))
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_NonRetryableErrorFailsFast(t *testing.T) {
	t.Parallel()

	calls := 0
	err := pkgregistry.Do(context.Background(), pkgregistry.RetryConfig{MaxAttempts: 3}, func() error {
		calls++
		return errors.New("permanent")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_ExhaustsMaxAttemptsAndReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := pkgregistry.RetryConfig{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	err := pkgregistry.Do(context.Background(), cfg, func() error {
		calls++
		return pkgregistry.Retryable(errors.New("still failing"))
	})

	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Contains(t, err.Error(), "still failing")
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := pkgregistry.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	err := pkgregistry.Do(ctx, cfg, func() error {
		return pkgregistry.Retryable(errors.New("transient"))
	})

	require.Error(t, err)
}
