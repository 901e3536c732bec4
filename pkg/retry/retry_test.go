package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campaignd/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retries []int
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		return apperrors.ErrPersistence
	}, func(attempt int, err error, _ time.Duration) {
		retries = append(retries, attempt)
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetry_StopsOnPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"fatal wrapper", NewFatalError(errors.New("boom"))},
		{"validation", apperrors.ErrValidation},
		{"counter", apperrors.ErrCounter.WithStage(apperrors.StageIncrement)},
		{"persistence marked fatal", apperrors.ErrPersistence.AsFatal()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(5), func() error {
				calls++
				return tt.err
			})
			require.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.True(t, errors.Is(err, tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))
	assert.False(t, IsPermanent(apperrors.ErrPersistence))
	assert.False(t, IsPermanent(NewRetryableError(errors.New("x"))))
	assert.True(t, IsPermanent(context.Canceled))
	assert.True(t, IsPermanent(apperrors.ErrNotification))
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastPolicy(5), func() error {
		return errors.New("transient")
	})
	require.Error(t, err)
}

func TestPolicy_Defaults(t *testing.T) {
	assert.Equal(t, DefaultPolicy().MaxAttempts, Policy{}.Attempts())
	assert.Equal(t, 7, Policy{MaxAttempts: 7}.Attempts())

	p := Policy{Multiplier: 0.5}.withDefaults()
	assert.Equal(t, DefaultPolicy().Multiplier, p.Multiplier)
	assert.Equal(t, DefaultPolicy().InitialInterval, p.InitialInterval)
	assert.Zero(t, p.MaxElapsedTime)
}

func TestPolicy_NewBackOffStopsAfterAttempts(t *testing.T) {
	b := fastPolicy(3).NewBackOff(context.Background())

	assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}
