package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Classification(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name      string
		err       *Error
		retryable bool
		check     func(error) bool
	}{
		{"validation", ErrValidation.WithCause(cause), false, IsValidation},
		{"persistence", ErrPersistence.WithCause(cause), true, IsPersistence},
		{"counter", ErrCounter.WithCause(cause), false, IsCounter},
		{"notification", ErrNotification.WithCause(cause), false, IsNotification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("processing: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
			assert.ErrorIs(t, wrapped, cause)
		})
	}
}

func TestError_StageAndIs(t *testing.T) {
	err := ErrCounter.WithStage(StageCleanup).WithDetail("campaign_id", "camp-1")

	assert.Equal(t, StageCleanup, StageOf(fmt.Errorf("wrap: %w", err)))
	assert.True(t, errors.Is(err, ErrCounter))
	assert.False(t, errors.Is(err, ErrNotification))
	assert.Contains(t, err.Error(), "COUNTER_ERROR[cleanup]")
	assert.Empty(t, StageOf(fmt.Errorf("plain")))
}

func TestError_DerivedCopiesDoNotShareDetails(t *testing.T) {
	a := ErrPersistence.WithDetail("campaign_id", "a")
	b := ErrPersistence.WithDetail("campaign_id", "b")

	assert.Equal(t, "a", a.Details["campaign_id"])
	assert.Equal(t, "b", b.Details["campaign_id"])
	assert.Empty(t, ErrPersistence.Details)
}

func TestError_RetryOverrides(t *testing.T) {
	assert.True(t, ErrCounter.AsRetryable().IsRetryable())
	assert.False(t, ErrPersistence.AsFatal().IsRetryable())
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrNotFound.WithStage(StageReconcile))
	assert.Equal(t, "NOT_FOUND", resp.ErrorCode)
	assert.Equal(t, StageReconcile, resp.Stage)
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(ErrNotFound))

	resp = ToErrorResponse(fmt.Errorf("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp.ErrorCode)
	assert.Empty(t, resp.Stage)
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(fmt.Errorf("boom")))
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil, StagePersist))

	err := RecoverPanic("nil map write", StagePersist)
	require.Error(t, err)
	assert.Equal(t, StagePersist, StageOf(err))
	assert.False(t, ErrInternal.AsFatal().IsRetryable())

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.IsFatal())
	assert.Equal(t, true, appErr.Details["panic"])
	assert.Equal(t, "string", appErr.Details["panic_type"])
	assert.Contains(t, err.Error(), "nil map write")

	cause := errors.New("index out of range")
	err = RecoverPanic(cause, StageIncrement)
	assert.ErrorIs(t, err, cause)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "*errors.errorString", appErr.Details["panic_type"])
}
