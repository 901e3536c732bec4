package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignd/internal/config"
	"campaignd/internal/logger"
	apperrors "campaignd/pkg/errors"
)

func testConfig(workers int) config.IngestConfig {
	return config.IngestConfig{
		Workers: workers,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func TestDisposition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, DispositionAck},
		{"validation", apperrors.ErrValidation.WithStage(apperrors.StageParse), DispositionAck},
		{"notification", apperrors.ErrNotification.WithStage(apperrors.StageNotify), DispositionAck},
		{"cleanup", apperrors.ErrCounter.WithStage(apperrors.StageCleanup), DispositionAck},
		{"increment", apperrors.ErrCounter.WithStage(apperrors.StageIncrement), DispositionReject},
		{"persistence", apperrors.ErrPersistence.WithStage(apperrors.StagePersist), DispositionReject},
		{"internal", apperrors.ErrInternal, DispositionReject},
		{"foreign", errors.New("unexpected"), DispositionReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Disposition(tt.err))
		})
	}
}

func TestHandle_AcksSuccess(t *testing.T) {
	proc := newProcessor()
	w := NewWorker(newConsumer(0), proc, testConfig(1), logger.NopLogger())

	d := newDelivery("1", "ok")
	assert.Equal(t, DispositionAck, w.Handle(context.Background(), d))

	acked, nacked := d.settled()
	assert.Equal(t, 1, acked)
	assert.Zero(t, nacked)
}

func TestHandle_RetriesPersistenceThenSucceeds(t *testing.T) {
	proc := newProcessor()
	persistErr := apperrors.ErrPersistence.WithStage(apperrors.StagePersist)
	proc.script["flaky"] = []error{persistErr, persistErr}
	w := NewWorker(newConsumer(0), proc, testConfig(1), logger.NopLogger())

	d := newDelivery("1", "flaky")
	assert.Equal(t, DispositionAck, w.Handle(context.Background(), d))
	assert.Equal(t, 3, proc.callsFor("flaky"))
}

func TestHandle_RejectsExhaustedPersistence(t *testing.T) {
	proc := newProcessor()
	persistErr := apperrors.ErrPersistence.WithStage(apperrors.StagePersist)
	proc.script["down"] = []error{persistErr, persistErr, persistErr, persistErr}
	w := NewWorker(newConsumer(0), proc, testConfig(1), logger.NopLogger())

	d := newDelivery("1", "down")
	assert.Equal(t, DispositionReject, w.Handle(context.Background(), d))
	assert.Equal(t, 3, proc.callsFor("down"))

	acked, nacked := d.settled()
	assert.Zero(t, acked)
	assert.Equal(t, 1, nacked)
	assert.False(t, d.requeued)
	assert.True(t, apperrors.IsPersistence(d.nackCause))
}

func TestHandle_CounterFailureNotRetried(t *testing.T) {
	proc := newProcessor()
	proc.script["inc"] = []error{apperrors.ErrCounter.WithStage(apperrors.StageIncrement)}
	w := NewWorker(newConsumer(0), proc, testConfig(1), logger.NopLogger())

	d := newDelivery("1", "inc")
	assert.Equal(t, DispositionReject, w.Handle(context.Background(), d))
	assert.Equal(t, 1, proc.callsFor("inc"))
}

func TestHandle_ValidationAckedWithoutRetry(t *testing.T) {
	proc := newProcessor()
	proc.script["bad"] = []error{apperrors.ErrValidation.WithStage(apperrors.StageParse)}
	w := NewWorker(newConsumer(0), proc, testConfig(1), logger.NopLogger())

	d := newDelivery("1", "bad")
	assert.Equal(t, DispositionAck, w.Handle(context.Background(), d))
	assert.Equal(t, 1, proc.callsFor("bad"))
}

func TestHandle_PanicIsRejected(t *testing.T) {
	proc := newProcessor()
	proc.panicOn = "explode"
	w := NewWorker(newConsumer(0), proc, testConfig(1), logger.NopLogger())

	d := newDelivery("1", "explode")
	assert.Equal(t, DispositionReject, w.Handle(context.Background(), d))

	_, nacked := d.settled()
	assert.Equal(t, 1, nacked)
	assert.ErrorIs(t, d.nackCause, apperrors.ErrInternal)
}

func TestRun_DrainsAndStopsOnCancel(t *testing.T) {
	consumer := newConsumer(16)
	proc := newProcessor()
	w := NewWorker(consumer, proc, testConfig(4), logger.NopLogger())

	deliveries := make([]*fakeDelivery, 10)
	for i := range deliveries {
		deliveries[i] = newDelivery(fmt.Sprint(i), fmt.Sprintf("m%d", i))
		consumer.ch <- deliveries[i]
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, d := range deliveries {
			if acked, _ := d.settled(); acked != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	consumer := newConsumer(16)
	proc := newProcessor()
	proc.gate = make(chan struct{})
	w := NewWorker(consumer, proc, testConfig(2), logger.NopLogger())

	for i := 0; i < 6; i++ {
		consumer.ch <- newDelivery(fmt.Sprint(i), fmt.Sprintf("m%d", i))
	}
	close(consumer.ch)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool { return proc.active.Load() == 2 }, time.Second, time.Millisecond)
	close(proc.gate)

	err := <-done
	assert.ErrorIs(t, err, ErrConsumerClosed)
	assert.EqualValues(t, 2, proc.peak.Load())
}

func TestRun_ConsumerStartFailure(t *testing.T) {
	consumer := newConsumer(0)
	consumer.err = errors.New("queue declare failed")
	w := NewWorker(consumer, newProcessor(), testConfig(1), logger.NopLogger())

	assert.EqualError(t, w.Run(context.Background()), "queue declare failed")
}
