// Package ingest drives broker deliveries through the aggregator and owns
// acknowledgment timing.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"campaignd/internal/aggregator"
	"campaignd/internal/broker"
	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/logger"
	apperrors "campaignd/pkg/errors"
	"campaignd/pkg/logging"
	"campaignd/pkg/metrics"
	"campaignd/pkg/retry"
	"campaignd/pkg/tracing"
)

// Delivery dispositions, also used as metric labels.
const (
	DispositionAck    = "ack"
	DispositionReject = "reject"
)

const stageIngest = "ingest"

// ErrConsumerClosed is returned by Run when the broker stops delivering
// before the context is cancelled.
var ErrConsumerClosed = errors.New("broker delivery channel closed unexpectedly")

// Processor runs one raw payload through the pipeline.
type Processor interface {
	Process(ctx context.Context, raw []byte) (aggregator.Result, error)
}

type Worker struct {
	consumer  broker.Consumer
	processor Processor
	workers   int
	policy    retry.Policy
	logger    logger.Logger
}

func NewWorker(consumer broker.Consumer, processor Processor, cfg config.IngestConfig, log logger.Logger) *Worker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = constants.DefaultWorkers
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = cfg.Retry.MaxInterval
	}
	if cfg.Retry.Multiplier > 0 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.Retry.MaxElapsedTime
	}

	return &Worker{
		consumer:  consumer,
		processor: processor,
		workers:   workers,
		policy:    policy,
		logger:    log.With("component", "ingest"),
	}
}

// Run consumes until ctx is cancelled, dispatching deliveries to a bounded
// pool. In-flight deliveries are finished and settled before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Deliveries(ctx)
	if err != nil {
		return err
	}

	w.logger.InfowCtx(ctx, "Ingest loop started",
		"broker", w.consumer.Name(),
		"workers", w.workers,
	)

	// Handlers outlive ctx so that a shutdown never abandons a delivery
	// between processing and acknowledgment.
	handleCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(w.workers)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			w.logger.InfowCtx(handleCtx, "Ingest loop stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				_ = g.Wait()
				if ctx.Err() != nil {
					return nil
				}
				return ErrConsumerClosed
			}
			g.Go(func() error {
				w.Handle(handleCtx, d)
				return nil
			})
		}
	}
}

// Handle processes a single delivery and settles it. It returns the
// disposition that was applied.
func (w *Worker) Handle(ctx context.Context, d broker.Delivery) string {
	ctx = logging.WithDeliveryID(ctx, d.ID())
	ctx, span := tracing.StartConsumerSpan(ctx, "ingest.delivery", d.Headers())
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", w.consumer.Name()),
		attribute.String("messaging.message.id", d.ID()),
	)

	inFlight := metrics.MessagesInFlight.WithLabelValues(constants.ServiceName)
	inFlight.Inc()
	defer inFlight.Dec()

	err := w.process(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	disposition := Disposition(err)
	var settleErr error
	if disposition == DispositionAck {
		settleErr = d.Ack(ctx)
	} else {
		w.logger.ErrorwCtx(ctx, "Rejecting delivery without requeue",
			"delivery_id", d.ID(),
			"stage", apperrors.StageOf(err),
			"error", err,
		)
		settleErr = d.Nack(ctx, false, err)
	}
	if settleErr != nil {
		w.logger.ErrorwCtx(ctx, "Failed to settle delivery",
			"delivery_id", d.ID(),
			"disposition", disposition,
			"error", settleErr,
		)
	}

	metrics.IncDelivery(w.consumer.Name(), disposition)
	span.SetAttributes(attribute.String("messaging.disposition", disposition))
	return disposition
}

func (w *Worker) process(ctx context.Context, d broker.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r, stageIngest)
			metrics.IncStageFailure(stageIngest)
			w.logger.ErrorwCtx(ctx, "Recovered panic while processing delivery",
				"delivery_id", d.ID(),
				"error", err,
			)
		}
	}()

	return retry.RetryWithCallback(ctx, w.policy, func() error {
		_, err := w.processor.Process(ctx, d.Body())
		return err
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(constants.ServiceName, apperrors.StageOf(err)).Inc()
		w.logger.WarnwCtx(ctx, "Retrying delivery after transient failure",
			"delivery_id", d.ID(),
			"attempt", attempt,
			"next_retry_in", next,
			"error", err,
		)
	})
}

// Disposition maps a processing outcome to ack or reject. Failures after
// the campaign was counted and notified, and failures that a redelivery
// cannot fix, are acked.
func Disposition(err error) string {
	switch {
	case err == nil:
		return DispositionAck
	case apperrors.IsValidation(err):
		return DispositionAck
	case apperrors.IsNotification(err):
		return DispositionAck
	case apperrors.IsCounter(err) && apperrors.StageOf(err) == apperrors.StageCleanup:
		return DispositionAck
	default:
		return DispositionReject
	}
}
