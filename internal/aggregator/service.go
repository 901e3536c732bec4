// Package aggregator decides, exactly once per campaign, when every expected
// message has been processed.
package aggregator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/counter"
	"campaignd/internal/logger"
	"campaignd/internal/notifier"
	"campaignd/internal/parser"
	"campaignd/internal/store"
	apperrors "campaignd/pkg/errors"
	"campaignd/pkg/logging"
	"campaignd/pkg/metrics"
	"campaignd/pkg/models"
	"campaignd/pkg/tracing"
)

const tracerName = "campaign-aggregator"

// Result describes what happened to one message.
type Result struct {
	Message   *models.Message
	Persisted bool
	// Count is the campaign progress observed right after this message was
	// counted.
	Count int64
	// Duplicate is set in distinct mode when the identifier was already
	// counted.
	Duplicate bool
	// CompletedCampaign is the campaign id when this call observed completion
	// and the notification was delivered.
	CompletedCampaign string
}

type Service struct {
	parser       *parser.Parser
	repo         store.Repository
	counters     counter.Store
	notifier     notifier.Notifier
	mode         string
	stageTimeout time.Duration
	logger       logger.Logger
}

func NewService(p *parser.Parser, repo store.Repository, counters counter.Store, n notifier.Notifier, cfg config.AggregatorConfig, log logger.Logger) *Service {
	mode := cfg.CounterMode
	if mode == "" {
		mode = constants.CounterModeCount
	}
	timeout := cfg.StageTimeout
	if timeout <= 0 {
		timeout = constants.DefaultStageTimeout
	}
	return &Service{
		parser:       p,
		repo:         repo,
		counters:     counters,
		notifier:     n,
		mode:         mode,
		stageTimeout: timeout,
		logger:       log,
	}
}

func (s *Service) Mode() string {
	return s.mode
}

// Process parses raw and runs it through persist, count and, when this call
// observes completion, notify and cleanup. Every returned error is an
// *errors.Error carrying the failed stage.
func (s *Service) Process(ctx context.Context, raw []byte) (Result, error) {
	start := time.Now()

	msg, err := s.parser.Parse(raw)
	if err != nil {
		metrics.IncStageFailure(apperrors.StageParse)
		metrics.IncMessage(metrics.StatusInvalid)
		metrics.ObserveProcessingDuration(time.Since(start), metrics.StatusInvalid)
		s.logger.WarnwCtx(ctx, "Dropping invalid message", "error", err)
		return Result{}, err
	}

	return s.process(ctx, msg, start)
}

// ProcessMessage runs an already parsed message through the pipeline.
func (s *Service) ProcessMessage(ctx context.Context, msg *models.Message) (Result, error) {
	if err := msg.Validate(); err != nil {
		return Result{}, apperrors.ErrValidation.WithStage(apperrors.StageParse).WithCause(err)
	}
	return s.process(ctx, msg, time.Now())
}

func (s *Service) process(ctx context.Context, msg *models.Message, start time.Time) (result Result, err error) {
	ctx = logging.WithCampaignID(ctx, msg.CampaignID)
	ctx = logging.WithMessageID(ctx, msg.Identifier)

	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "aggregator.process")
	span.SetAttributes(
		attribute.String("campaign.id", msg.CampaignID),
		attribute.String("message.identifier", msg.Identifier),
		attribute.Int64("campaign.expected_total", msg.ExpectedTotal),
	)
	defer span.End()

	result = Result{Message: msg}
	defer func() {
		status := metrics.StatusCounted
		switch {
		case result.CompletedCampaign != "":
			status = metrics.StatusCompleted
		case err != nil:
			status = metrics.StatusFailed
		case result.Duplicate:
			status = metrics.StatusDuplicate
		}
		if err != nil {
			metrics.IncStageFailure(apperrors.StageOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.IncMessage(status)
		metrics.ObserveProcessingDuration(time.Since(start), status)
	}()

	if err := s.runStage(ctx, apperrors.StagePersist, func(ctx context.Context) error {
		return s.repo.Save(ctx, msg)
	}); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to persist message", "error", err)
		return result, stageError(apperrors.ErrPersistence, apperrors.StagePersist, msg.CampaignID, err)
	}
	result.Persisted = true

	key := counter.KeyFor(s.mode, msg.CampaignID)
	var added bool
	if err := s.runStage(ctx, apperrors.StageIncrement, func(ctx context.Context) error {
		var incErr error
		if s.mode == constants.CounterModeDistinct {
			result.Count, added, incErr = s.counters.AddMember(ctx, key, msg.Identifier)
			return incErr
		}
		result.Count, incErr = s.counters.Increment(ctx, key)
		added = true
		return incErr
	}); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to increment campaign counter, campaign count may be desynchronized",
			"counter_key", key,
			"error", err,
		)
		return result, stageError(apperrors.ErrCounter, apperrors.StageIncrement, msg.CampaignID, err)
	}
	span.SetAttributes(attribute.Int64("campaign.count", result.Count))

	if !added {
		result.Duplicate = true
		s.logger.DebugwCtx(ctx, "Message already counted for campaign",
			"count", result.Count,
			"expected_total", msg.ExpectedTotal,
		)
		return result, nil
	}

	if result.Count > msg.ExpectedTotal {
		metrics.CampaignOvercountTotal.Inc()
		s.logger.WarnwCtx(ctx, "Campaign counter exceeded expected total",
			"counter_key", key,
			"count", result.Count,
			"expected_total", msg.ExpectedTotal,
		)
		return result, nil
	}

	if result.Count != msg.ExpectedTotal {
		s.logger.DebugwCtx(ctx, "Message counted",
			"count", result.Count,
			"expected_total", msg.ExpectedTotal,
		)
		return result, nil
	}

	if err := s.runStage(ctx, apperrors.StageNotify, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, msg.CampaignID)
	}); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to notify campaign completion, counter retained for reconciliation",
			"counter_key", key,
			"count", result.Count,
			"error", err,
		)
		return result, stageError(apperrors.ErrNotification, apperrors.StageNotify, msg.CampaignID, err)
	}
	result.CompletedCampaign = msg.CampaignID
	metrics.IncCompletion(metrics.SourceIngest)

	if err := s.runStage(ctx, apperrors.StageCleanup, func(ctx context.Context) error {
		_, delErr := s.counters.Delete(ctx, key)
		return delErr
	}); err != nil {
		s.logger.ErrorwCtx(ctx, "Campaign notified but counter cleanup failed",
			"counter_key", key,
			"error", err,
		)
		return result, stageError(apperrors.ErrCounter, apperrors.StageCleanup, msg.CampaignID, err)
	}

	s.logger.InfowCtx(ctx, "Campaign completed",
		"count", result.Count,
		"expected_total", msg.ExpectedTotal,
	)
	return result, nil
}

// runStage bounds fn by the stage timeout and traces it as a child span.
func (s *Service) runStage(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "aggregator."+stage)
	defer span.End()

	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	err := fn(stageCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func stageError(class *apperrors.Error, stage, campaignID string, cause error) error {
	var appErr *apperrors.Error
	if errors.As(cause, &appErr) && appErr.Is(class) {
		class = appErr
	} else {
		class = class.WithCause(cause)
	}
	class = class.WithStage(stage).WithDetail("campaign_id", campaignID)
	if errors.Is(cause, context.DeadlineExceeded) {
		class = class.WithDetail("timeout", true)
	}
	return class
}
