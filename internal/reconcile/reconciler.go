// Package reconcile finds campaign counters that reached their total but
// were never resolved, typically because the completion notification
// failed, and finishes them.
package reconcile

import (
	"context"
	"sync"
	"time"

	"campaignd/internal/constants"
	"campaignd/internal/counter"
	"campaignd/internal/logger"
	"campaignd/internal/notifier"
	"campaignd/internal/store"
	apperrors "campaignd/pkg/errors"
	"campaignd/pkg/metrics"
	"campaignd/pkg/tracing"
)

// Actions taken for a single counter key. Also used as metric labels.
const (
	ActionNotified     = "notified"
	ActionMoved        = "moved"
	ActionWaiting      = "waiting"
	ActionUnstable     = "unstable"
	ActionUnknownTotal = "unknown_total"
	ActionNotifyFailed = "notify_failed"
	ActionGone         = "gone"
	ActionInvalidKey   = "invalid_key"
	ActionError        = "error"
)

const (
	sweepOK      = "ok"
	sweepPartial = "partial"
	sweepFailed  = "failed"
)

// Outcome reports what the reconciler did with one counter key.
type Outcome struct {
	CampaignID    string `json:"campaign_id"`
	Key           string `json:"counter_key"`
	Count         int64  `json:"count"`
	ExpectedTotal int64  `json:"expected_total"`
	Action        string `json:"action"`
	// Notified is set once the completion call succeeded, whatever happened
	// to the counter afterwards.
	Notified bool   `json:"notified"`
	Error    string `json:"error,omitempty"`
}

type Reconciler struct {
	counters     counter.Store
	repo         store.Repository
	notifier     notifier.Notifier
	stageTimeout time.Duration
	logger       logger.Logger

	mu       sync.Mutex
	lastSeen map[string]int64
}

func New(counters counter.Store, repo store.Repository, n notifier.Notifier, stageTimeout time.Duration, log logger.Logger) *Reconciler {
	if stageTimeout <= 0 {
		stageTimeout = constants.DefaultStageTimeout
	}
	return &Reconciler{
		counters:     counters,
		repo:         repo,
		notifier:     n,
		stageTimeout: stageTimeout,
		logger:       log.With("component", "reconciler"),
		lastSeen:     make(map[string]int64),
	}
}

// Start sweeps every interval until ctx is cancelled. A non-positive
// interval disables the loop.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.logger.InfowCtx(ctx, "Periodic reconcile disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorwCtx(ctx, "Reconcile sweep failed", "error", err)
			}
		}
	}
}

// Sweep inspects every pending counter. A counter is resolved only when its
// value is at or past the expected total and has not moved since the
// previous sweep, so messages still in flight are left to the ingest path.
func (r *Reconciler) Sweep(ctx context.Context) ([]Outcome, error) {
	ctx, span := tracing.GetTracer("campaign-reconciler").Start(ctx, "reconcile.sweep")
	defer span.End()

	var keys []string
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		var scanErr error
		keys, scanErr = r.counters.Scan(ctx, constants.CounterScanPattern)
		return scanErr
	})
	if err != nil {
		metrics.ReconcileSweepsTotal.WithLabelValues(sweepFailed).Inc()
		return nil, apperrors.ErrCounter.WithStage(apperrors.StageReconcile).WithCause(err)
	}
	metrics.CampaignCountersPending.Set(float64(len(keys)))

	seen := make(map[string]int64, len(keys))
	outcomes := make([]Outcome, 0, len(keys))
	status := sweepOK
	for _, key := range keys {
		outcome := r.reconcileKey(ctx, key, true, seen)
		if outcome.Action == ActionError {
			status = sweepPartial
		}
		outcomes = append(outcomes, outcome)
	}

	r.mu.Lock()
	r.lastSeen = seen
	r.mu.Unlock()

	metrics.ReconcileSweepsTotal.WithLabelValues(status).Inc()
	r.logger.DebugwCtx(ctx, "Reconcile sweep finished",
		"pending_counters", len(keys),
		"status", status,
	)
	return outcomes, nil
}

// RunOnce reconciles one campaign immediately, without waiting for its
// counter to be stable. Both counter layouts are checked.
func (r *Reconciler) RunOnce(ctx context.Context, campaignID string) ([]Outcome, error) {
	ctx, span := tracing.GetTracer("campaign-reconciler").Start(ctx, "reconcile.run_once")
	defer span.End()

	var outcomes []Outcome
	for _, key := range []string{counter.CountKey(campaignID), counter.MembersKey(campaignID)} {
		outcome := r.reconcileKey(ctx, key, false, nil)
		if outcome.Action == ActionGone && !outcome.Notified {
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	if len(outcomes) == 0 {
		return nil, apperrors.ErrNotFound.WithStage(apperrors.StageReconcile).WithDetail("campaign_id", campaignID)
	}
	return outcomes, nil
}

func (r *Reconciler) reconcileKey(ctx context.Context, key string, requireStable bool, seen map[string]int64) Outcome {
	outcome := Outcome{Key: key}
	defer func() { metrics.IncReconcileAction(outcome.Action) }()

	campaignID, ok := counter.CampaignFromKey(key)
	if !ok {
		outcome.Action = ActionInvalidKey
		return outcome
	}
	outcome.CampaignID = campaignID

	var found bool
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		var peekErr error
		outcome.Count, found, peekErr = r.counters.Peek(ctx, key)
		return peekErr
	}); err != nil {
		return r.fail(ctx, outcome, err)
	}
	if !found {
		outcome.Action = ActionGone
		return outcome
	}
	if seen != nil {
		seen[key] = outcome.Count
	}

	var known bool
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		var lookupErr error
		outcome.ExpectedTotal, known, lookupErr = r.repo.ExpectedTotal(ctx, campaignID)
		return lookupErr
	}); err != nil {
		return r.fail(ctx, outcome, err)
	}
	if !known {
		outcome.Action = ActionUnknownTotal
		r.logger.WarnwCtx(ctx, "Counter has no stored messages to read a total from",
			"campaign_id", campaignID,
			"counter_key", key,
			"count", outcome.Count,
		)
		return outcome
	}
	if outcome.Count < outcome.ExpectedTotal {
		outcome.Action = ActionWaiting
		return outcome
	}

	if requireStable {
		r.mu.Lock()
		prev, had := r.lastSeen[key]
		r.mu.Unlock()
		if !had || prev != outcome.Count {
			outcome.Action = ActionUnstable
			return outcome
		}
	}

	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		return r.notifier.Notify(ctx, campaignID)
	}); err != nil {
		outcome.Action = ActionNotifyFailed
		outcome.Error = err.Error()
		r.logger.ErrorwCtx(ctx, "Reconcile notification failed",
			"campaign_id", campaignID,
			"counter_key", key,
			"error", err,
		)
		return outcome
	}
	metrics.IncCompletion(metrics.SourceReconcile)
	outcome.Notified = true

	var deleted bool
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		var delErr error
		deleted, delErr = r.counters.CompareAndDelete(ctx, key, outcome.Count)
		return delErr
	}); err != nil {
		return r.fail(ctx, outcome, err)
	}
	if !deleted {
		return r.notDeleted(ctx, outcome, seen)
	}
	if seen != nil {
		delete(seen, key)
	}

	outcome.Action = ActionNotified
	r.logger.InfowCtx(ctx, "Campaign completed by reconciler",
		"campaign_id", campaignID,
		"count", outcome.Count,
		"expected_total", outcome.ExpectedTotal,
	)
	return outcome
}

// notDeleted tells a counter that moved during notification from one that
// another instance already cleared.
func (r *Reconciler) notDeleted(ctx context.Context, outcome Outcome, seen map[string]int64) Outcome {
	key, campaignID := outcome.Key, outcome.CampaignID

	var found bool
	if err := r.withTimeout(ctx, func(ctx context.Context) error {
		var peekErr error
		_, found, peekErr = r.counters.Peek(ctx, key)
		return peekErr
	}); err != nil {
		return r.fail(ctx, outcome, err)
	}
	if !found {
		if seen != nil {
			delete(seen, key)
		}
		outcome.Action = ActionGone
		r.logger.InfowCtx(ctx, "Counter already cleared after reconcile notification",
			"campaign_id", campaignID,
			"counter_key", key,
		)
		return outcome
	}

	outcome.Action = ActionMoved
	r.logger.WarnwCtx(ctx, "Counter moved after reconcile notification, left in place",
		"campaign_id", campaignID,
		"counter_key", key,
		"count", outcome.Count,
	)
	return outcome
}

func (r *Reconciler) fail(ctx context.Context, outcome Outcome, err error) Outcome {
	outcome.Action = ActionError
	outcome.Error = err.Error()
	metrics.IncStageFailure(apperrors.StageReconcile)
	r.logger.ErrorwCtx(ctx, "Reconcile failed for counter",
		"campaign_id", outcome.CampaignID,
		"counter_key", outcome.Key,
		"error", err,
	)
	return outcome
}

func (r *Reconciler) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.stageTimeout)
	defer cancel()
	return fn(ctx)
}
