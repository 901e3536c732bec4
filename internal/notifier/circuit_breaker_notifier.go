package notifier

import (
	"context"

	"campaignd/pkg/circuitbreaker"
	apperrors "campaignd/pkg/errors"
)

type CircuitBreakerNotifier struct {
	next Notifier
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerNotifier(next Notifier, settings circuitbreaker.Settings) *CircuitBreakerNotifier {
	return &CircuitBreakerNotifier{
		next: next,
		cb:   circuitbreaker.New("campaign-api", settings),
	}
}

func (n *CircuitBreakerNotifier) Notify(ctx context.Context, campaignID string) error {
	_, err := circuitbreaker.Execute(ctx, n.cb, func() (struct{}, error) {
		return struct{}{}, n.next.Notify(ctx, campaignID)
	})
	if err != nil && !apperrors.IsNotification(err) {
		// Open breaker or cancelled context: still a notification failure.
		return apperrors.ErrNotification.
			WithStage(apperrors.StageNotify).
			WithDetail("campaign_id", campaignID).
			WithCause(err)
	}
	return err
}

func (n *CircuitBreakerNotifier) State() string {
	return n.cb.State()
}
