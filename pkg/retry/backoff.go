package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// withDefaults fills zero fields from DefaultPolicy. MaxElapsedTime stays
// zero when unset, meaning attempts alone bound the retry.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// NewBackOff returns a jittered exponential schedule bounded by the policy's
// attempts, its elapsed-time budget and ctx.
func (p Policy) NewBackOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime
	exp.Reset()

	return backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)),
		ctx,
	)
}

// Attempts reports how many times fn may run under p.
func (p Policy) Attempts() int {
	return p.withDefaults().MaxAttempts
}
