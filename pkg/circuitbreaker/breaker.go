package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"campaignd/pkg/metrics"
)

const (
	defaultMaxRequests  = 3
	defaultInterval     = time.Minute
	defaultTimeout      = time.Minute
	defaultMinRequests  = 3
	defaultFailureRatio = 0.5
)

// Settings mirrors the circuit_breaker config section. Zero fields take
// the package defaults.
type Settings struct {
	Enabled      bool
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// Breaker guards one backend. A nil *Breaker is valid and passes every call
// straight through, which is what a disabled breaker is.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds the breaker for name, or returns nil when s is disabled.
func New(name string, s Settings) *Breaker {
	if !s.Enabled {
		return nil
	}

	minRequests := s.MinRequests
	if minRequests == 0 {
		minRequests = defaultMinRequests
	}
	ratio := s.FailureRatio
	if ratio <= 0 {
		ratio = defaultFailureRatio
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: orDefault(s.MaxRequests, defaultMaxRequests),
		Interval:    orDefault(s.Interval, defaultInterval),
		Timeout:     orDefault(s.Timeout, defaultTimeout),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		// A caller giving up says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			publishState(name, to)
		},
	})
	publishState(name, cb.State())

	return &Breaker{cb: cb}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Execute runs fn through b and records the outcome. A nil b runs fn directly.
// Calls rejected while open wrap gobreaker.ErrOpenState.
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	b.record(err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("circuit breaker %s: %w", b.cb.Name(), err)
		}
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", b.cb.Name(), result)
	}
	return value, nil
}

// State reports "closed", "half-open", "open", or "disabled" for a nil breaker.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

func (b *Breaker) record(err error) {
	name := b.cb.Name()
	metrics.CircuitBreakerRequests.WithLabelValues(name, b.cb.State().String()).Inc()
	if err != nil {
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}

func publishState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
}
