package counter

import (
	"context"

	"campaignd/pkg/circuitbreaker"
)

// CircuitBreakerStore fails fast once Redis has been failing, instead of
// letting every worker wait out its stage timeout.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Breaker
}

func NewCircuitBreakerStore(store Store, settings circuitbreaker.Settings) *CircuitBreakerStore {
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.New("redis-counter", settings),
	}
}

func (s *CircuitBreakerStore) Increment(ctx context.Context, key string) (int64, error) {
	return circuitbreaker.Execute(ctx, s.cb, func() (int64, error) {
		return s.store.Increment(ctx, key)
	})
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) (bool, error) {
	return circuitbreaker.Execute(ctx, s.cb, func() (bool, error) {
		return s.store.Delete(ctx, key)
	})
}

type peekResult struct {
	n     int64
	found bool
}

func (s *CircuitBreakerStore) Peek(ctx context.Context, key string) (int64, bool, error) {
	res, err := circuitbreaker.Execute(ctx, s.cb, func() (peekResult, error) {
		n, found, err := s.store.Peek(ctx, key)
		return peekResult{n: n, found: found}, err
	})
	return res.n, res.found, err
}

func (s *CircuitBreakerStore) AddMember(ctx context.Context, key, member string) (int64, bool, error) {
	res, err := circuitbreaker.Execute(ctx, s.cb, func() (peekResult, error) {
		n, added, err := s.store.AddMember(ctx, key, member)
		return peekResult{n: n, found: added}, err
	})
	return res.n, res.found, err
}

func (s *CircuitBreakerStore) CompareAndDelete(ctx context.Context, key string, expected int64) (bool, error) {
	return circuitbreaker.Execute(ctx, s.cb, func() (bool, error) {
		return s.store.CompareAndDelete(ctx, key, expected)
	})
}

func (s *CircuitBreakerStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	return circuitbreaker.Execute(ctx, s.cb, func() ([]string, error) {
		return s.store.Scan(ctx, pattern)
	})
}

func (s *CircuitBreakerStore) State() string {
	return s.cb.State()
}
