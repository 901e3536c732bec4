package store

import (
	"context"

	"campaignd/pkg/circuitbreaker"
	"campaignd/pkg/models"
)

type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, name string, settings circuitbreaker.Settings) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.New(name, settings),
	}
}

func (r *CircuitBreakerRepository) Save(ctx context.Context, msg *models.Message) error {
	_, err := circuitbreaker.Execute(ctx, r.cb, func() (struct{}, error) {
		return struct{}{}, r.repo.Save(ctx, msg)
	})
	return err
}

type totalResult struct {
	total int64
	found bool
}

func (r *CircuitBreakerRepository) ExpectedTotal(ctx context.Context, campaignID string) (int64, bool, error) {
	res, err := circuitbreaker.Execute(ctx, r.cb, func() (totalResult, error) {
		total, found, err := r.repo.ExpectedTotal(ctx, campaignID)
		return totalResult{total: total, found: found}, err
	})
	return res.total, res.found, err
}

func (r *CircuitBreakerRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() (int64, error) {
		return r.repo.CountByCampaign(ctx, campaignID)
	})
}

func (r *CircuitBreakerRepository) State() string {
	return r.cb.State()
}
