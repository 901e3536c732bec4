// Package store persists campaign messages. Writes are append-only.
package store

import (
	"context"

	"campaignd/pkg/models"
)

type Repository interface {
	Save(ctx context.Context, msg *models.Message) error
	// ExpectedTotal returns the total declared by the most recently stored
	// message of the campaign.
	ExpectedTotal(ctx context.Context, campaignID string) (int64, bool, error)
	CountByCampaign(ctx context.Context, campaignID string) (int64, error)
}
