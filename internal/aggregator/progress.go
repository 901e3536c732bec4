package aggregator

import (
	"context"

	"campaignd/internal/counter"
	apperrors "campaignd/pkg/errors"
)

// Progress is a read-only view of one campaign.
type Progress struct {
	CampaignID    string `json:"campaign_id"`
	Mode          string `json:"counter_mode"`
	CounterKey    string `json:"counter_key"`
	Count         int64  `json:"count"`
	Pending       bool   `json:"pending"`
	ExpectedTotal int64  `json:"expected_total,omitempty"`
	TotalKnown    bool   `json:"total_known"`
	Stored        int64  `json:"stored_messages"`
}

// Progress peeks the campaign counter and looks up what the message store
// knows about the campaign. A campaign with neither a counter nor stored
// messages yields ErrNotFound.
func (s *Service) Progress(ctx context.Context, campaignID string) (Progress, error) {
	key := counter.KeyFor(s.mode, campaignID)
	p := Progress{CampaignID: campaignID, Mode: s.mode, CounterKey: key}

	if err := s.runStage(ctx, "peek", func(ctx context.Context) error {
		var err error
		p.Count, p.Pending, err = s.counters.Peek(ctx, key)
		return err
	}); err != nil {
		return p, stageError(apperrors.ErrCounter, apperrors.StageReconcile, campaignID, err)
	}

	if err := s.runStage(ctx, "lookup", func(ctx context.Context) error {
		var err error
		if p.ExpectedTotal, p.TotalKnown, err = s.repo.ExpectedTotal(ctx, campaignID); err != nil {
			return err
		}
		p.Stored, err = s.repo.CountByCampaign(ctx, campaignID)
		return err
	}); err != nil {
		return p, stageError(apperrors.ErrPersistence, apperrors.StageReconcile, campaignID, err)
	}

	if !p.Pending && !p.TotalKnown {
		return p, apperrors.ErrNotFound.WithDetail("campaign_id", campaignID)
	}
	return p, nil
}
