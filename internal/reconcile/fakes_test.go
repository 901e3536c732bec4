package reconcile

import (
	"context"
	"errors"
	"sync"

	"campaignd/pkg/models"
)

type fakeRepository struct {
	mu     sync.Mutex
	totals map[string]int64
	err    error
}

func newRepository(totals map[string]int64) *fakeRepository {
	return &fakeRepository{totals: totals}
}

func (r *fakeRepository) Save(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[msg.CampaignID] = msg.ExpectedTotal
	return nil
}

func (r *fakeRepository) ExpectedTotal(ctx context.Context, campaignID string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, false, r.err
	}
	total, ok := r.totals[campaignID]
	return total, ok, nil
}

func (r *fakeRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	return 0, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	calls  []string
	err    error
	onCall func(campaignID string)
}

func (n *fakeNotifier) Notify(ctx context.Context, campaignID string) error {
	n.mu.Lock()
	n.calls = append(n.calls, campaignID)
	hook, err := n.onCall, n.err
	n.mu.Unlock()
	if hook != nil {
		hook(campaignID)
	}
	return err
}

func (n *fakeNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	copy(out, n.calls)
	return out
}

func (n *fakeNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

var errBackend = errors.New("backend unavailable")
