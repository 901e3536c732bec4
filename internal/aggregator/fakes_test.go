package aggregator

import (
	"context"
	"errors"
	"sync"

	"campaignd/internal/counter"
	"campaignd/pkg/models"
)

type fakeRepository struct {
	mu      sync.Mutex
	saved   []*models.Message
	saveErr error
}

func (r *fakeRepository) Save(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, msg)
	return nil
}

func (r *fakeRepository) ExpectedTotal(ctx context.Context, campaignID string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.saved) - 1; i >= 0; i-- {
		if r.saved[i].CampaignID == campaignID {
			return r.saved[i].ExpectedTotal, true, nil
		}
	}
	return 0, false, nil
}

func (r *fakeRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.saved {
		if m.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepository) savedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

// faultyCounter wraps a MemoryStore and injects failures per operation.
type faultyCounter struct {
	*counter.MemoryStore
	incrementErr error
	deleteErr    error
	mu           sync.Mutex
	increments   int
}

func (c *faultyCounter) Increment(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	c.increments++
	c.mu.Unlock()
	if c.incrementErr != nil {
		return 0, c.incrementErr
	}
	return c.MemoryStore.Increment(ctx, key)
}

func (c *faultyCounter) AddMember(ctx context.Context, key, member string) (int64, bool, error) {
	c.mu.Lock()
	c.increments++
	c.mu.Unlock()
	if c.incrementErr != nil {
		return 0, false, c.incrementErr
	}
	return c.MemoryStore.AddMember(ctx, key, member)
}

func (c *faultyCounter) Delete(ctx context.Context, key string) (bool, error) {
	if c.deleteErr != nil {
		return false, c.deleteErr
	}
	return c.MemoryStore.Delete(ctx, key)
}

func (c *faultyCounter) incrementCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.increments
}

type fakeNotifier struct {
	mu       sync.Mutex
	calls    []string
	err      error
	blockFor chan struct{}
}

func (n *fakeNotifier) Notify(ctx context.Context, campaignID string) error {
	if n.blockFor != nil {
		select {
		case <-n.blockFor:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, campaignID)
	return n.err
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
