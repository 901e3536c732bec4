// Package counter holds the per-campaign progress counters shared by every
// consumer instance.
package counter

import (
	"context"
	"strings"

	"campaignd/internal/constants"
)

// Store is a shared, atomically updated progress counter keyed by campaign.
type Store interface {
	// Increment atomically adds one, creating the key at zero, and returns the
	// post-increment value.
	Increment(ctx context.Context, key string) (int64, error)
	// Delete removes key. Deleting an absent key reports false with no error.
	Delete(ctx context.Context, key string) (bool, error)
	// Peek reads the current progress without modifying it.
	Peek(ctx context.Context, key string) (int64, bool, error)
	// AddMember adds member to the set at key and returns the set's
	// cardinality together with whether member was new. Both happen in one
	// transaction.
	AddMember(ctx context.Context, key, member string) (int64, bool, error)
	// CompareAndDelete removes key only if its progress still equals expected.
	CompareAndDelete(ctx context.Context, key string, expected int64) (bool, error)
	// Scan lists keys matching pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
}

func CountKey(campaignID string) string {
	return constants.CounterKeyPrefix + campaignID + constants.CounterKeySuffix
}

func MembersKey(campaignID string) string {
	return constants.CounterKeyPrefix + campaignID + constants.MembersKeySuffix
}

// KeyFor returns the counter key used by the given counter mode.
func KeyFor(mode, campaignID string) string {
	if mode == constants.CounterModeDistinct {
		return MembersKey(campaignID)
	}
	return CountKey(campaignID)
}

func IsMembersKey(key string) bool {
	return strings.HasSuffix(key, constants.MembersKeySuffix)
}

// CampaignFromKey extracts the campaign id from a counter or members key.
func CampaignFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, constants.CounterKeyPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(key, constants.CounterKeyPrefix)
	for _, suffix := range []string{constants.CounterKeySuffix, constants.MembersKeySuffix} {
		if strings.HasSuffix(rest, suffix) {
			id := strings.TrimSuffix(rest, suffix)
			return id, id != ""
		}
	}
	return "", false
}
