package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithServiceName(ctx, "campaign-consumer")
	ctx = WithCampaignID(ctx, "camp-1")
	ctx = WithMessageID(ctx, "msg-1")

	assert.Equal(t, []interface{}{
		"message_id", "msg-1",
		"campaign_id", "camp-1",
		"service_name", "campaign-consumer",
	}, GetLogFields(ctx))
	assert.Equal(t, "camp-1", GetCampaignID(ctx))
	assert.Empty(t, GetTraceID(ctx))
}
