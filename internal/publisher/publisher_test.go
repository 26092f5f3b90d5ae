package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugetang/redharvest/internal/harvest"
	"github.com/sugetang/redharvest/internal/publisher/memory"
)

func TestNotifierPublishesSessionSummary(t *testing.T) {
	pub := memory.New()
	notifier := NewNotifier(pub)

	err := notifier.SessionCompleted(context.Background(), harvest.Result{
		SessionID:    "sess-1",
		SearchTerm:   "food",
		StopReason:   harvest.StopQuotaReached,
		Processed:    20,
		ArtifactPath: "data/harvest/food.jsonl",
	})
	require.NoError(t, err)

	payloads := pub.Payloads()
	require.Len(t, payloads, 1)
	event, ok := payloads[0].(SessionEvent)
	require.True(t, ok)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, "quota_reached", event.StopReason)
	assert.Equal(t, 20, event.Processed)
}
