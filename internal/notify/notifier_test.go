package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

func TestWebhookNotifier_PostsDiscordPayload(t *testing.T) {
	var received discordWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL + "/discord.com/api/webhooks/x")
	err := n.Notify(context.Background(), node.HealthEvent{
		Condition:       node.ForkDetected,
		Layer:           node.L0m,
		NodeIDs:         []string{"n3"},
		Description:     "fork",
		Timestamp:       time.Now(),
		SuggestedAction: node.ScopeIndividualNode,
	})
	require.NoError(t, err)
	require.Len(t, received.Embeds, 1)
	assert.Equal(t, "Fork detected", received.Embeds[0].Title)
}

func TestWebhookNotifier_PostsSlackPayload(t *testing.T) {
	var received slackWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL + "/slack/hooks")
	err := n.Notify(context.Background(), node.HealthEvent{
		Condition: node.SnapshotStall,
		Layer:     node.L0m,
	})
	require.NoError(t, err)
	require.Len(t, received.Attachments, 1)
	assert.Equal(t, "danger", received.Attachments[0].Color)
}

func TestWebhookNotifier_BadStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), node.HealthEvent{Condition: node.ForkDetected})
	assert.Error(t, err)
}

func TestLogNotifier_RecordsEvents(t *testing.T) {
	n := &LogNotifier{}
	require.NoError(t, n.Notify(context.Background(), node.HealthEvent{Condition: node.ForkDetected}))
	assert.Len(t, n.Events, 1)
}
