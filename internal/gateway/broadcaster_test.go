package gateway_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster() (*gateway.Broadcaster, *session.Outbox, kv.Store) {
	store := kv.NewMemory()
	var hub *gateway.Hub
	registry := session.NewRegistry(store, session.LiveFunc(func(id string) bool {
		return hub != nil && hub.Has(id)
	}), time.Minute)
	hub = gateway.NewHub(registry)
	outbox := session.NewOutbox(store, 100)
	return gateway.NewBroadcaster(hub, registry, outbox), outbox, store
}

func TestBroadcastQueuesForOfflinePlayers(t *testing.T) {
	broadcaster, outbox, _ := newTestBroadcaster()
	ctx := context.Background()

	event := gateway.NewEvent(gateway.TypeMatchFound, map[string]any{"matchId": 7})
	require.NoError(t, broadcaster.Broadcast(ctx, []string{"alice", "ben"}, event))

	for _, name := range []string{"alice", "ben"} {
		events, err := outbox.GetPendingEvents(ctx, "player_"+name)
		require.NoError(t, err)
		require.Len(t, events, 1, "offline %s must get a queued copy", name)
		assert.Equal(t, gateway.TypeMatchFound, events[0].Type)

		// The queued payload is the fully personalized frame, ready to send
		// verbatim on reconnect.
		var frame map[string]any
		require.NoError(t, json.Unmarshal(events[0].Payload, &frame))
		assert.Equal(t, name, frame["targetSummoner"])
	}
}

func TestBroadcastSkipsBots(t *testing.T) {
	broadcaster, outbox, _ := newTestBroadcaster()
	ctx := context.Background()

	event := gateway.NewEvent(gateway.TypeDraftUpdated, map[string]any{"matchId": 7})
	require.NoError(t, broadcaster.Broadcast(ctx, []string{"bot1", "bot_alpha"}, event))

	for _, name := range []string{"bot1", "bot_alpha"} {
		events, err := outbox.GetPendingEvents(ctx, "player_"+name)
		require.NoError(t, err)
		assert.Empty(t, events, "bots must never accumulate pending events")
	}
}

func TestSendToPlayerQueuesWhenSessionMappingIsStale(t *testing.T) {
	broadcaster, outbox, store := newTestBroadcaster()
	ctx := context.Background()

	// A summoner index pointing at a session id the hub does not know is a
	// stale mapping; the event must fall back to the outbox.
	require.NoError(t, store.Set(ctx, kv.SessionBySummonerKey("alice"), "gone-session", time.Minute))

	event := gateway.NewEvent(gateway.TypeGameStarted, map[string]any{"matchId": 7})
	require.NoError(t, broadcaster.SendToPlayer(ctx, "alice", event))

	events, err := outbox.GetPendingEvents(ctx, "player_alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, gateway.TypeGameStarted, events[0].Type)
}
