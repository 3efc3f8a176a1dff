package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGetDel(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, store.Del(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestMemorySetNX(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	won, err := store.SetNX(ctx, "lock", "a", 0)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.SetNX(ctx, "lock", "b", 0)
	require.NoError(t, err)
	assert.False(t, won)

	got, _ := store.Get(ctx, "lock")
	assert.Equal(t, "a", got)
}

func TestMemoryExpiry(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "lease", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, err := store.Get(ctx, "lease")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	// An expired key no longer blocks SetNX.
	won, err := store.SetNX(ctx, "lease", "v2", 0)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemoryIncr(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	n, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryListTrimKeepsNewest(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.RPush(ctx, "list", "a", "b", "c", "d"))
	require.NoError(t, store.LTrim(ctx, "list", 2))

	items, err := store.LRange(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, items)

	n, err := store.LLen(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryHash(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "h", "f1", "v1"))
	require.NoError(t, store.HSet(ctx, "h", "f2", "v2"))

	got, err := store.HGet(ctx, "h", "f1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	all, err := store.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.HDel(ctx, "h", "f1"))
	_, err = store.HGet(ctx, "h", "f1")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "player:alice", kv.PlayerLockKey("alice"))
	assert.Equal(t, "session_by_summoner:alice", kv.SessionBySummonerKey("alice"))
	assert.Equal(t, "custom_session_mapping:player_alice", kv.CustomSessionKey("player_alice"))
	assert.Equal(t, "pending:player_alice", kv.PendingEventsKey("player_alice"))
	assert.Equal(t, "match:42:owner", kv.MatchOwnerKey(42))
	assert.Equal(t, "backend:b1:alive", kv.BackendAliveKey("b1"))
	assert.Equal(t, "queue:euw", kv.QueuePoolKey("euw"))
	assert.Equal(t, "accept:42", kv.AcceptStateKey(42))
	assert.Equal(t, "decline_count:alice", kv.DeclineCountKey("alice"))
	assert.Equal(t, "match_found_ack:42:alice", kv.AckKey("match_found", 42, "alice"))
}
