package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotGuardReplaceLeavesSingleSession(t *testing.T) {
	store, rdb, mr := newSessionStoreTest(t)
	guard := NewBotGuard(store)
	ctx := context.Background()

	removed, err := guard.Replace(ctx, "bot", "b-1", "t-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(ctx, "bot", "b-1", fmt.Sprintf("stray-%d", i), time.Hour))
	}
	// Sessions of another bot and of a user with the same id stay untouched.
	require.NoError(t, store.Put(ctx, "bot", "b-10", "t-x", time.Hour))
	require.NoError(t, store.Put(ctx, "user", "b-1", "t-y", time.Hour))

	removed, err = guard.Replace(ctx, "bot", "b-1", "t-2", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	n, err := store.Count(ctx, "bot", "b-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	raw, err := rdb.Get(ctx, "SESSION:bot:b-1:t-2").Result()
	require.NoError(t, err)
	assert.JSONEq(t, `{"uid":"b-1"}`, raw)
	assert.Equal(t, 24*time.Hour, mr.TTL("SESSION:bot:b-1:t-2"))

	assert.True(t, mr.Exists("SESSION:bot:b-10:t-x"))
	assert.True(t, mr.Exists("SESSION:user:b-1:t-y"))
}

func TestBotGuardBatchesLargeFanOut(t *testing.T) {
	store, rdb, _ := newSessionStoreTest(t)
	guard := NewBotGuard(store)
	guard.batchSize = 7
	ctx := context.Background()

	pipe := rdb.Pipeline()
	for i := 0; i < 50; i++ {
		pipe.Set(ctx, store.Key("bot", "b-1", fmt.Sprintf("old-%d", i)), `{"uid":"b-1"}`, time.Hour)
	}
	_, err := pipe.Exec(ctx)
	require.NoError(t, err)

	removed, err := guard.Replace(ctx, "bot", "b-1", "fresh", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 50, removed)

	n, err := store.Count(ctx, "bot", "b-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBotGuardRejectsInvalidTTL(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	_, err := NewBotGuard(store).Replace(context.Background(), "bot", "b-1", "t", 0)
	require.ErrorIs(t, err, ErrInvalidTTL)
}
