package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "test:")
	store.now = func() time.Time { return t0 }
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_PutSetsTTLWithGrace(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()
	l := New(store, Options{TTL: 5 * time.Minute})

	action, err := l.Propose(ctx, "s1", blockMode, t0)
	require.NoError(t, err)

	require.True(t, mr.Exists("test:s1"))
	assert.Equal(t, 5*time.Minute+redisGrace, mr.TTL("test:s1"))
	assert.Equal(t, action.Nonce, mr.HGet("test:s1", "nonce"))

	got, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blockMode, got.Intent)
	assert.True(t, action.ExpiresAt.Equal(got.ExpiresAt))
}

func TestRedisStore_TakeComparesNonce(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, PendingAction{
		Session:   "s1",
		Intent:    blockMode,
		Nonce:     "123456",
		CreatedAt: t0,
		ExpiresAt: t0.Add(5 * time.Minute),
	}))

	ok, err := store.Take(ctx, "s1", "654321")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("test:s1"), "a wrong nonce leaves the record")

	ok, err = store.Take(ctx, "s1", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("test:s1"))

	ok, err = store.Take(ctx, "s1", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "a consumed record cannot be taken twice")
}

func TestRedisStore_ConcurrentTakeSingleWinner(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, PendingAction{
		Session:   "s1",
		Intent:    blockMode,
		Nonce:     "123456",
		ExpiresAt: t0.Add(time.Minute),
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Take(ctx, "s1", "123456")
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisStore_ExpiryThroughLedger(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()
	l := New(store, Options{TTL: 5 * time.Minute})

	action, err := l.Propose(ctx, "s1", blockMode, t0)
	require.NoError(t, err)

	// past expires_at but inside the grace window the record still reads
	// as expired rather than missing
	_, err = l.Confirm(ctx, "s1", "confirm "+action.Nonce, t0.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, mr.Exists("test:s1"))

	action, err = l.Propose(ctx, "s1", blockMode, t0)
	require.NoError(t, err)
	mr.FastForward(5*time.Minute + redisGrace + time.Second)
	_, err = l.Confirm(ctx, "s1", "confirm "+action.Nonce, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNoPendingAction)
}

func TestRedisStore_DeleteAndReplace(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	ctx := context.Background()
	l := New(store, Options{})

	first, err := l.Propose(ctx, "s1", blockMode, t0)
	require.NoError(t, err)
	second, err := l.Propose(ctx, "s1", blockMode, t0)
	require.NoError(t, err)

	if first.Nonce != second.Nonce {
		_, err = l.Confirm(ctx, "s1", "confirm "+first.Nonce, t0)
		assert.ErrorIs(t, err, ErrNonceMismatch)
	}

	require.NoError(t, l.Cancel(ctx, "s1"))
	require.NoError(t, l.Cancel(ctx, "s1"))
	_, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}
