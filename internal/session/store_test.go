package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, observability.NewLogger("test")), mr
}

func TestRedisStore_CurrentEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	sess, err := store.Current(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, sess, "absence of a session must read as nil, not an error")
}

func TestRedisStore_PublishRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := &models.Session{
		ID:        "abc",
		ShowName:  "Morning Mix",
		AudioURL:  "https://cdn.example.com/mix.mp3",
		StartedAt: 1_700_000_000_000,
		Duration:  3600,
		IsActive:  true,
		Version:   1,
	}
	require.NoError(t, store.Publish(ctx, in))

	out, err := store.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, *in, *out)
}

func TestRedisStore_StaleVersionRejected(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, &models.Session{ID: "new", Version: 5}))

	err := store.Publish(ctx, &models.Session{ID: "old", Version: 5})
	assert.ErrorIs(t, err, ErrStaleWrite)

	err = store.Publish(ctx, &models.Session{ID: "older", Version: 4})
	assert.ErrorIs(t, err, ErrStaleWrite)

	// The stored record is untouched.
	out, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", out.ID)

	assert.NoError(t, store.Publish(ctx, &models.Session{ID: "newer", Version: 6}))
}

func TestRedisStore_WatchDeliversUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	updates, cancel := store.Watch(ctx)
	defer cancel()

	// Subscription setup races with the publish; give it a moment.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Publish(ctx, &models.Session{ID: "s1", Version: 1}))

	select {
	case got := <-updates:
		assert.Equal(t, "s1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no session update delivered")
	}
}

func TestRedisStore_ClockOffset(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ms, err := store.ClockOffset(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, ms, "no estimate defaults to zero offset")

	require.NoError(t, store.PublishClockOffset(ctx, -1250))
	ms, err = store.ClockOffset(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, -1250, ms)
}

func TestRedisAnnouncer_AppendAndReset(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	a := NewRedisAnnouncer(rdb)
	ctx := context.Background()

	require.NoError(t, a.Announce(ctx, "show is live"))
	require.NoError(t, a.Announce(ctx, "show has ended"))

	lines, err := rdb.LRange(ctx, "radio:chat", 0, -1).Result()
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "show is live")

	require.NoError(t, a.Reset(ctx))
	n, err := rdb.LLen(ctx, "radio:chat").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
