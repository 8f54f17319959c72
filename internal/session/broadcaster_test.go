package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *RedisStore, *clock.MockClock) {
	t.Helper()
	store, _ := newTestStore(t)
	base := clock.NewMock(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	shared := clock.NewShared(base)
	b := NewBroadcaster(store, nil, shared, observability.NewLogger("test"))
	return b, store, base
}

func TestBroadcaster_Start(t *testing.T) {
	b, store, base := newTestBroadcaster(t)
	ctx := context.Background()

	sess, err := b.Start(ctx, StartInput{
		ShowID:        7,
		ShowName:      "Morning Mix",
		HostName:      "DJ A",
		AudioURL:      "https://cdn.example.com/mix.mp3",
		Duration:      3600,
		ReplayEnabled: false,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.IsActive)
	assert.Equal(t, base.Now().UnixMilli(), sess.StartedAt)
	assert.EqualValues(t, 1, sess.Version)

	stored, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, stored.ID)
}

func TestBroadcaster_StartSupersedesActiveSession(t *testing.T) {
	b, store, _ := newTestBroadcaster(t)
	ctx := context.Background()

	first, err := b.Start(ctx, StartInput{ShowName: "A", AudioURL: "u"})
	require.NoError(t, err)
	second, err := b.Start(ctx, StartInput{ShowName: "B", AudioURL: "u"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "a fresh start mints a fresh id")
	assert.Greater(t, second.Version, first.Version)

	stored, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", stored.ShowName)
}

func TestBroadcaster_StartValidation(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	ctx := context.Background()

	_, err := b.Start(ctx, StartInput{AudioURL: "u"})
	assert.Error(t, err)

	_, err = b.Start(ctx, StartInput{ShowName: "A"})
	assert.Error(t, err)

	_, err = b.Start(ctx, StartInput{ShowName: "A", AudioURL: "u", Duration: -1})
	assert.Error(t, err)
}

func TestBroadcaster_RestartResetsStartedAtOnly(t *testing.T) {
	b, _, base := newTestBroadcaster(t)
	ctx := context.Background()

	started, err := b.Start(ctx, StartInput{ShowName: "A", AudioURL: "u", Duration: 60})
	require.NoError(t, err)

	base.Advance(90 * time.Second)
	restarted, err := b.Restart(ctx)
	require.NoError(t, err)

	assert.Equal(t, started.ID, restarted.ID)
	assert.Equal(t, started.AudioURL, restarted.AudioURL)
	assert.Equal(t, started.StartedAt+90_000, restarted.StartedAt)
	assert.True(t, restarted.IsActive)
}

func TestBroadcaster_RestartWithoutSession(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	_, err := b.Restart(context.Background())
	assert.Error(t, err)
}

func TestBroadcaster_EndDeactivates(t *testing.T) {
	b, store, _ := newTestBroadcaster(t)
	ctx := context.Background()

	_, err := b.Start(ctx, StartInput{ShowName: "A", AudioURL: "u"})
	require.NoError(t, err)

	ended, err := b.End(ctx)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)

	stored, err := store.Current(ctx)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "isActive=false means no live broadcast")
}

func TestBroadcaster_EndWithoutSession(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	_, err := b.End(context.Background())
	assert.Error(t, err)
}

func TestSession_ExpectedPosition(t *testing.T) {
	sess := &models.Session{StartedAt: 1_000_000, Duration: 3600, ReplayEnabled: false}

	assert.InDelta(t, 10.0, sess.ExpectedPosition(1_010_000), 1e-9)

	sess.ReplayEnabled = true
	// 3605s elapsed wraps to 5s, not 3605.
	assert.InDelta(t, 5.0, sess.ExpectedPosition(1_000_000+3_605_000), 1e-9)
	// Periodicity: t and t+D agree.
	assert.InDelta(t,
		sess.ExpectedPosition(1_000_000+42_000),
		sess.ExpectedPosition(1_000_000+42_000+3_600_000),
		1e-9)
}
