package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egypcoder/grouptherapy-radio/internal/catalog"
	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/player"
	"github.com/egypcoder/grouptherapy-radio/internal/presence"
	"github.com/egypcoder/grouptherapy-radio/internal/schedule"
	"github.com/egypcoder/grouptherapy-radio/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubShowRepo struct {
	mu    sync.Mutex
	shows []models.Show
}

func (r *stubShowRepo) ListPublished(context.Context) ([]models.Show, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Show, len(r.shows))
	copy(out, r.shows)
	return out, nil
}

func (r *stubShowRepo) GetShow(_ context.Context, id uint) (*models.Show, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.shows {
		if r.shows[i].ID == id {
			return &r.shows[i], nil
		}
	}
	return nil, models.NewNotFoundError("show", "id")
}

type memHistory struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	failWith error
}

func (h *memHistory) Append(_ context.Context, e *models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWith != nil {
		return h.failWith
	}
	h.entries = append(h.entries, *e)
	return nil
}

func (h *memHistory) Recent(_ context.Context, n int) ([]models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (h *memHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

type env struct {
	eng    *Engine
	sched  *clock.ManualScheduler
	shared *clock.SharedClock
	audio  *player.SimulatedAudio
	repo   *stubShowRepo
	hist   *memHistory
	store  *session.RedisStore
	bc     *session.Broadcaster
	rdb    *redis.Client
}

var testStart = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T, withStore bool) *env {
	t.Helper()
	logger := discardLogger()
	sched := clock.NewManual(testStart)
	shared := clock.NewShared(sched)
	audio := player.NewSimulatedAudio(sched)
	syncer := player.NewSynchronizer(audio, shared, logger)
	repo := &stubShowRepo{}
	poller := catalog.NewPoller(repo, sched, logger)
	hist := &memHistory{}

	e := &env{
		sched:  sched,
		shared: shared,
		audio:  audio,
		repo:   repo,
		hist:   hist,
	}

	var (
		store session.Store
		bc    *session.Broadcaster
		rdb   *redis.Client
	)
	if withStore {
		mr := miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		e.store = session.NewRedisStore(rdb, logger)
		store = e.store
		bc = session.NewBroadcaster(e.store, nil, shared, logger)
		e.bc = bc
		e.rdb = rdb
	}

	e.eng = New(Deps{
		Store:        store,
		Broadcaster:  bc,
		Poller:       poller,
		Resolver:     schedule.NewResolver("https://cdn.example.com/anthems.mp3"),
		Synchronizer: syncer,
		Audio:        audio,
		Presence:     presence.NewCounter(rdb, sched, sched, 3, logger),
		History:      hist,
		Shared:       shared,
		Scheduler:    sched,
		Logger:       logger,
	})
	t.Cleanup(e.eng.Stop)
	return e
}

func TestEngine_NaturalEndRecordsHistoryAndEndsSession(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	_, err := e.bc.Start(ctx, session.StartInput{
		ShowID:   7,
		ShowName: "Deep Sessions",
		HostName: "Maya",
		AudioURL: "https://cdn.example.com/deep.mp3",
		Duration: 60,
	})
	require.NoError(t, err)

	e.audio.SetSourceDuration(60)
	e.eng.Start(ctx)
	e.eng.EnableAutoPlay()
	require.True(t, e.eng.State(ctx).IsPlaying)

	e.sched.Advance(61 * time.Second)

	cur, err := e.store.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.False(t, cur.IsActive)
	assert.Equal(t, int64(2), cur.Version)

	require.Equal(t, 1, e.hist.count(), "exactly one ledger entry for the finished stream")
	entry, err := e.hist.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Deep Sessions", entry[0].Title)
	assert.Equal(t, "Maya", entry[0].Artist)
	if assert.NotNil(t, entry[0].ShowID) {
		assert.Equal(t, uint(7), *entry[0].ShowID)
	}
}

func TestEngine_ReplaySessionRestartsFromTop(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	started, err := e.bc.Start(ctx, session.StartInput{
		ShowName:      "All Night Loop",
		AudioURL:      "https://cdn.example.com/loop.mp3",
		Duration:      30,
		ReplayEnabled: true,
	})
	require.NoError(t, err)

	e.audio.SetSourceDuration(30)
	e.eng.Start(ctx)
	e.eng.EnableAutoPlay()

	e.sched.Advance(31 * time.Second)

	cur, err := e.store.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, cur.IsActive, "replaying session stays live")
	assert.Equal(t, started.ID, cur.ID)
	assert.Greater(t, cur.StartedAt, started.StartedAt, "restart resets the shared start instant")
	assert.Equal(t, int64(2), cur.Version)
	assert.Zero(t, e.hist.count(), "replays are not recorded until the session truly ends")
}

func TestEngine_HistoryFailureDoesNotBlockSessionEnd(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.hist.failWith = assert.AnError

	_, err := e.bc.Start(ctx, session.StartInput{
		ShowName: "Fragile",
		AudioURL: "https://cdn.example.com/f.mp3",
		Duration: 10,
	})
	require.NoError(t, err)

	e.audio.SetSourceDuration(10)
	e.eng.Start(ctx)
	e.eng.EnableAutoPlay()

	e.sched.Advance(11 * time.Second)

	cur, err := e.store.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.False(t, cur.IsActive, "session ends even when the ledger write fails")
}

func TestEngine_RotationAdvancesThroughDay(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	day := int(testStart.Weekday())
	e.repo.shows = []models.Show{
		{ID: 1, Title: "Morning Loop", RecordedURL: "https://cdn.example.com/m.mp3", DayOfWeek: &day, Repeat24h: true, Published: true},
		{ID: 2, Title: "Evening Loop", RecordedURL: "https://cdn.example.com/e.mp3", DayOfWeek: &day, Repeat24h: true, Published: true},
	}

	e.audio.SetSourceDuration(30)
	e.eng.Start(ctx)

	st := e.eng.State(ctx)
	require.True(t, st.HasScheduledShow)
	require.NotNil(t, st.CurrentShow)
	assert.Equal(t, "Morning Loop", st.CurrentShow.Title)

	e.eng.Play(ctx)
	require.True(t, e.eng.State(ctx).IsPlaying)

	// The first loop ends; the rotation moves on and the next show starts
	// without another user gesture.
	e.sched.Advance(31 * time.Second)

	st = e.eng.State(ctx)
	require.NotNil(t, st.CurrentShow)
	assert.Equal(t, "Evening Loop", st.CurrentShow.Title)
	assert.True(t, st.IsPlaying)

	// Wrap back around to the first show.
	e.sched.Advance(31 * time.Second)
	st = e.eng.State(ctx)
	require.NotNil(t, st.CurrentShow)
	assert.Equal(t, "Morning Loop", st.CurrentShow.Title)
}

func TestEngine_UpcomingShowExposesCountdown(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	day := int(testStart.Weekday())
	start, end := "14:00", "15:00"
	e.repo.shows = []models.Show{
		{ID: 1, Title: "Afternoon Special", RecordedURL: "https://cdn.example.com/a.mp3", DayOfWeek: &day, StartTime: &start, EndTime: &end, Published: true},
	}

	e.eng.Start(ctx)

	st := e.eng.State(ctx)
	require.True(t, st.HasScheduledShow)
	require.NotNil(t, st.CurrentShow)
	assert.Equal(t, "Afternoon Special", st.CurrentShow.Title)
	assert.InDelta(t, 7200, st.CountdownSeconds, 1)
	assert.False(t, st.IsLive)
}

func TestEngine_FallbackAudioWhenNothingScheduled(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	e.eng.Start(ctx)

	st := e.eng.State(ctx)
	assert.False(t, st.HasScheduledShow)
	assert.True(t, st.HasAudioURL)
	require.NotNil(t, st.CurrentTrack)
	assert.Equal(t, "https://cdn.example.com/anthems.mp3", st.CurrentTrack.AudioURL)
}

func TestEngine_PresenceFollowsPlayPause(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	e.eng.Start(ctx)

	e.eng.Play(ctx)
	assert.Equal(t, 1, e.eng.State(ctx).ListenerCount)

	// A second listener elsewhere.
	counter := presence.NewCounter(e.rdb, e.sched, e.sched, 1, discardLogger())
	leave := counter.Join(ctx)
	assert.Equal(t, 2, e.eng.State(ctx).ListenerCount)

	e.eng.Pause()
	assert.Equal(t, 1, e.eng.State(ctx).ListenerCount, "our entry removed, the other remains")

	leave()
	assert.Equal(t, 1, e.eng.State(ctx).ListenerCount, "count floors at one")
}

func TestEngine_ClockOffsetShiftsSharedTimeline(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	require.NoError(t, e.store.PublishClockOffset(ctx, 1500))
	e.eng.Start(ctx)

	assert.Equal(t, int64(1500), e.shared.Offset())
}

func TestEngine_PlayRecentStartsOnDemand(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	e.eng.Start(ctx)

	err := e.eng.PlayRecent(ctx, models.HistoryEntry{Title: "Archive", AudioURL: ""})
	assert.Error(t, err, "no recorded audio")

	e.audio.SetSourceDuration(120)
	err = e.eng.PlayRecent(ctx, models.HistoryEntry{
		Title:    "Archive",
		AudioURL: "https://cdn.example.com/archive.mp3",
		Duration: 120,
	})
	require.NoError(t, err)
	assert.True(t, e.eng.State(ctx).IsPlaying)

	// On-demand playback allows seeking.
	require.NoError(t, e.eng.Seek(45))
	assert.InDelta(t, 45, e.eng.State(ctx).Progress, 0.01)
}

func TestEngine_PlayRecentFallsBackToShowRecording(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	e.repo.shows = []models.Show{
		{ID: 9, Title: "Archive Hour", RecordedURL: "https://cdn.example.com/archive-hour.mp3", Published: true},
	}
	e.eng.Start(ctx)

	// The ledger entry predates direct audio URLs but still references the
	// show, whose recording is playable.
	showID := uint(9)
	e.audio.SetSourceDuration(90)
	require.NoError(t, e.eng.PlayRecent(ctx, models.HistoryEntry{
		Title:    "Archive Hour",
		ShowID:   &showID,
		Duration: 90,
	}))
	assert.True(t, e.eng.State(ctx).IsPlaying)

	// A reference to a show the catalog no longer carries is an error.
	missing := uint(404)
	err := e.eng.PlayRecent(ctx, models.HistoryEntry{Title: "Gone", ShowID: &missing})
	assert.Error(t, err)
}

func TestEngine_ForceSyncCorrectsDriftImmediately(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	_, err := e.bc.Start(ctx, session.StartInput{
		ShowName: "Deep Sessions",
		AudioURL: "https://cdn.example.com/deep.mp3",
		Duration: 300,
	})
	require.NoError(t, err)

	e.audio.SetSourceDuration(300)
	e.eng.Start(ctx)
	e.eng.EnableAutoPlay()
	require.True(t, e.eng.State(ctx).IsPlaying)

	// Knock the backend far off the shared position, then resync without
	// waiting for the next tick.
	e.audio.Seek(200)
	e.eng.SyncToSharedTime()

	st := e.eng.State(ctx)
	assert.InDelta(t, 0, st.Progress, 0.01)
	assert.True(t, st.IsSynced)
}

func TestEngine_NaturalEndCreditsUnknownHost(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	_, err := e.bc.Start(ctx, session.StartInput{
		ShowName: "Anonymous Hour",
		AudioURL: "https://cdn.example.com/anon.mp3",
		Duration: 60,
	})
	require.NoError(t, err)

	e.audio.SetSourceDuration(60)
	e.eng.Start(ctx)
	e.eng.EnableAutoPlay()

	e.sched.Advance(61 * time.Second)

	require.Equal(t, 1, e.hist.count())
	entries, err := e.hist.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", entries[0].Artist)
}
