package player

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSync(t *testing.T) (*Synchronizer, *SimulatedAudio, *clock.MockClock, *clock.SharedClock) {
	t.Helper()
	mock := clock.NewMock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	shared := clock.NewShared(mock)
	audio := NewSimulatedAudio(mock)
	sync := NewSynchronizer(audio, shared, discardLogger())
	return sync, audio, mock, shared
}

func liveSession(startedAt int64, duration float64, replay bool) *models.Session {
	return &models.Session{
		ID:            uuid.NewString(),
		ShowName:      "Anjunadeep Hour",
		HostName:      "James",
		AudioURL:      "https://cdn.example.com/live.mp3",
		StartedAt:     startedAt,
		Duration:      duration,
		ReplayEnabled: replay,
		IsActive:      true,
		Version:       1,
	}
}

func TestSynchronizer_JoinTenSecondsLate(t *testing.T) {
	sync, audio, mock, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	// Session started 10s before this listener bound to it.
	sess := liveSession(shared.NowMillis()-10_000, 3600, false)
	sync.Play()
	sync.Bind(sess)

	assert.InDelta(t, 10.0, audio.Position(), 0.01)

	// Local playback keeps pace with the shared clock afterwards.
	mock.Advance(20 * time.Second)
	assert.InDelta(t, 30.0, audio.Position(), 0.01)
}

func TestSynchronizer_ReplayWrapsPastDuration(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	// One hour and five seconds in, a replaying show is 5s into its loop.
	sess := liveSession(shared.NowMillis()-3_605_000, 3600, true)
	sync.Play()
	sync.Bind(sess)

	assert.InDelta(t, 5.0, audio.Position(), 0.01)
}

func TestSynchronizer_LoadedMetadataCorrectsReplayDuration(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(60)

	// The catalog listed 100s but the recording is really 60s. Once
	// metadata loads, replay wrapping follows the real duration: 70s in
	// is 10s into the second loop, not 70s into a 100s one.
	sess := liveSession(shared.NowMillis()-70_000, 100, true)
	sync.Play()
	sync.Bind(sess)

	assert.InDelta(t, 10.0, audio.Position(), 0.01)
	// The shared record stays untouched; only the local view is corrected.
	assert.InDelta(t, 100.0, sess.Duration, 0.001)
}

func TestSynchronizer_SmallDriftLeftAlone(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	sess := liveSession(shared.NowMillis()-100_000, 3600, false)
	sync.Play()
	sync.Bind(sess)

	// Nudge the backend inside the tolerance band and reconcile.
	audio.Seek(101.5)
	sync.SyncToSharedTime()
	assert.InDelta(t, 101.5, audio.Position(), 0.01, "drift under threshold is not corrected")

	// Push it past the threshold; the next pass snaps back.
	audio.Seek(110)
	sync.SyncToSharedTime()
	assert.InDelta(t, 100.0, audio.Position(), 0.01)
}

func TestSynchronizer_ReconcileIdempotentWhenInSync(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	sess := liveSession(shared.NowMillis()-50_000, 3600, false)
	sync.Play()
	sync.Bind(sess)

	before := audio.Position()
	for i := 0; i < 5; i++ {
		sync.SyncToSharedTime()
	}
	assert.InDelta(t, before, audio.Position(), 0.01)
}

func TestSynchronizer_ExpectedClampedToAudioDuration(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	// Non-replay session whose elapsed time exceeds the file length.
	sess := liveSession(shared.NowMillis()-4_000_000, 3600, false)
	sync.Play()
	sync.Bind(sess)

	assert.InDelta(t, 3600.0, audio.Position(), 0.01)
}

func TestSynchronizer_FutureStartHoldsAtZero(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	sess := liveSession(shared.NowMillis()+30_000, 3600, false)
	sync.Play()
	sync.Bind(sess)

	assert.InDelta(t, 0.0, audio.Position(), 0.01)
}

func TestSynchronizer_RequestPlayGatedUntilAutoplay(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	sess := liveSession(shared.NowMillis()-10_000, 3600, false)
	sync.Bind(sess)
	sync.RequestPlay()

	assert.False(t, sync.Snapshot().IsPlaying, "no user gesture, no autoplay: stays paused")

	// Granting autoplay honors the pending request.
	sync.EnableAutoPlay()
	assert.True(t, sync.Snapshot().IsPlaying)
	assert.InDelta(t, 10.0, audio.Position(), 0.01)
}

func TestSynchronizer_SeekRejectedDuringLiveSession(t *testing.T) {
	sync, audio, _, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	sess := liveSession(shared.NowMillis()-10_000, 3600, false)
	sync.Play()
	sync.Bind(sess)

	err := sync.Seek(500)
	require.Error(t, err)
	assert.InDelta(t, 10.0, audio.Position(), 0.01, "position unchanged")
}

func TestSynchronizer_SeekAllowedOnDemand(t *testing.T) {
	sync, audio, _, _ := newTestSync(t)
	audio.SetSourceDuration(1800)

	sync.PlayOnDemand("https://cdn.example.com/archive/ep12.mp3", 1800)
	require.NoError(t, sync.Seek(600))
	assert.InDelta(t, 600.0, audio.Position(), 0.01)

	err := sync.Seek(math.NaN())
	assert.Error(t, err)
}

func TestSynchronizer_BufferingFlagFollowsAudioEvents(t *testing.T) {
	sync, _, _, shared := newTestSync(t)

	sess := liveSession(shared.NowMillis(), 3600, false)
	sync.Play()
	sync.Bind(sess)

	sync.HandleAudioEvent(EventWaiting)
	assert.True(t, sync.Snapshot().IsBuffering)

	sync.HandleAudioEvent(EventCanPlay)
	assert.False(t, sync.Snapshot().IsBuffering)
}

func TestSynchronizer_EndedFiresCallbackOnce(t *testing.T) {
	sync, audio, mock, shared := newTestSync(t)
	audio.SetSourceDuration(60)

	var endedCount int
	sync.OnEnded(func() { endedCount++ })

	sess := liveSession(shared.NowMillis(), 60, false)
	sync.Play()
	sync.Bind(sess)

	mock.Advance(61 * time.Second)
	audio.Tick()
	assert.Equal(t, 1, endedCount)
	assert.False(t, sync.Snapshot().IsPlaying)

	// A second tick with playback stopped does not re-fire.
	audio.Tick()
	assert.Equal(t, 1, endedCount)
}

func TestSynchronizer_PauseStopsPositionAndClearsSync(t *testing.T) {
	sync, audio, mock, shared := newTestSync(t)
	audio.SetSourceDuration(3600)

	sess := liveSession(shared.NowMillis()-10_000, 3600, false)
	sync.Play()
	sync.Bind(sess)
	require.True(t, sync.Snapshot().IsSynced)

	sync.Pause()
	at := audio.Position()
	mock.Advance(30 * time.Second)
	assert.InDelta(t, at, audio.Position(), 0.01)
	assert.False(t, sync.Snapshot().IsSynced)
}

func TestSynchronizer_VolumeClamped(t *testing.T) {
	sync, _, _, _ := newTestSync(t)

	sync.SetVolume(1.7)
	assert.Equal(t, 1.0, sync.Snapshot().Volume)
	sync.SetVolume(-0.2)
	assert.Equal(t, 0.0, sync.Snapshot().Volume)
	sync.SetVolume(0.35)
	assert.Equal(t, 0.35, sync.Snapshot().Volume)
}
