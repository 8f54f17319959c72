package player

import (
	"log/slog"
	"math"
	"sync"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

const (
	// DriftThreshold is the maximum divergence, in seconds, between the
	// local audio position and the shared expected position before the
	// synchronizer seeks.
	DriftThreshold = 2.0
	// ReconcileEvery is the reconciliation cadence.
	ReconcileEvery = 5 // seconds
)

// Synchronizer keeps a local Audio backend aligned with the shared playback
// position of the active session. It owns the user-facing playback controls
// (play, pause, volume, on-demand replays) and the drift reconciliation loop
// that corrects the backend whenever it diverges beyond DriftThreshold.
type Synchronizer struct {
	audio  Audio
	shared *clock.SharedClock
	logger *slog.Logger

	mu           sync.Mutex
	session      *models.Session
	playing      bool
	volume       float64
	buffering    bool
	synced       bool
	autoPlay     bool
	pendingPlay  bool
	onDemand     bool
	onDemandDur  float64
	onEnded      func()
	onStateDirty func()
}

func NewSynchronizer(audio Audio, shared *clock.SharedClock, logger *slog.Logger) *Synchronizer {
	s := &Synchronizer{
		audio:  audio,
		shared: shared,
		logger: logger,
		volume: 1.0,
	}
	audio.OnEvent(s.HandleAudioEvent)
	return s
}

// OnEnded registers the callback fired when the bound session's audio reaches
// its natural end. It is invoked outside the synchronizer's lock.
func (s *Synchronizer) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// OnStateDirty registers a callback fired after any state change a consumer
// would want to re-render for. Invoked outside the lock.
func (s *Synchronizer) OnStateDirty(fn func()) {
	s.mu.Lock()
	s.onStateDirty = fn
	s.mu.Unlock()
}

// Bind points the synchronizer at a session. The audio source is loaded and,
// when playback is already open (user pressed play before the session
// arrived, or autoplay is enabled), started and synced immediately.
func (s *Synchronizer) Bind(sess *models.Session) {
	s.mu.Lock()
	s.session = sess
	s.onDemand = false
	s.synced = false
	s.mu.Unlock()

	if sess == nil {
		s.audio.Pause()
		s.notifyDirty()
		return
	}

	s.audio.Load(sess.AudioURL)

	s.mu.Lock()
	shouldPlay := s.playing || s.autoPlay || s.pendingPlay
	s.pendingPlay = false
	s.mu.Unlock()

	if shouldPlay {
		s.startAndSync()
	}
	s.notifyDirty()
}

// Unbind detaches the current session and pauses output.
func (s *Synchronizer) Unbind() {
	s.Bind(nil)
}

// Play is the user gesture: it opens the playback gate and starts the bound
// source at the shared position.
func (s *Synchronizer) Play() {
	s.mu.Lock()
	s.playing = true
	hasSource := s.session != nil || s.onDemand
	s.mu.Unlock()

	if hasSource {
		s.startAndSync()
	}
	s.notifyDirty()
}

func (s *Synchronizer) Pause() {
	s.mu.Lock()
	s.playing = false
	s.synced = false
	s.mu.Unlock()

	s.audio.Pause()
	s.notifyDirty()
}

func (s *Synchronizer) TogglePlay() {
	s.mu.Lock()
	playing := s.playing
	s.mu.Unlock()
	if playing {
		s.Pause()
	} else {
		s.Play()
	}
}

// SetVolume clamps to [0, 1] and forwards to the backend.
func (s *Synchronizer) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	s.audio.SetVolume(v)
	s.notifyDirty()
}

// Seek repositions on-demand playback. Live sessions reject manual seeking;
// every listener hears the same moment.
func (s *Synchronizer) Seek(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return models.NewValidationError("seek position must be finite")
	}
	s.mu.Lock()
	live := s.session != nil && !s.onDemand
	s.mu.Unlock()
	if live {
		return models.NewValidationError("cannot seek during a live session")
	}
	s.audio.Seek(seconds)
	s.notifyDirty()
	return nil
}

// RequestPlay opens the gate only when autoplay has been granted; otherwise
// the request is remembered and honored at the next user gesture or Bind.
func (s *Synchronizer) RequestPlay() {
	s.mu.Lock()
	auto := s.autoPlay
	if !auto {
		s.pendingPlay = true
	}
	s.mu.Unlock()
	if auto {
		s.Play()
	}
}

// EnableAutoPlay marks that playback may start without a user gesture.
func (s *Synchronizer) EnableAutoPlay() {
	s.mu.Lock()
	s.autoPlay = true
	pending := s.pendingPlay
	s.pendingPlay = false
	s.mu.Unlock()
	if pending {
		s.Play()
	}
}

// PlayOnDemand plays a recorded stream from the start, outside any session.
// A later Bind to a live session takes the backend over again.
func (s *Synchronizer) PlayOnDemand(url string, duration float64) {
	s.mu.Lock()
	s.session = nil
	s.onDemand = true
	s.onDemandDur = duration
	s.playing = true
	s.synced = false
	s.mu.Unlock()

	s.audio.Load(url)
	if err := s.audio.Play(); err != nil {
		s.logger.Error("on-demand playback failed", "error", err, "url", url)
	}
	s.notifyDirty()
}

// HandleAudioEvent is the backend's event sink.
func (s *Synchronizer) HandleAudioEvent(ev AudioEvent) {
	var ended func()

	s.mu.Lock()
	switch ev {
	case EventLoadedMetadata:
		// The session carries a nominal duration; once the backend knows
		// the real one, replay wrapping should use it. The shared record
		// is read-only on this side, so correct a private copy.
		if d := s.audio.Duration(); d > 0 && s.session != nil && s.session.Duration != d {
			corrected := *s.session
			corrected.Duration = d
			s.session = &corrected
		}
	case EventWaiting:
		s.buffering = true
	case EventCanPlay, EventPlaying:
		s.buffering = false
	case EventEnded:
		s.playing = false
		s.synced = false
		s.onDemand = false
		ended = s.onEnded
	}
	s.mu.Unlock()

	if ended != nil {
		ended()
	}
	s.notifyDirty()
}

// SyncToSharedTime runs one reconciliation step: compute the expected shared
// position for the bound session and seek the backend if local playback has
// drifted past DriftThreshold. Paused, on-demand, and sessionless states are
// no-ops.
func (s *Synchronizer) SyncToSharedTime() {
	s.mu.Lock()
	sess := s.session
	active := s.playing && sess != nil && !s.onDemand
	s.mu.Unlock()

	if !active {
		observability.ReconciliationsTotal.WithLabelValues("skipped").Inc()
		return
	}

	expected := sess.ExpectedPosition(s.shared.NowMillis())
	if expected < 0 {
		// Session start is still in this listener's future; hold at zero.
		expected = 0
	}
	if d := s.audio.Duration(); d > 0 && expected > d {
		expected = d
	}

	drift := math.Abs(s.audio.Position() - expected)
	if drift > DriftThreshold {
		s.audio.Seek(expected)
		observability.ReconciliationsTotal.WithLabelValues("corrected").Inc()
		observability.DriftCorrectionSeconds.Observe(drift)
		s.logger.Debug("corrected playback drift",
			"drift_seconds", drift, "expected", expected)
	} else {
		observability.ReconciliationsTotal.WithLabelValues("converged").Inc()
	}

	s.mu.Lock()
	s.synced = true
	s.mu.Unlock()
	s.notifyDirty()
}

// startAndSync begins playback and immediately aligns with the shared
// position rather than waiting for the next reconcile tick.
func (s *Synchronizer) startAndSync() {
	if err := s.audio.Play(); err != nil {
		s.logger.Error("audio playback failed", "error", err)
		observability.BackendErrorsTotal.WithLabelValues("audio_play").Inc()
		return
	}
	s.SyncToSharedTime()
}

// Snapshot is the synchronizer's contribution to the engine state.
type Snapshot struct {
	IsPlaying   bool
	Volume      float64
	IsBuffering bool
	IsSynced    bool
	Position    float64
	Duration    float64
	SessionID   string
	OnDemand    bool
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		IsPlaying:   s.playing,
		Volume:      s.volume,
		IsBuffering: s.buffering,
		IsSynced:    s.synced,
		OnDemand:    s.onDemand,
	}
	if s.session != nil {
		snap.SessionID = s.session.ID
	}
	s.mu.Unlock()

	snap.Position = s.audio.Position()
	snap.Duration = s.audio.Duration()
	if snap.OnDemand && snap.Duration == 0 {
		s.mu.Lock()
		snap.Duration = s.onDemandDur
		s.mu.Unlock()
	}
	return snap
}

// Session returns the currently bound session, nil when idle or on-demand.
func (s *Synchronizer) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onDemand {
		return nil
	}
	return s.session
}

func (s *Synchronizer) notifyDirty() {
	s.mu.Lock()
	fn := s.onStateDirty
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
