package player

import (
	"sync"
	"time"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
)

// AudioEvent mirrors the lifecycle notifications an audio backend emits
// while loading and playing a source.
type AudioEvent int

const (
	EventLoadedMetadata AudioEvent = iota
	EventWaiting
	EventCanPlay
	EventPlaying
	EventEnded
)

func (e AudioEvent) String() string {
	switch e {
	case EventLoadedMetadata:
		return "loadedmetadata"
	case EventWaiting:
		return "waiting"
	case EventCanPlay:
		return "canplay"
	case EventPlaying:
		return "playing"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Audio is the playback backend the synchronizer drives. Implementations
// report position and duration in seconds.
type Audio interface {
	Load(url string)
	Play() error
	Pause()
	Position() float64
	Seek(seconds float64)
	Duration() float64
	SetVolume(v float64)
	// OnEvent registers the event sink. Backends deliver events on
	// their own goroutine or synchronously from the mutating call.
	OnEvent(fn func(AudioEvent))
}

// SimulatedAudio is a clock-driven Audio backend used by the engine when no
// real output device is attached, and by tests. Position advances with the
// supplied clock while playing.
type SimulatedAudio struct {
	clk clock.Clock

	mu        sync.Mutex
	url       string
	duration  float64
	playing   bool
	basePos   float64
	playingAt time.Time
	onEvent   func(AudioEvent)
}

func NewSimulatedAudio(clk clock.Clock) *SimulatedAudio {
	return &SimulatedAudio{clk: clk}
}

// SetSourceDuration fixes the duration the backend will report once the
// current source's metadata "loads".
func (a *SimulatedAudio) SetSourceDuration(seconds float64) {
	a.mu.Lock()
	a.duration = seconds
	a.mu.Unlock()
}

func (a *SimulatedAudio) OnEvent(fn func(AudioEvent)) {
	a.mu.Lock()
	a.onEvent = fn
	a.mu.Unlock()
}

func (a *SimulatedAudio) Load(url string) {
	a.mu.Lock()
	a.url = url
	a.basePos = 0
	a.playing = false
	fn := a.onEvent
	a.mu.Unlock()

	// Events fire outside the lock so sinks may call back into the backend.
	emit(fn, EventLoadedMetadata)
	emit(fn, EventCanPlay)
}

func (a *SimulatedAudio) Play() error {
	a.mu.Lock()
	if !a.playing {
		a.playing = true
		a.playingAt = a.clk.Now()
	}
	fn := a.onEvent
	a.mu.Unlock()

	emit(fn, EventPlaying)
	return nil
}

func (a *SimulatedAudio) Pause() {
	a.mu.Lock()
	if a.playing {
		a.basePos = a.positionLocked()
		a.playing = false
	}
	a.mu.Unlock()
}

func (a *SimulatedAudio) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionLocked()
}

// positionLocked clamps to duration when the source length is known and
// flags the ended state for the next Tick.
func (a *SimulatedAudio) positionLocked() float64 {
	pos := a.basePos
	if a.playing {
		pos += a.clk.Now().Sub(a.playingAt).Seconds()
	}
	if a.duration > 0 && pos > a.duration {
		pos = a.duration
	}
	return pos
}

func (a *SimulatedAudio) Seek(seconds float64) {
	a.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if a.duration > 0 && seconds > a.duration {
		seconds = a.duration
	}
	a.basePos = seconds
	if a.playing {
		a.playingAt = a.clk.Now()
	}
	a.mu.Unlock()
}

func (a *SimulatedAudio) Duration() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}

func (a *SimulatedAudio) SetVolume(v float64) {}

// Tick lets the owner poll for end-of-source. SimulatedAudio has no timer of
// its own; callers drive it from their reconcile cadence.
func (a *SimulatedAudio) Tick() {
	a.mu.Lock()
	ended := a.playing && a.duration > 0 && a.positionLocked() >= a.duration
	if ended {
		a.basePos = a.duration
		a.playing = false
	}
	fn := a.onEvent
	a.mu.Unlock()

	if ended {
		emit(fn, EventEnded)
	}
}

func emit(fn func(AudioEvent), ev AudioEvent) {
	if fn != nil {
		fn(ev)
	}
}
