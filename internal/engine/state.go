package engine

import (
	"context"
	"math"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

// CurrentTrack is the now-playing descriptor exposed in State.
type CurrentTrack struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	CoverURL string `json:"cover_url,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// State is a point-in-time snapshot of everything a listener-facing surface
// renders.
type State struct {
	IsPlaying        bool                  `json:"is_playing"`
	IsLive           bool                  `json:"is_live"`
	IsBuffering      bool                  `json:"is_buffering"`
	IsSynced         bool                  `json:"is_synced"`
	IsConnected      bool                  `json:"is_connected"`
	Volume           float64               `json:"volume"`
	Progress         float64               `json:"progress"` // seconds into the source
	Duration         float64               `json:"duration"` // seconds, 0 when unknown
	ListenerCount    int                   `json:"listener_count"`
	CurrentTrack     *CurrentTrack         `json:"current_track,omitempty"`
	CurrentShow      *models.Show          `json:"current_show,omitempty"`
	HasScheduledShow bool                  `json:"has_scheduled_show"`
	HasAudioURL      bool                  `json:"has_audio_url"`
	CountdownSeconds float64               `json:"countdown_seconds,omitempty"`
	RecentStreams    []models.HistoryEntry `json:"recent_streams"`
}

// State assembles the current snapshot.
func (e *Engine) State(ctx context.Context) State {
	snap := e.deps.Synchronizer.Snapshot()

	e.mu.Lock()
	sess := e.session
	decision := e.decision
	recent := make([]models.HistoryEntry, len(e.recent))
	copy(recent, e.recent)
	connected := e.connected
	e.mu.Unlock()

	st := State{
		IsPlaying:     snap.IsPlaying,
		IsBuffering:   snap.IsBuffering,
		IsSynced:      snap.IsSynced,
		IsConnected:   connected,
		Volume:        snap.Volume,
		Progress:      snap.Position,
		Duration:      snap.Duration,
		RecentStreams: recent,
		ListenerCount: e.deps.Presence.Count(ctx),
	}

	switch {
	case sess != nil:
		st.IsLive = true
		st.HasAudioURL = sess.AudioURL != ""
		st.CurrentTrack = &CurrentTrack{
			Title:    sess.ShowName,
			Artist:   sess.HostName,
			CoverURL: sess.CoverURL,
			AudioURL: sess.AudioURL,
		}
		if st.Duration == 0 {
			st.Duration = sess.Duration
		}
	case decision.IsLive():
		st.CurrentShow = decision.Show
		st.HasScheduledShow = true
		st.HasAudioURL = decision.AudioURL != ""
		st.CurrentTrack = &CurrentTrack{
			Title:    decision.Show.Title,
			Artist:   decision.Show.HostName,
			CoverURL: decision.Show.CoverURL,
			AudioURL: decision.AudioURL,
		}
	case decision.Kind == models.DecisionUpcoming:
		st.CurrentShow = decision.Show
		st.HasScheduledShow = true
		st.CountdownSeconds = math.Max(0, decision.ETA.Seconds())
	default:
		st.HasAudioURL = decision.AudioURL != ""
		if st.HasAudioURL {
			st.CurrentTrack = &CurrentTrack{
				Title:    "Group Therapy Radio",
				AudioURL: decision.AudioURL,
			}
		}
	}
	return st
}

// Play opens the playback gate and registers this listener with the presence
// set. When the schedule has a live show and no shared session exists, the
// resolved source starts locally.
func (e *Engine) Play(ctx context.Context) {
	e.deps.Synchronizer.Play()

	e.mu.Lock()
	sess := e.session
	decision := e.decision
	if e.leave == nil {
		e.leave = e.deps.Presence.Join(ctx)
	}
	e.mu.Unlock()

	if sess == nil && decision.IsLive() {
		e.deps.Synchronizer.PlayOnDemand(decision.AudioURL, 0)
	}
}

// Pause closes the gate and leaves the presence set.
func (e *Engine) Pause() {
	e.deps.Synchronizer.Pause()

	e.mu.Lock()
	leave := e.leave
	e.leave = nil
	e.mu.Unlock()
	if leave != nil {
		leave()
	}
}

func (e *Engine) TogglePlay(ctx context.Context) {
	if e.deps.Synchronizer.Snapshot().IsPlaying {
		e.Pause()
	} else {
		e.Play(ctx)
	}
}

func (e *Engine) SetVolume(v float64) {
	e.deps.Synchronizer.SetVolume(v)
}

func (e *Engine) Seek(seconds float64) error {
	return e.deps.Synchronizer.Seek(seconds)
}

// PlayRecent starts on-demand playback of a history entry. Entries without a
// direct audio URL fall back to the recorded URL of the show they reference.
func (e *Engine) PlayRecent(ctx context.Context, entry models.HistoryEntry) error {
	url := entry.AudioURL
	if url == "" && entry.ShowID != nil {
		for _, show := range e.deps.Poller.Shows() {
			if show.ID == *entry.ShowID {
				url = show.RecordedURL
				break
			}
		}
	}
	if url == "" {
		return models.NewValidationError("stream has no recorded audio")
	}
	e.mu.Lock()
	if e.leave == nil {
		e.leave = e.deps.Presence.Join(ctx)
	}
	e.mu.Unlock()
	e.deps.Synchronizer.PlayOnDemand(url, entry.Duration)
	return nil
}

// SyncToSharedTime forces one reconciliation step immediately instead of
// waiting for the next tick.
func (e *Engine) SyncToSharedTime() {
	e.deps.Synchronizer.SyncToSharedTime()
}

// EnableAutoPlay marks that playback may begin without a user gesture.
func (e *Engine) EnableAutoPlay() {
	e.deps.Synchronizer.EnableAutoPlay()
}
