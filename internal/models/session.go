package models

import (
	"math"
	"time"
)

// Session is the single shared record describing the currently broadcasting
// session. It is written only by the broadcaster role and read by every
// listener; listeners treat it as immutable.
type Session struct {
	ID            string  `json:"id"`
	ShowID        uint    `json:"show_id"`
	ShowName      string  `json:"show_name"`
	HostName      string  `json:"host_name,omitempty"`
	CoverURL      string  `json:"cover_url,omitempty"`
	AudioURL      string  `json:"audio_url"`
	StartedAt     int64   `json:"started_at"` // milliseconds on the shared clock
	Duration      float64 `json:"duration"`   // nominal length in seconds
	ReplayEnabled bool    `json:"replay_enabled"`
	IsActive      bool    `json:"is_active"`
	Version       int64   `json:"version"`
}

// Elapsed returns seconds since broadcast start at the given shared-clock
// instant. Negative values mean the local view of the shared clock is behind
// the broadcaster's.
func (s *Session) Elapsed(sharedNowMs int64) float64 {
	return float64(sharedNowMs-s.StartedAt) / 1000.0
}

// ExpectedPosition returns the audio position every listener should be at,
// wrapping modulo Duration when replay looping is enabled. The sign of the
// result follows Elapsed, so a listener whose shared-clock view is behind the
// broadcaster still sees a negative value rather than a bogus wrapped one.
func (s *Session) ExpectedPosition(sharedNowMs int64) float64 {
	elapsed := s.Elapsed(sharedNowMs)
	if s.ReplayEnabled && s.Duration > 0 {
		elapsed = math.Mod(elapsed, s.Duration)
	}
	return elapsed
}

// HistoryRecord builds the ledger entry for this session's finished run.
// Sessions without a named host are credited to "Unknown".
func (s *Session) HistoryRecord(playedAt time.Time) *HistoryEntry {
	artist := s.HostName
	if artist == "" {
		artist = "Unknown"
	}
	entry := &HistoryEntry{
		Title:    s.ShowName,
		Artist:   artist,
		CoverURL: s.CoverURL,
		AudioURL: s.AudioURL,
		Duration: s.Duration,
		PlayedAt: playedAt,
	}
	if s.ShowID != 0 {
		id := s.ShowID
		entry.ShowID = &id
	}
	return entry
}
