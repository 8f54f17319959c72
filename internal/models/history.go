package models

import "time"

// HistoryEntry is one completed stream in the "recently played" ledger.
// Entries are append-only; replays of the same show are distinct entries.
type HistoryEntry struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Title    string    `gorm:"size:255;not null" json:"title"`
	Artist   string    `gorm:"size:255" json:"artist"`
	CoverURL string    `gorm:"size:500" json:"cover_url,omitempty"`
	AudioURL string    `gorm:"size:500" json:"audio_url,omitempty"`
	Duration float64   `json:"duration,omitempty"` // seconds
	PlayedAt time.Time `gorm:"index" json:"played_at"`
	ShowID   *uint     `json:"show_id,omitempty"`
}
