// Package models contains data structures for the radio engine's domain.
package models

import (
	"time"
)

// Show is a catalog entity describing a scheduled radio show. The catalog is
// owned by the label's CMS; the engine only reads it.
type Show struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	HostName     string    `gorm:"size:255" json:"host_name"`
	HostBio      string    `gorm:"type:text" json:"host_bio"`
	HostImageURL string    `gorm:"size:500" json:"host_image_url"`
	CoverURL     string    `gorm:"size:500" json:"cover_url"`
	StreamURL    string    `gorm:"size:500" json:"stream_url"`
	RecordedURL  string    `gorm:"size:500" json:"recorded_url"`
	DayOfWeek    *int      `gorm:"index" json:"day_of_week"` // 0 = Sunday .. 6 = Saturday
	StartTime    *string   `gorm:"size:5" json:"start_time"` // "HH:MM", local time
	EndTime      *string   `gorm:"size:5" json:"end_time"`
	Repeat24h    bool      `gorm:"default:false" json:"repeat_24h"`
	Published    bool      `gorm:"default:false;index" json:"published"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PlayableURL returns the show's audio source, preferring the live stream over
// the pre-recorded file. The second return is false when the show has neither.
func (s *Show) PlayableURL() (string, bool) {
	if s.StreamURL != "" {
		return s.StreamURL, true
	}
	if s.RecordedURL != "" {
		return s.RecordedURL, true
	}
	return "", false
}

// ScheduledOn reports whether the show airs on the given weekday.
func (s *Show) ScheduledOn(day time.Weekday) bool {
	return s.DayOfWeek != nil && *s.DayOfWeek == int(day)
}
