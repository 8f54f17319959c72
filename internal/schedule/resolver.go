// Package schedule resolves the show catalog against the current instant into
// a single scheduling decision: which show should be audible, which one is
// next, or nothing at all.
package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

// Resolver derives scheduling decisions from the published show catalog.
// Resolution is idempotent: the same catalog and nearby instants yield the
// same decision, except for the monotonically shrinking Upcoming ETA.
type Resolver struct {
	fallbackURL string
}

// NewResolver creates a Resolver. fallbackURL may be empty; it is carried on
// None decisions so the player can fall back to the station's default loop.
func NewResolver(fallbackURL string) *Resolver {
	return &Resolver{fallbackURL: fallbackURL}
}

// Resolve picks today's scheduling decision. rot supplies the rotation index
// on 24h-rotation days; it is only consulted, never advanced, here.
//
// An active broadcaster session always takes precedence over the resolver's
// output; enforcing that is the caller's job.
func (r *Resolver) Resolve(shows []models.Show, now time.Time, rot *Rotation) models.Decision {
	today := todaysPlayable(shows, now)
	if len(today) == 0 {
		return models.NoShowDecision(r.fallbackURL)
	}

	if rotationDay(today) {
		sortByStartTime(today)
		idx := 0
		if rot != nil {
			idx = rot.Current(now) % len(today)
		}
		show := today[idx]
		url, _ := show.PlayableURL()
		return models.LiveDecision(show, url)
	}

	return r.resolveFixed(today, now)
}

// todaysPlayable filters to published shows airing today with at least one
// playable source.
func todaysPlayable(shows []models.Show, now time.Time) []*models.Show {
	var out []*models.Show
	for i := range shows {
		s := &shows[i]
		if !s.Published || !s.ScheduledOn(now.Weekday()) {
			continue
		}
		if _, ok := s.PlayableURL(); !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// rotationDay reports whether every one of today's shows opted into 24h
// rotation. Rotation and fixed-schedule modes are mutually exclusive per day.
func rotationDay(shows []*models.Show) bool {
	for _, s := range shows {
		if !s.Repeat24h {
			return false
		}
	}
	return true
}

func (r *Resolver) resolveFixed(today []*models.Show, now time.Time) models.Decision {
	nowMinutes := now.Hour()*60 + now.Minute()

	for _, s := range today {
		start, okStart := parseMinutes(s.StartTime)
		end, okEnd := parseMinutes(s.EndTime)
		if !okStart || !okEnd {
			// Malformed or missing window: not schedulable in fixed mode.
			continue
		}
		if start <= nowMinutes && nowMinutes < end {
			url, _ := s.PlayableURL()
			return models.LiveDecision(s, url)
		}
	}

	// Earliest show still ahead of us today.
	var next *models.Show
	nextStart := 0
	for _, s := range today {
		start, ok := parseMinutes(s.StartTime)
		if !ok || start <= nowMinutes {
			continue
		}
		if next == nil || start < nextStart {
			next = s
			nextStart = start
		}
	}
	if next != nil {
		nowSeconds := nowMinutes*60 + now.Second()
		eta := time.Duration(nextStart*60-nowSeconds) * time.Second
		return models.UpcomingDecision(next, eta)
	}

	return models.NoShowDecision(r.fallbackURL)
}

// sortByStartTime orders shows by start time ascending; shows without a start
// time sort last, keeping their relative order.
func sortByStartTime(shows []*models.Show) {
	sort.SliceStable(shows, func(i, j int) bool {
		a, okA := parseMinutes(shows[i].StartTime)
		b, okB := parseMinutes(shows[j].StartTime)
		switch {
		case okA && okB:
			return a < b
		case okA:
			return true
		default:
			return false
		}
	})
}

// parseMinutes converts an "HH:MM" string into minutes of day.
func parseMinutes(s *string) (int, bool) {
	if s == nil {
		return 0, false
	}
	parts := strings.SplitN(*s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
