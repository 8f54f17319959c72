package schedule

import (
	"sync"
	"time"
)

// Rotation tracks the index of the show currently playing on a 24h-rotation
// day. The index is scoped to a calendar-day key and resets to zero whenever
// the key changes, even mid-rotation. It advances only on natural end of
// track, never on a wall-clock timer, so every show plays back-to-back for
// its real duration.
//
// The index is process-local derived state. Clients that join at different
// times can disagree about which rotation slot is current; the rotation is
// advisory, not broadcast.
type Rotation struct {
	mu     sync.Mutex
	dayKey string
	index  int
}

// NewRotation returns a Rotation with no day observed yet.
func NewRotation() *Rotation {
	return &Rotation{}
}

// DayKey derives the rotation scope from the calendar date, not time of day.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Current returns the rotation index for the given instant, resetting to zero
// first if the calendar day has changed since the last observation.
func (r *Rotation) Current(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	return r.index
}

// Advance moves to the next rotation slot and returns the new index. Callers
// wrap the returned value modulo the day's show count.
func (r *Rotation) Advance(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(now)
	r.index++
	return r.index
}

func (r *Rotation) rollLocked(now time.Time) {
	key := DayKey(now)
	if key != r.dayKey {
		r.dayKey = key
		r.index = 0
	}
}
