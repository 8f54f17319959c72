package models

import "time"

// DecisionKind tags a scheduling decision.
type DecisionKind int

const (
	// DecisionNone means nothing is schedulable right now.
	DecisionNone DecisionKind = iota
	// DecisionLive means a show should be audible right now.
	DecisionLive
	// DecisionUpcoming means a show starts later today.
	DecisionUpcoming
)

// Decision is the output of one catalog resolution: exactly one of
// Live{show, audio URL}, Upcoming{show, ETA} or None{fallback URL}. It is
// derived state, recomputed on every resolution tick and never persisted.
type Decision struct {
	Kind     DecisionKind  `json:"kind"`
	Show     *Show         `json:"show,omitempty"`      // Live and Upcoming
	AudioURL string        `json:"audio_url,omitempty"` // Live: resolved source; None: fallback (may be empty)
	ETA      time.Duration `json:"eta,omitempty"`       // Upcoming only
}

// LiveDecision builds a Live decision for a show and its resolved audio source.
func LiveDecision(show *Show, audioURL string) Decision {
	return Decision{Kind: DecisionLive, Show: show, AudioURL: audioURL}
}

// UpcomingDecision builds an Upcoming decision with the time until start.
func UpcomingDecision(show *Show, eta time.Duration) Decision {
	return Decision{Kind: DecisionUpcoming, Show: show, ETA: eta}
}

// NoShowDecision builds a None decision carrying the configured fallback
// source, which may be empty when none is configured.
func NoShowDecision(fallbackURL string) Decision {
	return Decision{Kind: DecisionNone, AudioURL: fallbackURL}
}

// IsLive reports whether the decision selects a currently-audible show.
func (d Decision) IsLive() bool { return d.Kind == DecisionLive }

// HasShow reports whether the decision references any show at all.
func (d Decision) HasShow() bool { return d.Show != nil }
