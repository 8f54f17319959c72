package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

// Broadcaster performs the three lifecycle transitions on the shared session:
// start, restart and end. Exactly one broadcaster-side actor is expected to
// exist at a time; concurrent writers race under last-write-wins and the
// version check in Store.Publish makes the loser visible.
type Broadcaster struct {
	store     Store
	announcer Announcer
	clock     *clock.SharedClock
	logger    *slog.Logger
}

// NewBroadcaster creates a Broadcaster. announcer may be nil when the chat
// backend is not configured.
func NewBroadcaster(store Store, announcer Announcer, sharedClock *clock.SharedClock, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{store: store, announcer: announcer, clock: sharedClock, logger: logger}
}

// StartInput carries the broadcaster's parameters for a new session.
type StartInput struct {
	ShowID        uint    `json:"show_id"`
	ShowName      string  `json:"show_name"`
	HostName      string  `json:"host_name"`
	CoverURL      string  `json:"cover_url"`
	AudioURL      string  `json:"audio_url"`
	Duration      float64 `json:"duration"` // nominal seconds; corrected later from real metadata
	ReplayEnabled bool    `json:"replay_enabled"`
}

// Start creates a fresh session and publishes it, superseding any previously
// active one. The session-scoped chat log is reset and a system announcement
// appended.
func (b *Broadcaster) Start(ctx context.Context, in StartInput) (*models.Session, error) {
	span, ctx := observability.NewSpan(ctx, "broadcast.start")
	defer span.End()

	if in.ShowName == "" {
		return nil, models.NewValidationError("Show name is required")
	}
	if in.AudioURL == "" {
		return nil, models.NewValidationError("A playable audio URL is required")
	}
	if in.Duration < 0 {
		return nil, models.NewValidationError("Duration cannot be negative")
	}

	version := int64(1)
	if current, err := b.store.Current(ctx); err == nil && current != nil {
		version = current.Version + 1
	}

	sess := &models.Session{
		ID:            uuid.NewString(),
		ShowID:        in.ShowID,
		ShowName:      in.ShowName,
		HostName:      in.HostName,
		CoverURL:      in.CoverURL,
		AudioURL:      in.AudioURL,
		StartedAt:     b.clock.NowMillis(),
		Duration:      in.Duration,
		ReplayEnabled: in.ReplayEnabled,
		IsActive:      true,
		Version:       version,
	}
	span.AddAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.show", sess.ShowName),
	)

	if err := b.store.Publish(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}

	b.resetChat(ctx)
	b.announce(ctx, sess.ShowName+" is now live")
	observability.SessionsTotal.WithLabelValues("started").Inc()
	b.logger.Info("broadcast started",
		slog.String("session_id", sess.ID),
		slog.String("show", sess.ShowName),
		slog.Bool("replay", sess.ReplayEnabled),
	)
	return sess, nil
}

// Restart re-synchronizes all listeners to position zero by resetting
// StartedAt on the existing session. Identity and audio source are unchanged.
func (b *Broadcaster) Restart(ctx context.Context) (*models.Session, error) {
	span, ctx := observability.NewSpan(ctx, "broadcast.restart")
	defer span.End()

	current, err := b.store.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if current == nil {
		return nil, models.NewNotFoundError("session", "current")
	}

	current.StartedAt = b.clock.NowMillis()
	current.IsActive = true
	current.Version++

	if err := b.store.Publish(ctx, current); err != nil {
		span.RecordError(err)
		return nil, err
	}

	b.announce(ctx, current.ShowName+" restarted from the top")
	observability.SessionsTotal.WithLabelValues("restarted").Inc()
	b.logger.Info("broadcast restarted", slog.String("session_id", current.ID))
	return current, nil
}

// End marks the session inactive. History recording happens at the call site
// before End so a transient history failure can never block the transition.
func (b *Broadcaster) End(ctx context.Context) (*models.Session, error) {
	span, ctx := observability.NewSpan(ctx, "broadcast.end")
	defer span.End()

	current, err := b.store.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if current == nil {
		return nil, models.NewNotFoundError("session", "current")
	}

	current.IsActive = false
	current.Version++

	if err := b.store.Publish(ctx, current); err != nil {
		span.RecordError(err)
		return nil, err
	}

	b.announce(ctx, current.ShowName+" has ended")
	observability.SessionsTotal.WithLabelValues("ended").Inc()
	b.logger.Info("broadcast ended", slog.String("session_id", current.ID))
	return current, nil
}

func (b *Broadcaster) announce(ctx context.Context, text string) {
	if b.announcer == nil {
		return
	}
	if err := b.announcer.Announce(ctx, text); err != nil {
		b.logger.Warn("announcement failed", slog.String("error", err.Error()))
	}
}

func (b *Broadcaster) resetChat(ctx context.Context) {
	if b.announcer == nil {
		return
	}
	if err := b.announcer.Reset(ctx); err != nil {
		b.logger.Warn("chat reset failed", slog.String("error", err.Error()))
	}
}
