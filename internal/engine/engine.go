// Package engine ties the catalog, schedule, session and playback layers
// together into one long-running service with a queryable state snapshot.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/egypcoder/grouptherapy-radio/internal/catalog"
	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/history"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
	"github.com/egypcoder/grouptherapy-radio/internal/player"
	"github.com/egypcoder/grouptherapy-radio/internal/presence"
	"github.com/egypcoder/grouptherapy-radio/internal/schedule"
	"github.com/egypcoder/grouptherapy-radio/internal/session"
)

// ResolveEvery is the cadence of schedule re-resolution and history refresh.
const ResolveEvery = time.Minute

// audioTicker is implemented by backends with no internal timer that need to
// be polled for end-of-source.
type audioTicker interface {
	Tick()
}

// Deps are the collaborators the engine wires together. Store may be nil when
// Redis is unavailable; the engine then runs schedule-only, without shared
// sessions.
type Deps struct {
	Store       session.Store
	Broadcaster *session.Broadcaster
	Poller      *catalog.Poller
	Resolver    *schedule.Resolver
	Synchronizer *player.Synchronizer
	Audio       player.Audio
	Presence    *presence.Counter
	History     history.Repository
	Shared      *clock.SharedClock
	Scheduler   clock.Scheduler
	Logger      *slog.Logger
}

// Engine is the playback engine facade. It observes the shared session and
// clock offset, resolves the schedule against the show catalog, drives the
// drift reconciliation cadence, and applies the end-of-session policy.
type Engine struct {
	deps     Deps
	rotation *schedule.Rotation

	mu        sync.Mutex
	decision  models.Decision
	session   *models.Session
	recent    []models.HistoryEntry
	connected bool
	leave     func()

	cancel    context.CancelFunc
	tasks     []clock.TaskHandle
	unwatch   []func()
}

func New(deps Deps) *Engine {
	e := &Engine{
		deps:     deps,
		rotation: schedule.NewRotation(),
	}
	deps.Synchronizer.OnEnded(e.onPlaybackEnded)
	return e
}

// Start begins watching the shared state and schedules the periodic work. It
// returns once the initial session and schedule are loaded.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.deps.Poller.Start(ctx)
	e.unwatch = append(e.unwatch, e.deps.Poller.Subscribe(func([]models.Show) {
		e.resolve()
	}))

	if e.deps.Store != nil {
		if offset, err := e.deps.Store.ClockOffset(ctx); err == nil {
			e.deps.Shared.SetOffset(offset)
		}
		offsets, stopOffsets := e.deps.Store.WatchClockOffset(ctx)
		e.unwatch = append(e.unwatch, stopOffsets)
		go func() {
			for ms := range offsets {
				e.deps.Shared.SetOffset(ms)
				e.deps.Logger.Info("clock offset updated", slog.Int64("offset_ms", ms))
			}
		}()

		sess, err := e.deps.Store.Current(ctx)
		e.setConnected(err == nil)
		if err == nil {
			e.applySession(ctx, sess)
		}
		updates, stopUpdates := e.deps.Store.Watch(ctx)
		e.unwatch = append(e.unwatch, stopUpdates)
		go func() {
			for sess := range updates {
				e.setConnected(true)
				e.applySession(ctx, sess)
			}
		}()
	}

	e.resolve()

	e.tasks = append(e.tasks,
		e.deps.Scheduler.Every(player.ReconcileEvery*time.Second, func() {
			if t, ok := e.deps.Audio.(audioTicker); ok {
				t.Tick()
			}
			e.deps.Synchronizer.SyncToSharedTime()
		}),
		e.deps.Scheduler.Every(ResolveEvery, func() {
			e.resolve()
			e.refreshHistory(ctx)
		}),
	)
	e.refreshHistory(ctx)
}

// Stop tears down watches and scheduled work.
func (e *Engine) Stop() {
	for _, t := range e.tasks {
		t.Stop()
	}
	for _, u := range e.unwatch {
		u()
	}
	e.deps.Poller.Stop()
	if e.cancel != nil {
		e.cancel()
	}
}

// applySession reacts to a session published on the shared store: bind the
// synchronizer to an active session, or unbind and fall back to the schedule
// when the session ended or disappeared.
func (e *Engine) applySession(ctx context.Context, sess *models.Session) {
	if sess != nil && !sess.IsActive {
		sess = nil
	}

	e.mu.Lock()
	prev := e.session
	e.session = sess
	e.mu.Unlock()

	if sess == nil {
		if prev != nil {
			e.deps.Synchronizer.Unbind()
			e.resolve()
		}
		return
	}

	if prev != nil && prev.ID == sess.ID && prev.StartedAt == sess.StartedAt && prev.Version == sess.Version {
		return
	}

	e.deps.Logger.Info("session bound",
		slog.String("session_id", sess.ID),
		slog.String("show", sess.ShowName),
		slog.Int64("version", sess.Version),
	)
	e.deps.Synchronizer.Bind(sess)
	e.deps.Synchronizer.RequestPlay()
}

// resolve re-runs the schedule against the current catalog snapshot. When no
// shared session is active and the user gate is open, a live scheduled show
// plays locally from the resolved source.
func (e *Engine) resolve() {
	now := e.deps.Shared.Now()
	decision := e.deps.Resolver.Resolve(e.deps.Poller.Shows(), now, e.rotation)

	e.mu.Lock()
	prevURL := e.decision.AudioURL
	prevKind := e.decision.Kind
	e.decision = decision
	hasSession := e.session != nil
	e.mu.Unlock()

	if hasSession {
		return
	}
	changed := decision.Kind != prevKind || decision.AudioURL != prevURL
	if decision.IsLive() && changed && e.deps.Synchronizer.Snapshot().IsPlaying {
		e.deps.Logger.Info("playing scheduled show",
			slog.String("show", decision.Show.Title),
			slog.String("url", decision.AudioURL),
		)
		e.deps.Synchronizer.PlayOnDemand(decision.AudioURL, 0)
	}
}

// onPlaybackEnded applies the end-of-session policy when the bound source
// reaches its natural end: replaying sessions restart from the top, everything
// else is recorded to history and ended. With no session, a rotation day
// advances to the next show.
func (e *Engine) onPlaybackEnded() {
	ctx := context.Background()

	e.mu.Lock()
	sess := e.session
	decision := e.decision
	e.mu.Unlock()

	if sess == nil {
		if decision.IsLive() && decision.Show != nil && decision.Show.Repeat24h {
			e.rotation.Advance(e.deps.Shared.Now())
			observability.RotationAdvancesTotal.Inc()
			e.deps.Logger.Info("rotation advanced", slog.String("ended", decision.Show.Title))
			e.resolve()

			e.mu.Lock()
			next := e.decision
			e.mu.Unlock()
			if next.IsLive() {
				e.deps.Synchronizer.PlayOnDemand(next.AudioURL, 0)
			}
		}
		return
	}

	if e.deps.Broadcaster == nil {
		return
	}

	if sess.ReplayEnabled {
		if _, err := e.deps.Broadcaster.Restart(ctx); err != nil {
			e.deps.Logger.Error("replay restart failed", slog.String("error", err.Error()))
		}
		observability.NaturalEndsTotal.WithLabelValues("replayed").Inc()
		return
	}

	e.recordHistory(ctx, sess)
	if _, err := e.deps.Broadcaster.End(ctx); err != nil {
		e.deps.Logger.Error("session end failed", slog.String("error", err.Error()))
	}
	observability.NaturalEndsTotal.WithLabelValues("ended").Inc()
}

// recordHistory appends the finished session to the ledger. Failures are
// logged and swallowed; history must never block the session transition.
func (e *Engine) recordHistory(ctx context.Context, sess *models.Session) {
	if e.deps.History == nil {
		return
	}
	entry := sess.HistoryRecord(e.deps.Shared.Now())
	if err := e.deps.History.Append(ctx, entry); err != nil {
		e.deps.Logger.Error("history append failed",
			slog.String("error", err.Error()),
			slog.String("show", sess.ShowName),
		)
		return
	}
	e.refreshHistory(ctx)
}

func (e *Engine) refreshHistory(ctx context.Context) {
	if e.deps.History == nil {
		return
	}
	entries, err := e.deps.History.Recent(ctx, history.DisplayLimit)
	if err != nil {
		e.deps.Logger.Error("history refresh failed", slog.String("error", err.Error()))
		return
	}
	e.mu.Lock()
	e.recent = entries
	e.mu.Unlock()
}

func (e *Engine) setConnected(ok bool) {
	e.mu.Lock()
	e.connected = ok
	e.mu.Unlock()
}
