package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

// PollInterval is how often the catalog is re-read. The resolver must see
// catalog changes within a minute.
const PollInterval = time.Minute

// Poller keeps an in-memory snapshot of the published shows, refreshed on an
// interval, and notifies subscribers when the snapshot changes. A failed
// refresh keeps the previous snapshot; the engine degrades rather than
// erroring.
type Poller struct {
	repo   ShowRepository
	sched  clock.Scheduler
	logger *slog.Logger

	mu          sync.RWMutex
	shows       []models.Show
	fingerprint string
	subs        map[int]func([]models.Show)
	nextSubID   int
	task        clock.TaskHandle
}

// NewPoller creates a Poller over the given repository.
func NewPoller(repo ShowRepository, sched clock.Scheduler, logger *slog.Logger) *Poller {
	return &Poller{
		repo:   repo,
		sched:  sched,
		logger: logger,
		subs:   make(map[int]func([]models.Show)),
	}
}

// Start performs an immediate refresh and schedules the recurring one.
func (p *Poller) Start(ctx context.Context) {
	p.Refresh(ctx)
	p.mu.Lock()
	if p.task == nil {
		p.task = p.sched.Every(PollInterval, func() {
			p.Refresh(context.Background())
		})
	}
	p.mu.Unlock()
}

// Stop cancels the recurring refresh.
func (p *Poller) Stop() {
	p.mu.Lock()
	task := p.task
	p.task = nil
	p.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// Shows returns the current snapshot.
func (p *Poller) Shows() []models.Show {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Show, len(p.shows))
	copy(out, p.shows)
	return out
}

// Subscribe registers fn to be called with the new snapshot whenever the
// catalog changes. The returned function unsubscribes.
func (p *Poller) Subscribe(fn func([]models.Show)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Refresh re-reads the catalog now, outside the regular interval.
func (p *Poller) Refresh(ctx context.Context) {
	shows, err := p.repo.ListPublished(ctx)
	if err != nil {
		p.logger.Warn("catalog refresh failed, keeping previous snapshot", slog.String("error", err.Error()))
		return
	}

	fp := fingerprintShows(shows)

	p.mu.Lock()
	changed := fp != p.fingerprint
	p.shows = shows
	p.fingerprint = fp
	var subs []func([]models.Show)
	if changed {
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Info("catalog changed", slog.Int("shows", len(shows)))
	snapshot := make([]models.Show, len(shows))
	copy(snapshot, shows)
	for _, fn := range subs {
		fn(snapshot)
	}
}

func fingerprintShows(shows []models.Show) string {
	var b strings.Builder
	for i := range shows {
		s := &shows[i]
		fmt.Fprintf(&b, "%d:%d:%t;", s.ID, s.UpdatedAt.UnixNano(), s.Published)
	}
	return b.String()
}
