package clock

import (
	"sort"
	"sync"
	"time"
)

// TaskHandle cancels a scheduled task. Stop is idempotent.
type TaskHandle interface {
	Stop()
}

// Scheduler schedules recurring and one-shot tasks. The engine never creates
// ambient timers directly; everything runs through a Scheduler so that tests
// can substitute ManualScheduler and advance virtual time.
type Scheduler interface {
	// Every runs fn every interval until the handle is stopped. The first run
	// happens one interval from now.
	Every(interval time.Duration, fn func()) TaskHandle
	// After runs fn once after delay unless the handle is stopped first.
	After(delay time.Duration, fn func()) TaskHandle
}

// NewScheduler returns a Scheduler backed by real timers.
func NewScheduler() Scheduler {
	return &realScheduler{}
}

type realScheduler struct{}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

func (s *realScheduler) Every(interval time.Duration, fn func()) TaskHandle {
	task := &tickerTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-task.done:
				return
			case <-task.ticker.C:
				fn()
			}
		}
	}()
	return task
}

type timerTask struct {
	timer *time.Timer
	once  sync.Once
}

func (t *timerTask) Stop() {
	t.once.Do(func() { t.timer.Stop() })
}

func (s *realScheduler) After(delay time.Duration, fn func()) TaskHandle {
	return &timerTask{timer: time.AfterFunc(delay, fn)}
}

// ManualScheduler is a Scheduler driven by virtual time. Tasks fire only when
// Advance crosses their deadline, in deadline order, on the calling goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
}

type manualTask struct {
	sched    *ManualScheduler
	at       time.Time
	interval time.Duration // zero for one-shot tasks
	fn       func()
	stopped  bool
}

func (t *manualTask) Stop() {
	t.sched.mu.Lock()
	t.stopped = true
	t.sched.mu.Unlock()
}

// NewManual returns a ManualScheduler whose virtual clock starts at start.
func NewManual(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the scheduler's virtual time, which makes ManualScheduler
// usable as a Clock in tests.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) Every(interval time.Duration, fn func()) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{sched: s, at: s.now.Add(interval), interval: interval, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *ManualScheduler) After(delay time.Duration, fn func()) TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{sched: s, at: s.now.Add(delay), fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

// Advance moves virtual time forward by d, firing every due task in deadline
// order. Tasks scheduled by a firing task are honored within the same Advance
// call if they fall inside the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	for {
		task := s.nextDueLocked(target)
		if task == nil {
			break
		}
		s.now = task.at
		if task.interval > 0 {
			task.at = task.at.Add(task.interval)
		} else {
			task.stopped = true
		}
		fn := task.fn
		s.mu.Unlock()
		fn()
		s.mu.Lock()
	}
	s.now = target
	s.compactLocked()
	s.mu.Unlock()
}

func (s *ManualScheduler) nextDueLocked(target time.Time) *manualTask {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.tasks = live
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].at.Before(s.tasks[j].at) })
	if len(s.tasks) > 0 && !s.tasks[0].at.After(target) {
		return s.tasks[0]
	}
	return nil
}

func (s *ManualScheduler) compactLocked() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.tasks = live
}
