// Package presence tracks how many clients are currently listening. Entries
// are ephemeral: each listener heartbeats a deadline into a redis sorted set,
// so a client that disconnects without saying goodbye simply stops renewing
// and falls out of the count.
package presence

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/egypcoder/grouptherapy-radio/internal/clock"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

const (
	presenceKey    = "radio:presence"
	entryTTL       = 30 * time.Second
	heartbeatEvery = 10 * time.Second
)

// Counter aggregates live listener entries.
type Counter struct {
	rdb      *redis.Client
	sched    clock.Scheduler
	clk      clock.Clock
	logger   *slog.Logger
	fallback int
}

// NewCounter creates a Counter. fallback is reported when the backend is
// unreachable; it is floored at 1.
func NewCounter(rdb *redis.Client, sched clock.Scheduler, clk clock.Clock, fallback int, logger *slog.Logger) *Counter {
	if fallback < 1 {
		fallback = 1
	}
	return &Counter{rdb: rdb, sched: sched, clk: clk, logger: logger, fallback: fallback}
}

// Join registers this client as listening and returns a detach handle.
// Calling the handle removes the entry immediately; otherwise the entry
// expires on its own once heartbeats stop. Join never fails: a backend error
// degrades to an entry that exists only as long as the backend is back.
func (c *Counter) Join(ctx context.Context) func() {
	id := uuid.NewString()

	c.touch(ctx, id)
	task := c.sched.Every(heartbeatEvery, func() {
		c.touch(context.Background(), id)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			task.Stop()
			if c.rdb == nil {
				return
			}
			if err := c.rdb.ZRem(context.Background(), presenceKey, id).Err(); err != nil {
				c.logger.Warn("presence leave failed", slog.String("error", err.Error()))
			}
		})
	}
}

// Count returns the number of live listener entries. The result is floored at
// 1 while the backend is reachable, and falls back to a fixed default when it
// is not.
func (c *Counter) Count(ctx context.Context) int {
	if c.rdb == nil {
		return c.fallback
	}
	nowMs := c.clk.Now().UnixMilli()

	// Prune entries whose deadline passed before counting; this replaces a
	// server-side reaper.
	if err := c.rdb.ZRemRangeByScore(ctx, presenceKey, "-inf", strconv.FormatInt(nowMs, 10)).Err(); err != nil {
		observability.BackendErrorsTotal.WithLabelValues("presence_prune").Inc()
		return c.fallback
	}
	n, err := c.rdb.ZCard(ctx, presenceKey).Result()
	if err != nil {
		observability.BackendErrorsTotal.WithLabelValues("presence_count").Inc()
		return c.fallback
	}
	if n < 1 {
		return 1
	}
	count := int(n)
	observability.ListenersGauge.Set(float64(count))
	return count
}

func (c *Counter) touch(ctx context.Context, id string) {
	if c.rdb == nil {
		return
	}
	deadline := c.clk.Now().Add(entryTTL).UnixMilli()
	err := c.rdb.ZAdd(ctx, presenceKey, redis.Z{Score: float64(deadline), Member: id}).Err()
	if err != nil {
		observability.BackendErrorsTotal.WithLabelValues("presence_touch").Inc()
		c.logger.Warn("presence heartbeat failed", slog.String("error", err.Error()))
	}
}
