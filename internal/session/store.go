// Package session owns the shared broadcast session record: its storage in
// the state backend, its propagation to listeners, and its lifecycle state
// machine (start, restart, end).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

const (
	sessionKey     = "radio:session"
	sessionChannel = "radio:session:updates"
	offsetKey      = "radio:clock:offset_ms"
	offsetChannel  = "radio:clock:updates"
	chatKey        = "radio:chat"
	chatCapacity   = 200
)

// ErrStaleWrite is returned when a session publish loses a version race.
var ErrStaleWrite = errors.New("session write superseded by a newer version")

// Store is the narrow contract the engine needs from the shared state
// backend: read-and-subscribe access to the single session record plus the
// clock-skew estimate. Any pub/sub key-value store satisfies it.
type Store interface {
	// Current returns the session record, or (nil, nil) when none exists.
	Current(ctx context.Context) (*models.Session, error)
	// Publish writes the session and fans it out to watchers. The write is
	// rejected with ErrStaleWrite when a higher version is already stored.
	Publish(ctx context.Context, sess *models.Session) error
	// Watch delivers every subsequent session update until the cancel
	// function is called.
	Watch(ctx context.Context) (<-chan *models.Session, func())

	// ClockOffset returns the backend's current skew estimate in signed
	// milliseconds; 0 when no estimate has been published.
	ClockOffset(ctx context.Context) (int64, error)
	// PublishClockOffset stores a new skew estimate and notifies watchers.
	PublishClockOffset(ctx context.Context, ms int64) error
	// WatchClockOffset delivers skew estimate updates.
	WatchClockOffset(ctx context.Context) (<-chan int64, func())
}

// RedisStore implements Store over a redis client.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisStore creates a Store backed by the given redis client.
func NewRedisStore(rdb *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger}
}

func (s *RedisStore) Current(ctx context.Context) (*models.Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		observability.BackendErrorsTotal.WithLabelValues("session_read").Inc()
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Publish stores the session behind a WATCH transaction so that the version
// check and the write are atomic: last write wins, but only with a strictly
// newer version.
func (s *RedisStore) Publish(ctx context.Context, sess *models.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, sessionKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var current models.Session
			if jsonErr := json.Unmarshal([]byte(raw), &current); jsonErr == nil && current.Version >= sess.Version {
				return ErrStaleWrite
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey, payload, 0)
			pipe.Publish(ctx, sessionChannel, payload)
			return nil
		})
		return err
	}

	// Retry on optimistic-lock conflicts; a genuine stale version surfaces
	// as ErrStaleWrite instead.
	for i := 0; i < 3; i++ {
		err = s.rdb.Watch(ctx, txn, sessionKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil && !errors.Is(err, ErrStaleWrite) {
		observability.BackendErrorsTotal.WithLabelValues("session_write").Inc()
	}
	return err
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan *models.Session, func()) {
	out := make(chan *models.Session, 8)
	sub := s.rdb.Subscribe(ctx, sessionChannel)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sess models.Session
				if err := json.Unmarshal([]byte(msg.Payload), &sess); err != nil {
					s.logger.Warn("dropping malformed session update", slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- &sess:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() {
		cancel()
		_ = sub.Close()
	}
}

func (s *RedisStore) ClockOffset(ctx context.Context) (int64, error) {
	raw, err := s.rdb.Get(ctx, offsetKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		observability.BackendErrorsTotal.WithLabelValues("offset_read").Inc()
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *RedisStore) PublishClockOffset(ctx context.Context, ms int64) error {
	raw := strconv.FormatInt(ms, 10)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, offsetKey, raw, 0)
		pipe.Publish(ctx, offsetChannel, raw)
		return nil
	})
	if err != nil {
		observability.BackendErrorsTotal.WithLabelValues("offset_write").Inc()
	}
	return err
}

func (s *RedisStore) WatchClockOffset(ctx context.Context) (<-chan int64, func()) {
	out := make(chan int64, 8)
	sub := s.rdb.Subscribe(ctx, offsetChannel)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ms, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- ms:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() {
		cancel()
		_ = sub.Close()
	}
}

// Announcement is one system line in the session chat log.
type Announcement struct {
	Text   string    `json:"text"`
	System bool      `json:"system"`
	SentAt time.Time `json:"sent_at"`
}

// Announcer appends system announcements to the session-scoped chat log.
type Announcer interface {
	Announce(ctx context.Context, text string) error
	Reset(ctx context.Context) error
}

// RedisAnnouncer implements Announcer over a capped redis list.
type RedisAnnouncer struct {
	rdb *redis.Client
}

// NewRedisAnnouncer creates an Announcer backed by the given redis client.
func NewRedisAnnouncer(rdb *redis.Client) *RedisAnnouncer {
	return &RedisAnnouncer{rdb: rdb}
}

func (a *RedisAnnouncer) Announce(ctx context.Context, text string) error {
	payload, err := json.Marshal(Announcement{Text: text, System: true, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, chatKey, payload)
		pipe.LTrim(ctx, chatKey, -chatCapacity, -1)
		return nil
	})
	return err
}

func (a *RedisAnnouncer) Reset(ctx context.Context) error {
	return a.rdb.Del(ctx, chatKey).Err()
}
