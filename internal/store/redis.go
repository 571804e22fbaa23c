package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/models"
)

// RedisStore keeps the room's messages in a sorted set scored by their unix-ms
// timestamp and publishes a notification on every change, which is what turns
// the store into a push channel: subscribers re-read the window on each notify.
type RedisStore struct {
	client *redis.Client
	roomID string
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and returns a store bound to one room.
func NewRedisStore(ctx context.Context, redisURL, roomID string, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{
		client: client,
		roomID: roomID,
		logger: logger.With().Str("component", "redis-store").Logger(),
	}, nil
}

// Client exposes the underlying connection for components that share the
// same Redis instance, such as the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// messagesKey returns the key for the room's message sorted set.
func (s *RedisStore) messagesKey() string {
	return fmt.Sprintf("room:%s:messages", s.roomID)
}

// updatesChannel returns the pub/sub channel notified on every change.
func (s *RedisStore) updatesChannel() string {
	return fmt.Sprintf("room:%s:updates", s.roomID)
}

// Persist stores a message and notifies subscribers.
func (s *RedisStore) Persist(ctx context.Context, msg *models.Message) (string, int64, error) {
	stored := *msg
	stored.ID = ulid.Make().String()
	stored.Timestamp = time.Now().UnixMilli()
	stored.Pending = false

	data, err := json.Marshal(&stored)
	if err != nil {
		return "", 0, err
	}

	err = s.client.ZAdd(ctx, s.messagesKey(), redis.Z{
		Score:  float64(stored.Timestamp),
		Member: string(data),
	}).Err()
	if err != nil {
		return "", 0, err
	}

	s.notify(ctx)
	return stored.ID, stored.Timestamp, nil
}

// FetchPage retrieves up to limit messages, ascending by timestamp.
func (s *RedisStore) FetchPage(ctx context.Context, limit int) ([]models.Message, error) {
	results, err := s.client.ZRange(ctx, s.messagesKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			// Skip unreadable members rather than failing the page.
			s.logger.Warn().Err(err).Msg("dropping undecodable message")
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// Subscribe listens on the room's update channel and re-reads the full window
// after every notification. The initial window is delivered before returning.
func (s *RedisStore) Subscribe(ctx context.Context, limit int, onBatch BatchFunc) (func(), error) {
	sub := s.client.Subscribe(ctx, s.updatesChannel())
	// Force the subscription to be established before the initial fetch so
	// no update between fetch and subscribe is lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	if initial, err := s.FetchPage(ctx, limit); err == nil {
		onBatch(initial)
	} else {
		s.logger.Warn().Err(err).Msg("initial window fetch failed")
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				window, err := s.FetchPage(ctx, limit)
				if err != nil {
					s.logger.Warn().Err(err).Msg("window re-read failed")
					continue
				}
				onBatch(window)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}, nil
}

// PruneOldest deletes all but the most recent keep messages and notifies
// subscribers when anything was removed.
func (s *RedisStore) PruneOldest(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	removed, err := s.client.ZRemRangeByRank(ctx, s.messagesKey(), 0, int64(-keep-1)).Result()
	if err != nil {
		return err
	}
	if removed > 0 {
		s.notify(ctx)
	}
	return nil
}

// notify publishes a change notification. Best-effort: a missed publish only
// delays convergence until the next one.
func (s *RedisStore) notify(ctx context.Context) {
	if err := s.client.Publish(ctx, s.updatesChannel(), "update").Err(); err != nil {
		s.logger.Warn().Err(err).Msg("publish failed")
	}
}
