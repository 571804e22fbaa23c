package store

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/takiindev/chat-private/internal/models"
)

// MemoryStore is an in-process MessageStore with the same full-window
// redelivery semantics as RedisStore. chatd falls back to it when no
// REDIS_URL is configured; tests use it as their store of record.
type MemoryStore struct {
	mu       sync.Mutex
	messages []models.Message
	subs     map[int]*memorySub
	nextSub  int
	now      func() time.Time
}

type memorySub struct {
	limit   int
	onBatch BatchFunc
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[int]*memorySub),
		now:  time.Now,
	}
}

// Persist appends the message with a fresh ULID and server timestamp.
func (s *MemoryStore) Persist(ctx context.Context, msg *models.Message) (string, int64, error) {
	s.mu.Lock()
	stored := *msg
	stored.ID = ulid.Make().String()
	ts := s.now().UnixMilli()
	// Keep timestamps strictly monotonic so ordering is total even for
	// persists within the same millisecond.
	if n := len(s.messages); n > 0 && s.messages[n-1].Timestamp >= ts {
		ts = s.messages[n-1].Timestamp + 1
	}
	stored.Timestamp = ts
	stored.Pending = false
	s.messages = append(s.messages, stored)
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	s.broadcast(subs)
	return stored.ID, stored.Timestamp, nil
}

// FetchPage returns up to limit messages, ascending by timestamp.
func (s *MemoryStore) FetchPage(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowLocked(limit), nil
}

// Subscribe registers onBatch and delivers the current window immediately.
func (s *MemoryStore) Subscribe(ctx context.Context, limit int, onBatch BatchFunc) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &memorySub{limit: limit, onBatch: onBatch}
	initial := s.windowLocked(limit)
	s.mu.Unlock()

	onBatch(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

// PruneOldest deletes all but the most recent keep messages.
func (s *MemoryStore) PruneOldest(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	var subs []subDelivery
	if len(s.messages) > keep {
		s.messages = append([]models.Message(nil), s.messages[len(s.messages)-keep:]...)
		subs = s.snapshotSubsLocked()
	}
	s.mu.Unlock()

	s.broadcast(subs)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close drops all subscriptions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.subs = make(map[int]*memorySub)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored messages.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type subDelivery struct {
	window  []models.Message
	onBatch BatchFunc
}

func (s *MemoryStore) windowLocked(limit int) []models.Message {
	msgs := s.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...)
}

func (s *MemoryStore) snapshotSubsLocked() []subDelivery {
	out := make([]subDelivery, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, subDelivery{window: s.windowLocked(sub.limit), onBatch: sub.onBatch})
	}
	return out
}

// broadcast delivers windows outside the lock so a callback can call back
// into the store.
func (s *MemoryStore) broadcast(subs []subDelivery) {
	for _, d := range subs {
		d.onBatch(d.window)
	}
}
