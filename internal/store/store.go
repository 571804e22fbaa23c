// Package store provides access to the backing message collection: persist,
// bounded page fetch, full-window push subscription and retention pruning.
package store

import (
	"context"

	"github.com/takiindev/chat-private/internal/models"
)

// BatchFunc receives the full current window of committed messages,
// ascending by timestamp and capped at the subscription limit. It is invoked
// again on every change, so deliveries overlap and repeat; consumers must
// reconcile idempotently.
type BatchFunc func(messages []models.Message)

// MessageStore defines the interface to the backing message collection.
// RedisStore, APIStore and MemoryStore implement this interface.
type MessageStore interface {
	// Persist appends a message and returns its store-assigned id and
	// server timestamp (unix ms).
	Persist(ctx context.Context, msg *models.Message) (id string, timestamp int64, err error)

	// FetchPage returns up to limit messages, ascending by timestamp.
	FetchPage(ctx context.Context, limit int) ([]models.Message, error)

	// Subscribe delivers the current window to onBatch now and after every
	// change. The returned function releases the subscription; calling it
	// more than once is safe.
	Subscribe(ctx context.Context, limit int, onBatch BatchFunc) (func(), error)

	// PruneOldest deletes all but the most recent keep messages. It is
	// idempotent and safe to call redundantly from concurrent clients.
	PruneOldest(ctx context.Context, keep int) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
