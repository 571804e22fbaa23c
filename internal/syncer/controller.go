// Package syncer bridges the backing store's push channel to the local
// message log and owns the subscription lifecycle.
package syncer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/history"
	"github.com/takiindev/chat-private/internal/metrics"
	"github.com/takiindev/chat-private/internal/models"
	"github.com/takiindev/chat-private/internal/store"
)

// Mode selects how the controller observes the store. It is fixed at
// startup and not hot-swappable mid-session.
type Mode int

const (
	// Push subscribes to the store's live window and merges every batch.
	Push Mode = iota
	// PollOnce fetches the window a single time at startup.
	PollOnce
)

// InFlightChecker reports whether a local send is outstanding. Batches that
// arrive while one is are suppressed so the sender's own unconfirmed write
// is not double-processed; a later redelivery converges the log.
type InFlightChecker interface {
	InFlight() bool
}

// Controller wires store batches into the message log.
type Controller struct {
	log     *history.Log
	store   store.MessageStore
	mode    Mode
	limit   int
	sending InFlightChecker
	logger  zerolog.Logger

	mu          sync.Mutex
	unsubscribe func()
}

// New creates a Controller. sending may be nil when no send pipeline shares
// the log (e.g. a read-only viewer).
func New(log *history.Log, st store.MessageStore, mode Mode, limit int, sending InFlightChecker, logger zerolog.Logger) *Controller {
	return &Controller{
		log:     log,
		store:   st,
		mode:    mode,
		limit:   limit,
		sending: sending,
		logger:  logger.With().Str("component", "syncer").Logger(),
	}
}

// Start begins observing the store. In Push mode it opens the subscription;
// in PollOnce mode it performs a single bounded fetch. A running
// subscription is released before a new one is opened.
func (c *Controller) Start(ctx context.Context) error {
	c.Stop()

	if c.mode == PollOnce {
		window, err := c.store.FetchPage(ctx, c.limit)
		if err != nil {
			// The log keeps its stale-but-consistent view.
			c.logger.Error().Err(err).Msg("initial fetch failed")
			return err
		}
		c.log.Merge(window)
		return nil
	}

	unsubscribe, err := c.store.Subscribe(ctx, c.limit, c.onBatch)
	if err != nil {
		c.logger.Error().Err(err).Msg("subscribe failed")
		return err
	}

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return nil
}

// Stop releases the active subscription. It is a no-op if none is active.
func (c *Controller) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Controller) onBatch(batch []models.Message) {
	metrics.BatchesReceived.Inc()
	if c.sending != nil && c.sending.InFlight() {
		// Local echo of an unconfirmed write; skip this snapshot. The
		// window is redelivered on the next change, so the log still
		// converges to the authoritative state.
		metrics.BatchesSkipped.Inc()
		c.logger.Debug().Int("batch", len(batch)).Msg("skipping snapshot during in-flight send")
		return
	}
	c.log.Merge(batch)
}
