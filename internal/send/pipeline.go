// Package send orchestrates message submission: optimistic local append,
// remote persistence and rollback on failure, with at most one send in
// flight at a time.
package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/history"
	"github.com/takiindev/chat-private/internal/metrics"
	"github.com/takiindev/chat-private/internal/models"
	"github.com/takiindev/chat-private/internal/store"
)

var (
	// ErrEmptyMessage rejects input that is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong rejects input over the configured length bound.
	ErrMessageTooLong = errors.New("message exceeds maximum length")

	// ErrBusy rejects a submit while another send is still in flight.
	// Nothing is queued or dropped; the caller retries once the first
	// send resolves.
	ErrBusy = errors.New("a send is already in flight")
)

// RemoteError reports a failed persist. Draft carries the original trimmed
// text so the caller can restore it to an editable field.
type RemoteError struct {
	Draft string
	Err   error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Pipeline submits messages on behalf of one participant.
type Pipeline struct {
	log      *history.Log
	store    store.MessageStore
	user     *models.User
	maxLen   int
	capacity int
	inFlight atomic.Bool
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Pipeline. maxLen bounds the trimmed message length and
// capacity is the retention cap applied after a successful send.
func New(log *history.Log, st store.MessageStore, user *models.User, maxLen, capacity int, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		log:      log,
		store:    st,
		user:     user,
		maxLen:   maxLen,
		capacity: capacity,
		logger:   logger.With().Str("component", "send").Logger(),
		now:      time.Now,
	}
}

// InFlight reports whether a send is currently outstanding. The sync
// controller consults it to suppress acting on the local echo of an
// unconfirmed write.
func (p *Pipeline) InFlight() bool {
	return p.inFlight.Load()
}

// Submit validates raw input, optimistically appends it to the log, persists
// it and commits the returned id. On persist failure the optimistic entry is
// rolled back and the returned *RemoteError carries the draft text.
func (p *Pipeline) Submit(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return ErrEmptyMessage
	}
	if len(text) > p.maxLen {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return ErrMessageTooLong
	}

	// The guard must be taken before the first suspension point so a second
	// Submit observes it synchronously.
	if !p.inFlight.CompareAndSwap(false, true) {
		metrics.SendFailures.WithLabelValues("busy").Inc()
		return ErrBusy
	}
	defer p.inFlight.Store(false)

	pending := models.Message{
		UserID:    p.user.ID,
		Name:      p.user.Name,
		Text:      text,
		Kind:      models.KindNormal,
		CreatedAt: p.now().UnixMilli(),
	}
	handle := p.log.Append(pending)

	id, timestamp, err := p.store.Persist(ctx, &pending)
	if err != nil {
		p.log.Rollback(handle)
		metrics.SendFailures.WithLabelValues("remote").Inc()
		p.logger.Error().Err(err).Msg("persist failed, rolled back")
		return &RemoteError{Draft: text, Err: err}
	}

	p.log.Commit(handle, id, timestamp)
	metrics.MessagesSent.Inc()

	// Retention runs as a side effect of a successful send once the local
	// window exceeds the cap. The remote prune is a redundant-safe hint;
	// the store is the authority on what actually gets deleted.
	if p.log.Len() > p.capacity {
		p.log.Prune(p.capacity)
		if err := p.store.PruneOldest(ctx, p.capacity); err != nil {
			p.logger.Warn().Err(err).Msg("remote prune hint failed")
		}
	}

	return nil
}
