// Package history maintains the locally-observed ordered chat log: a
// deduplicated, capacity-bounded sequence of messages that is the single
// source of truth for what gets rendered.
package history

import (
	"sort"
	"sync"

	"github.com/takiindev/chat-private/internal/metrics"
	"github.com/takiindev/chat-private/internal/models"
)

// Entry is an opaque handle to an optimistically appended pending message.
// It stays valid until the entry is committed, rolled back or pruned.
type Entry struct {
	msg *models.Message
}

// Log is an ordered, deduplicated in-memory message sequence. Committed
// messages sort ascending by (timestamp ?? createdAt); pending messages
// always sort after every committed one, since no other participant can
// have observed them yet. All methods are safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	entries  []*models.Message
	watchers map[int]func()
	nextID   int
}

// New creates an empty Log.
func New() *Log {
	return &Log{watchers: make(map[int]func())}
}

// OnChange registers fn to run after every mutation that changed the log.
// The returned function removes the registration.
func (l *Log) OnChange(fn func()) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.watchers[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.watchers, id)
		l.mu.Unlock()
	}
}

// Merge reconciles a batch of committed messages into the log. It is
// idempotent under redelivery: entries are keyed by id, an already-present
// message is replaced in place only if its content differs, and new messages
// are inserted at the position that keeps the log ordered. Messages without
// an id are ignored; merge never removes anything.
func (l *Log) Merge(batch []models.Message) {
	l.mu.Lock()
	changed := false
	for i := range batch {
		in := batch[i]
		if in.ID == "" {
			continue
		}
		in.Pending = false
		if idx := l.indexOf(in.ID); idx >= 0 {
			if l.entries[idx].Equal(&in) {
				continue
			}
			*l.entries[idx] = in
		} else {
			m := in
			l.entries = append(l.entries, &m)
		}
		metrics.MessagesMerged.Inc()
		changed = true
	}
	if changed {
		l.resort()
	}
	l.finish(changed)
}

// Append adds a pending message at the tail and returns its handle.
func (l *Log) Append(pending models.Message) *Entry {
	pending.Pending = true
	pending.ID = ""
	m := &pending
	l.mu.Lock()
	l.entries = append(l.entries, m)
	l.finish(true)
	return &Entry{msg: m}
}

// Commit assigns the server id and timestamp to a previously pending entry
// and re-sorts it into position. If the committed version already arrived
// through a push batch, the pending duplicate is dropped instead. Commit is
// a no-op when the handle is no longer in the log.
func (l *Log) Commit(h *Entry, id string, timestamp int64) {
	if h == nil {
		return
	}
	l.mu.Lock()
	idx := l.indexOfEntry(h.msg)
	if idx < 0 {
		l.finish(false)
		return
	}
	if dup := l.indexOf(id); dup >= 0 {
		// The push subscription delivered the committed copy first; coalesce.
		l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
		l.finish(true)
		return
	}
	h.msg.ID = id
	h.msg.Timestamp = timestamp
	h.msg.Pending = false
	l.resort()
	l.finish(true)
}

// Rollback removes a pending entry from the log. It is a no-op when the
// handle was already committed or pruned.
func (l *Log) Rollback(h *Entry) {
	if h == nil {
		return
	}
	l.mu.Lock()
	idx := l.indexOfEntry(h.msg)
	if idx < 0 || !h.msg.Pending {
		l.finish(false)
		return
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	l.finish(true)
}

// Prune evicts the oldest entries until at most cap remain and returns the
// removed messages, oldest first.
func (l *Log) Prune(cap int) []models.Message {
	if cap < 0 {
		cap = 0
	}
	l.mu.Lock()
	if len(l.entries) <= cap {
		l.finish(false)
		return nil
	}
	n := len(l.entries) - cap
	removed := make([]models.Message, n)
	for i := 0; i < n; i++ {
		removed[i] = *l.entries[i]
	}
	l.entries = append([]*models.Message(nil), l.entries[n:]...)
	metrics.MessagesPruned.Add(float64(n))
	l.finish(true)
	return removed
}

// Snapshot returns a copy of the current ordered log.
func (l *Log) Snapshot() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// indexOf returns the position of the committed entry with the given id.
func (l *Log) indexOf(id string) int {
	for i, e := range l.entries {
		if e.ID == id && e.ID != "" {
			return i
		}
	}
	return -1
}

// indexOfEntry locates an entry by handle identity.
func (l *Log) indexOfEntry(msg *models.Message) int {
	for i, e := range l.entries {
		if e == msg {
			return i
		}
	}
	return -1
}

// resort restores the ordering invariant. The sort is stable so entries with
// equal keys keep their arrival order.
func (l *Log) resort() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		a, b := l.entries[i], l.entries[j]
		if a.Pending != b.Pending {
			return b.Pending
		}
		return a.SortKey() < b.SortKey()
	})
}

// finish updates the size gauge, releases the lock and notifies watchers
// when the log changed. Must be called with the lock held.
func (l *Log) finish(changed bool) {
	metrics.LogSize.Set(float64(len(l.entries)))
	var fns []func()
	if changed {
		fns = make([]func(), 0, len(l.watchers))
		for _, fn := range l.watchers {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
