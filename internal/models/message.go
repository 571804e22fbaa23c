package models

// Kind classifies how a message is rendered. Non-normal kinds are shown as
// centered banners but are ordered exactly like normal messages.
type Kind string

const (
	KindNormal       Kind = "normal"
	KindSystem       Kind = "system"
	KindAnnouncement Kind = "announcement"
	KindBroadcast    Kind = "broadcast"
	KindNotify       Kind = "notify"
)

// Message represents a single entry in the shared chat log.
type Message struct {
	ID        string `json:"id,omitempty"`        // ULID, assigned by the store on persist
	UserID    string `json:"userId"`              // Participant UUID
	Name      string `json:"name"`                // Display name at send time
	Text      string `json:"text"`                // Message body
	Kind      Kind   `json:"kind,omitempty"`      // Defaults to normal when empty
	Timestamp int64  `json:"timestamp,omitempty"` // Unix ms, server-assigned ordering key
	CreatedAt int64  `json:"createdAt"`           // Unix ms, client-side fallback ordering key
	Pending   bool   `json:"-"`                   // Optimistic draft not yet acknowledged
}

// SortKey returns the ordering key for the log: the server timestamp once
// assigned, the client-side creation time until then.
func (m *Message) SortKey() int64 {
	if m.Timestamp > 0 {
		return m.Timestamp
	}
	return m.CreatedAt
}

// IsBanner reports whether the message renders as a centered banner
// rather than a regular chat bubble.
func (m *Message) IsBanner() bool {
	switch m.Kind {
	case KindSystem, KindAnnouncement, KindBroadcast, KindNotify:
		return true
	}
	return false
}

// Equal reports whether two messages carry the same content. The log's merge
// uses it to decide between replace-in-place and ignore.
func (m *Message) Equal(other *Message) bool {
	return m.ID == other.ID &&
		m.UserID == other.UserID &&
		m.Name == other.Name &&
		m.Text == other.Text &&
		m.Kind == other.Kind &&
		m.Timestamp == other.Timestamp &&
		m.CreatedAt == other.CreatedAt
}
