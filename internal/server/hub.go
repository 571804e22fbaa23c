package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/takiindev/chat-private/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// session wraps a websocket and coordinates outbound writes via a buffered
// channel. Safe for concurrent use.
type session struct {
	ID     string
	UserID string

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func newSession(userID string, ws *websocket.Conn) *session {
	return &session{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, 128),
		close:  make(chan struct{}),
	}
}

// Send enqueues payload for delivery. If the client is slow and the buffer
// fills up, the session is closed to keep backpressure bounded.
func (s *session) Send(payload []byte) error {
	select {
	case <-s.close:
		return errors.New("session closed")
	case s.send <- payload:
		return nil
	default:
		s.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("session buffer exceeded")
	}
}

// Close terminates the session and stops the write loop.
func (s *session) Close(code int, reason string) {
	s.once.Do(func() {
		close(s.close)
		_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = s.ws.Close()
	})
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.close:
			return
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}

func (s *session) write(payload []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.TextMessage, payload)
}

func (s *session) ping() error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.ws.WriteMessage(websocket.PingMessage, nil)
}

// Hub tracks attached websocket sessions and fans frames out to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*session)}
}

// Attach registers the session and starts its write loop.
func (h *Hub) Attach(s *session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	metrics.WSConnections.Inc()

	go s.writeLoop()
}

// Detach removes the session if it is still tracked.
func (h *Hub) Detach(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	if ok {
		metrics.WSConnections.Dec()
	}
}

// Broadcast writes payload to every attached session. excludeUserID, when
// non-empty, prevents delivering to that participant's sessions.
func (h *Hub) Broadcast(payload []byte, excludeUserID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, s := range h.sessions {
		if excludeUserID != "" && s.UserID == excludeUserID {
			continue
		}
		if err := s.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// Close terminates all tracked sessions.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close(websocket.CloseGoingAway, "hub shutdown")
	}
}
