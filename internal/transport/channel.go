// Package transport implements the companion push path: a reconnecting
// websocket connection that re-emits inbound frames as typed events and
// recovers from unclean closes with bounded exponential backoff.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/metrics"
	"github.com/takiindev/chat-private/internal/models"
)

// State is the connection lifecycle state, owned exclusively by the Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	ReconnectScheduled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ReconnectScheduled:
		return "reconnect-scheduled"
	default:
		return "disconnected"
	}
}

// Built-in event names. Every inbound frame additionally fires an event
// named after its "type" field.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventMessage      = "message"
)

// ErrReconnectExhausted is delivered as an error event once the retry
// budget is spent.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Event is delivered to registered handlers. Frame is set for message and
// per-type events; Err is set for error events.
type Event struct {
	Name  string
	Frame *models.Frame
	Err   error
}

// Handler receives channel events.
type Handler func(Event)

// Subscription identifies one handler registration.
type Subscription struct {
	ch    *Channel
	event string
	id    int
}

// Off removes the registration. Calling it more than once is safe.
func (s *Subscription) Off() {
	if s == nil || s.ch == nil {
		return
	}
	s.ch.mu.Lock()
	if handlers, ok := s.ch.handlers[s.event]; ok {
		delete(handlers, s.id)
	}
	s.ch.mu.Unlock()
	s.ch = nil
}

// Channel is a reconnecting websocket connection. The zero value is not
// usable; construct with NewChannel.
type Channel struct {
	url         string
	baseDelay   time.Duration
	maxAttempts int
	logger      zerolog.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	userID         string
	attempts       int
	dialing        bool
	intentional    bool
	reconnectTimer *time.Timer
	handlers       map[string]map[int]Handler
	nextHandlerID  int

	writeMu sync.Mutex
}

// NewChannel creates a Channel for the given websocket URL. baseDelay and
// maxAttempts bound the reconnect policy.
func NewChannel(wsURL string, baseDelay time.Duration, maxAttempts int, logger zerolog.Logger) *Channel {
	return &Channel{
		url:         wsURL,
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "transport").Logger(),
		handlers:    make(map[string]map[int]Handler),
	}
}

// On registers a handler for the named event and returns its subscription
// handle. Handlers run on the channel's read goroutine.
func (c *Channel) On(event string, fn Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	id := c.nextHandlerID
	c.nextHandlerID++
	c.handlers[event][id] = fn
	return &Subscription{ch: c, event: event, id: id}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many reconnects have been scheduled since the last
// successful connection.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// BackoffDelay returns the reconnect delay for the given 1-based attempt:
// baseDelay doubled on every subsequent attempt.
func (c *Channel) BackoffDelay(attempt int) time.Duration {
	return c.baseDelay << (attempt - 1)
}

// Connect dials the server, carrying the participant id as a query
// parameter. A connect while a reconnect is pending cancels the timer first
// so at most one connection attempt is ever outstanding.
func (c *Channel) Connect(userID string) error {
	c.mu.Lock()
	if c.dialing || c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.userID = userID
	c.intentional = false
	c.dialing = true
	c.state = Connecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.dialURL(userID), nil)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("dial failed")
		c.emit(Event{Name: EventError, Err: err})
		c.scheduleReconnect()
		return err
	}
	if c.intentional {
		// Disconnect raced the dial; honor it.
		c.state = Disconnected
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info().Str("url", c.url).Msg("connected")
	c.emit(Event{Name: EventConnected})

	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection cleanly. It never triggers a reconnect
// and cancels any pending reconnect timer.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.attempts = 0
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Send marshals v as JSON and writes it as a text frame. It returns false
// without error when the channel is not currently connected.
func (c *Channel) Send(v any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Warn().Msg("send while not connected")
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal outbound frame")
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Msg("write failed")
		return false
	}
	return true
}

// SendChatMessage sends a chat message frame.
func (c *Channel) SendChatMessage(msg models.Message) bool {
	return c.Send(models.ChatFrame{Type: models.FrameChatMessage, Message: msg})
}

// SendTyping sends a typing indicator.
func (c *Channel) SendTyping(isTyping bool) bool {
	return c.Send(models.TypingFrame{Type: models.FrameTyping, UserID: c.userID, IsTyping: isTyping})
}

// JoinRoom announces presence in a room.
func (c *Channel) JoinRoom(roomID string) bool {
	return c.Send(models.RoomFrame{Type: models.FrameJoinRoom, RoomID: roomID})
}

// LeaveRoom announces departure from a room.
func (c *Channel) LeaveRoom(roomID string) bool {
	return c.Send(models.RoomFrame{Type: models.FrameLeaveRoom, RoomID: roomID})
}

func (c *Channel) dialURL(userID string) string {
	u, err := url.Parse(c.url)
	if err != nil {
		return c.url
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String()
}

// readLoop consumes inbound frames until the connection drops, then decides
// whether to reconnect.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		var frame models.Frame
		if jsonErr := json.Unmarshal(data, &frame); jsonErr != nil || frame.Type == "" {
			// Malformed payloads are dropped; the channel stays usable.
			metrics.FramesDropped.Inc()
			c.logger.Warn().Err(jsonErr).Msg("dropping malformed frame")
			continue
		}
		frame.Raw = append(json.RawMessage(nil), data...)

		c.emit(Event{Name: EventMessage, Frame: &frame})
		c.emit(Event{Name: frame.Type, Frame: &frame})
	}
}

func (c *Channel) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A Disconnect already swapped the connection out; nothing to do.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	clean := c.intentional || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	c.mu.Unlock()
	_ = conn.Close()

	c.logger.Info().Bool("clean", clean).Err(err).Msg("disconnected")
	c.emit(Event{Name: EventDisconnected, Err: err})

	if !clean {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or reports
// exhaustion once the attempt budget is spent.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.intentional || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.mu.Unlock()
		c.logger.Error().Int("attempts", c.maxAttempts).Msg("reconnect attempts exhausted")
		c.emit(Event{Name: EventError, Err: ErrReconnectExhausted})
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.BackoffDelay(attempt)
	c.state = ReconnectScheduled
	userID := c.userID
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.state != ReconnectScheduled {
			c.mu.Unlock()
			return
		}
		c.state = Disconnected
		c.reconnectTimer = nil
		c.mu.Unlock()
		_ = c.Connect(userID)
	})
	c.mu.Unlock()

	metrics.Reconnects.Inc()
	c.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("reconnect scheduled")
}

// emit delivers the event to every handler registered for its name. A
// panicking handler is logged and does not take the channel down.
func (c *Channel) emit(ev Event) {
	c.mu.Lock()
	fns := make([]Handler, 0, len(c.handlers[ev.Name]))
	for _, fn := range c.handlers[ev.Name] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().Str("event", ev.Name).Msg(fmt.Sprintf("handler panic: %v", r))
				}
			}()
			fn(ev)
		}()
	}
}
