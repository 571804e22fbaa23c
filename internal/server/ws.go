package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/takiindev/chat-private/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The chat is open to anonymous participants from any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS handles GET /ws: upgrades the connection, attaches it to the hub
// and consumes inbound frames until the client goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(userID, ws)
	h.hub.Attach(s)
	defer func() {
		h.hub.Detach(s)
		s.Close(websocket.CloseNormalClosure, "bye")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(r, s, data)
	}
}

// handleFrame routes one inbound frame. Malformed frames are dropped; the
// session stays usable.
func (h *Handler) handleFrame(r *http.Request, s *session, data []byte) {
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		h.logger.Warn().Str("user", s.UserID).Msg("dropping malformed frame")
		return
	}

	switch frame.Type {
	case models.FrameChatMessage:
		var cf models.ChatFrame
		if err := json.Unmarshal(data, &cf); err != nil {
			h.logger.Warn().Err(err).Msg("dropping undecodable chat frame")
			return
		}
		cf.Message.UserID = s.UserID
		id, ts, err := h.store.Persist(r.Context(), &cf.Message)
		if err != nil {
			h.logger.Error().Err(err).Msg("persist from websocket failed")
			return
		}
		cf.Message.ID = id
		cf.Message.Timestamp = ts
		h.broadcastMessage(&cf.Message)

	case models.FrameTyping, models.FrameJoinRoom, models.FrameLeaveRoom:
		// Presence-style frames are relayed to everyone else as-is.
		h.hub.Broadcast(data, s.UserID)

	default:
		h.logger.Warn().Str("type", frame.Type).Msg("dropping frame of unknown type")
	}
}
