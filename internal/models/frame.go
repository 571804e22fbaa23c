package models

import "encoding/json"

// Frame types exchanged over the websocket channel. Each frame is a JSON
// object whose "type" field discriminates the payload.
const (
	FrameChatMessage = "chat_message"
	FrameTyping      = "typing"
	FrameJoinRoom    = "join_room"
	FrameLeaveRoom   = "leave_room"
)

// Frame is the decoded envelope of an inbound websocket payload. Raw keeps
// the full original bytes so per-type handlers can decode their own shape.
type Frame struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// ChatFrame is a chat message carried over the websocket channel.
type ChatFrame struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// TypingFrame signals that a participant started or stopped typing.
type TypingFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// RoomFrame joins or leaves a room.
type RoomFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}
