package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/config"
	"github.com/takiindev/chat-private/internal/models"
	"github.com/takiindev/chat-private/internal/store"
)

const version = "0.1.0"

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.MessageStore
	hub    *Hub
	cfg    *config.Config
	logger zerolog.Logger
}

// NewHandler creates a Handler backed by the given store and hub.
func NewHandler(st store.MessageStore, hub *Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  st,
		hub:    hub,
		cfg:    cfg,
		logger: logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// SendMessage handles POST /chat/send: validates, persists and fans the
// committed message out to attached websocket sessions.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		h.Error(w, http.StatusBadRequest, "text is required")
		return
	}
	if len(msg.Text) > h.cfg.MaxMessageLength {
		h.Error(w, http.StatusBadRequest, "text exceeds maximum length")
		return
	}
	if msg.UserID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	if msg.Kind == "" {
		msg.Kind = models.KindNormal
	}

	id, ts, err := h.store.Persist(r.Context(), &msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("persist failed")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	msg.ID = id
	msg.Timestamp = ts
	h.broadcastMessage(&msg)

	h.JSON(w, http.StatusCreated, map[string]interface{}{
		"id":        id,
		"timestamp": ts,
	})
}

// GetMessages handles GET /chat/messages?limit=: returns the current
// window, ascending by timestamp.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.MaxMessages
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	messages, err := h.store.FetchPage(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("fetch failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

// PruneMessages handles POST /chat/prune: deletes all but the most recent
// keep messages. Safe to call redundantly.
func (h *Handler) PruneMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keep int `json:"keep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Keep < 0 || req.Keep > h.cfg.MaxMessages {
		req.Keep = h.cfg.MaxMessages
	}

	if err := h.store.PruneOldest(r.Context(), req.Keep); err != nil {
		h.logger.Error().Err(err).Msg("prune failed")
		h.Error(w, http.StatusInternalServerError, "failed to prune messages")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// broadcastMessage fans a committed message out as a chat_message frame.
func (h *Handler) broadcastMessage(msg *models.Message) {
	payload, err := json.Marshal(models.ChatFrame{Type: models.FrameChatMessage, Message: *msg})
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal broadcast frame")
		return
	}
	h.hub.Broadcast(payload, "")
}
