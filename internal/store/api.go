package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/models"
)

// defaultPollInterval paces the API store's subscription, which degrades
// push semantics to bounded polling of the same window.
const defaultPollInterval = 3 * time.Second

// APIStore talks to a chatd instance over its JSON HTTP API. It is the
// store to use when the client cannot reach Redis directly.
type APIStore struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       zerolog.Logger
}

// NewAPIStore creates a store client for the given chatd base URL.
func NewAPIStore(baseURL string, logger zerolog.Logger) *APIStore {
	return &APIStore{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		pollInterval: defaultPollInterval,
		logger:       logger.With().Str("component", "api-store").Logger(),
	}
}

// doRequest performs an HTTP request and decodes error payloads.
func (s *APIStore) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chatd error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// sendResponse is the response from persisting a message.
type sendResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// messagesResponse is the response from fetching the window.
type messagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// Persist posts the message to /chat/send.
func (s *APIStore) Persist(ctx context.Context, msg *models.Message) (string, int64, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", 0, err
	}

	respBody, err := s.doRequest(ctx, http.MethodPost, "/chat/send", body)
	if err != nil {
		return "", 0, err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", 0, err
	}
	return resp.ID, resp.Timestamp, nil
}

// FetchPage retrieves up to limit messages, ascending by timestamp.
func (s *APIStore) FetchPage(ctx context.Context, limit int) ([]models.Message, error) {
	respBody, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/chat/messages?limit=%d", limit), nil)
	if err != nil {
		return nil, err
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Subscribe polls the window at a fixed interval. The initial window is
// delivered before returning.
func (s *APIStore) Subscribe(ctx context.Context, limit int, onBatch BatchFunc) (func(), error) {
	initial, err := s.FetchPage(ctx, limit)
	if err != nil {
		return nil, err
	}
	onBatch(initial)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				window, err := s.FetchPage(ctx, limit)
				if err != nil {
					s.logger.Warn().Err(err).Msg("window poll failed")
					continue
				}
				onBatch(window)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}, nil
}

// PruneOldest asks chatd to delete all but the most recent keep messages.
func (s *APIStore) PruneOldest(ctx context.Context, keep int) error {
	body, err := json.Marshal(map[string]int{"keep": keep})
	if err != nil {
		return err
	}
	_, err = s.doRequest(ctx, http.MethodPost, "/chat/prune", body)
	return err
}

// Ping checks the chatd health endpoint.
func (s *APIStore) Ping(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (s *APIStore) Close() error { return nil }
