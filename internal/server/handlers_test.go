package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/config"
	"github.com/takiindev/chat-private/internal/models"
	"github.com/takiindev/chat-private/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := &config.Config{MaxMessages: 200, MaxMessageLength: 1000}
	router := NewRouter(zerolog.Nop(), st, NewHub(), cfg, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSendAndFetchMessages(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/chat/send", models.Message{UserID: "u1", Name: "Alice", Text: "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var sent struct {
		ID        string `json:"id"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		t.Fatal(err)
	}
	if sent.ID == "" || sent.Timestamp == 0 {
		t.Fatalf("expected id and timestamp, got %+v", sent)
	}

	getResp, err := http.Get(srv.URL + "/chat/messages?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()

	var page struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Count != 1 || page.Messages[0].ID != sent.ID || page.Messages[0].Text != "hello" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSendValidation(t *testing.T) {
	srv, st := newTestServer(t)

	cases := []models.Message{
		{UserID: "u1", Text: "   "},                          // blank
		{UserID: "", Text: "hi"},                             // missing user
		{UserID: "u1", Text: strings.Repeat("x", 1001)},      // over length
	}
	for i, msg := range cases {
		resp := postJSON(t, srv.URL+"/chat/send", msg)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, resp.StatusCode)
		}
	}
	if st.Len() != 0 {
		t.Fatalf("invalid messages must not be stored, found %d", st.Len())
	}
}

func TestPruneEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	for i := 0; i < 10; i++ {
		resp := postJSON(t, srv.URL+"/chat/send", models.Message{UserID: "u1", Text: "x"})
		resp.Body.Close()
	}

	resp := postJSON(t, srv.URL+"/chat/prune", map[string]int{"keep": 4})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if st.Len() != 4 {
		t.Fatalf("expected 4 remaining, got %d", st.Len())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", health.Status)
	}
}

func TestWebsocketRelay(t *testing.T) {
	srv, st := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	alice, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?userId=alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer alice.Close()

	bob, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?userId=bob", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bob.Close()

	frame := models.ChatFrame{
		Type:    models.FrameChatMessage,
		Message: models.Message{Name: "Alice", Text: "hi bob", CreatedAt: 1},
	}
	if err := alice.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.ChatFrame
	if err := bob.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Message.Text != "hi bob" || got.Message.UserID != "alice" {
		t.Fatalf("unexpected relayed frame: %+v", got)
	}
	if got.Message.ID == "" || got.Message.Timestamp == 0 {
		t.Fatal("relayed message must be committed")
	}
	if st.Len() != 1 {
		t.Fatalf("message must be persisted, store has %d", st.Len())
	}
}

func TestWebsocketRequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws", nil)
	if err == nil {
		t.Fatal("expected dial to fail without userId")
	}
	if resp != nil && resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
