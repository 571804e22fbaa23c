package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/takiindev/chat-private/internal/models"
)

func TestAPIStorePersist(t *testing.T) {
	var got models.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/send" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "m1", "timestamp": 1234})
	}))
	defer srv.Close()

	s := NewAPIStore(srv.URL, zerolog.Nop())
	id, ts, err := s.Persist(context.Background(), &models.Message{UserID: "u1", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "m1" || ts != 1234 {
		t.Fatalf("unexpected result: %s/%d", id, ts)
	}
	if got.Text != "hi" {
		t.Fatalf("server saw %q", got.Text)
	}
}

func TestAPIStorePersistErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "text is required"})
	}))
	defer srv.Close()

	s := NewAPIStore(srv.URL, zerolog.Nop())
	_, _, err := s.Persist(context.Background(), &models.Message{UserID: "u1"})
	if err == nil {
		t.Fatal("expected error from 400 response")
	}
}

func TestAPIStoreFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/messages" || r.URL.Query().Get("limit") != "50" {
			t.Errorf("unexpected request: %s", r.URL.String())
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []models.Message{
				{ID: "m1", UserID: "u1", Text: "a", Timestamp: 1},
				{ID: "m2", UserID: "u1", Text: "b", Timestamp: 2},
			},
		})
	}))
	defer srv.Close()

	s := NewAPIStore(srv.URL, zerolog.Nop())
	page, err := s.FetchPage(context.Background(), 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "m1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestAPIStoreSubscribePolls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []models.Message{{ID: "m1", UserID: "u1", Text: "a", Timestamp: 1}},
		})
	}))
	defer srv.Close()

	s := NewAPIStore(srv.URL, zerolog.Nop())
	s.pollInterval = 5 * time.Millisecond

	batches := make(chan []models.Message, 16)
	unsubscribe, err := s.Subscribe(context.Background(), 50, func(msgs []models.Message) {
		batches <- msgs
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	// Initial window plus at least one poll.
	for i := 0; i < 2; i++ {
		select {
		case batch := <-batches:
			if len(batch) != 1 {
				t.Fatalf("unexpected batch: %+v", batch)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for batch")
		}
	}
}

func TestAPIStorePrune(t *testing.T) {
	var keep int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/prune" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Keep int `json:"keep"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		keep = req.Keep
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	s := NewAPIStore(srv.URL, zerolog.Nop())
	if err := s.PruneOldest(context.Background(), 200); err != nil {
		t.Fatal(err)
	}
	if keep != 200 {
		t.Fatalf("expected keep=200, got %d", keep)
	}
}
