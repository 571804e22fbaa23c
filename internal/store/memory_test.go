package store

import (
	"context"
	"testing"

	"github.com/takiindev/chat-private/internal/models"
)

func persistN(t *testing.T, s *MemoryStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, _, err := s.Persist(context.Background(), &models.Message{UserID: "u1", Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMemoryPersistAssignsIDAndTimestamp(t *testing.T) {
	s := NewMemoryStore()

	id, ts, err := s.Persist(context.Background(), &models.Message{UserID: "u1", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" || ts == 0 {
		t.Fatalf("expected assigned id and timestamp, got %q/%d", id, ts)
	}

	id2, ts2, err := s.Persist(context.Background(), &models.Message{UserID: "u1", Text: "again"})
	if err != nil {
		t.Fatal(err)
	}
	if id2 == id {
		t.Fatal("ids must be unique")
	}
	if ts2 <= ts {
		t.Fatalf("timestamps must be strictly increasing: %d then %d", ts, ts2)
	}
}

func TestMemoryFetchPageAscendingCapped(t *testing.T) {
	s := NewMemoryStore()
	persistN(t, s, 10)

	page, err := s.FetchPage(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i-1].Timestamp >= page[i].Timestamp {
			t.Fatal("page must ascend by timestamp")
		}
	}
}

func TestMemorySubscribeDeliversFullWindow(t *testing.T) {
	s := NewMemoryStore()
	persistN(t, s, 2)

	var batches [][]models.Message
	unsubscribe, err := s.Subscribe(context.Background(), 10, func(msgs []models.Message) {
		batches = append(batches, msgs)
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("expected immediate initial window of 2, got %+v", batches)
	}

	persistN(t, s, 1)
	if len(batches) != 2 || len(batches[1]) != 3 {
		t.Fatalf("expected redelivered window of 3, got %d batches", len(batches))
	}

	unsubscribe()
	unsubscribe() // calling twice is safe
	persistN(t, s, 1)
	if len(batches) != 2 {
		t.Fatal("unsubscribed callback must not fire")
	}
}

func TestMemoryPruneOldest(t *testing.T) {
	s := NewMemoryStore()
	persistN(t, s, 10)

	if err := s.PruneOldest(context.Background(), 6); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 6 {
		t.Fatalf("expected 6 remaining, got %d", s.Len())
	}

	// Redundant prune from a concurrent client is harmless.
	if err := s.PruneOldest(context.Background(), 6); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 6 {
		t.Fatalf("expected 6 remaining after redundant prune, got %d", s.Len())
	}

	page, _ := s.FetchPage(context.Background(), 10)
	if len(page) != 6 {
		t.Fatalf("expected 6 in window, got %d", len(page))
	}
}
