package logs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/ws"
)

type memoryLogRepo struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (m *memoryLogRepo) AppendLog(_ context.Context, entry *domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryLogRepo) ListLogsByChannel(_ context.Context, channel string, limit, offset int) ([]domain.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LogEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Channel == channel {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type chanSubscriber struct {
	ch chan []byte
}

func (c chanSubscriber) Send(payload []byte) error {
	c.ch <- payload
	return nil
}

func (c chanSubscriber) Close() {}

func TestAppendPersistsAndBroadcasts(t *testing.T) {
	repo := &memoryLogRepo{}
	hub := ws.NewHub()
	defer hub.Close()
	svc := New(repo, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sub := chanSubscriber{ch: make(chan []byte, 1)}
	hub.Register("domain-shop.example.com", sub)

	if err := svc.Append(context.Background(), "domain-shop.example.com", "Starting Check for shop.example.com"); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	select {
	case payload := <-sub.ch:
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if decoded["message"] != "Starting Check for shop.example.com" || decoded["channel"] != "domain-shop.example.com" {
			t.Fatalf("unexpected payload %v", decoded)
		}
	case <-time.After(time.Second):
		t.Fatal("expected broadcast")
	}

	entries, err := svc.List(context.Background(), "domain-shop.example.com", 10, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 1 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestAppendRequiresChannel(t *testing.T) {
	svc := New(&memoryLogRepo{}, nil, nil)
	if err := svc.Append(context.Background(), " ", "x"); err == nil {
		t.Fatal("expected error for empty channel")
	}
}
