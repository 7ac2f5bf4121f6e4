package ws

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	messages []string
	fail     bool
	closed   bool
}

func (r *recordingSubscriber) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broken pipe")
	}
	r.messages = append(r.messages, string(payload))
	return nil
}

func (r *recordingSubscriber) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingSubscriber) snapshot() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...), r.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubBroadcastsPerChannel(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	hub.Register("domain-shop.example.com", a)
	hub.Register("domain-other.example.com", b)
	waitFor(t, func() bool { return hub.Subscribers("domain-shop.example.com") == 1 })

	hub.Broadcast("domain-shop.example.com", []byte("Starting Check for shop.example.com"))
	waitFor(t, func() bool {
		msgs, _ := a.snapshot()
		return len(msgs) == 1
	})
	if msgs, _ := b.snapshot(); len(msgs) != 0 {
		t.Fatalf("expected other channel to stay quiet, got %v", msgs)
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	bad := &recordingSubscriber{fail: true}
	hub.Register("cron", bad)
	waitFor(t, func() bool { return hub.Subscribers("cron") == 1 })
	hub.Broadcast("cron", []byte("x"))
	waitFor(t, func() bool { return hub.Subscribers("cron") == 0 })
	if _, closed := bad.snapshot(); !closed {
		t.Fatal("expected failing subscriber to be closed")
	}
}

func TestHubCloseClosesClients(t *testing.T) {
	hub := NewHub()
	sub := &recordingSubscriber{}
	hub.Register("cron", sub)
	waitFor(t, func() bool { return hub.Subscribers("cron") == 1 })
	hub.Close()
	waitFor(t, func() bool {
		_, closed := sub.snapshot()
		return closed
	})
	hub.Broadcast("cron", []byte("ignored"))
}

func TestSSEClientFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := client.Send([]byte(`{"message":"hi"}`)); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if err := client.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat returned error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "data: {\"message\":\"hi\"}\n\n") || !strings.Contains(body, ": ping\n\n") {
		t.Fatalf("unexpected SSE body %q", body)
	}
	client.Close()
	select {
	case <-client.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	if err := client.Send([]byte("late")); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
}
