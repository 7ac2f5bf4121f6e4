package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/queue"
)

type memoryEventRepo struct {
	mu        sync.Mutex
	events    []domain.Event
	deleteErr map[string]error
}

func (m *memoryEventRepo) InsertEvent(_ context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryEventRepo) ListEvents(_ context.Context, slug string, _, _ int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if slug == "" || e.Slug == slug {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryEventRepo) ListEventIDsBefore(_ context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, e := range m.events {
		if e.CreatedAt.Before(before) && len(ids) < limit {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

func (m *memoryEventRepo) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			break
		}
	}
	return nil
}

type memoryWebhookRepo struct {
	hooks []domain.Webhook
}

func (m *memoryWebhookRepo) CreateWebhook(_ context.Context, hook *domain.Webhook) error {
	m.hooks = append(m.hooks, *hook)
	return nil
}

func (m *memoryWebhookRepo) GetWebhook(context.Context, string) (*domain.Webhook, error) {
	return nil, nil
}

func (m *memoryWebhookRepo) ListWebhooks(context.Context) ([]domain.Webhook, error) {
	return m.hooks, nil
}

func (m *memoryWebhookRepo) ListActiveWebhooksByEvent(_ context.Context, slug string) ([]domain.Webhook, error) {
	var out []domain.Webhook
	for _, h := range m.hooks {
		if h.Active && h.Event == slug {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memoryWebhookRepo) IncrementWebhookCount(context.Context, string) error { return nil }

func (m *memoryWebhookRepo) DeleteWebhook(context.Context, string) error { return nil }

type recordingLogs struct {
	lines map[string][]string
}

func (r *recordingLogs) Append(_ context.Context, channel, message string) error {
	if r.lines == nil {
		r.lines = make(map[string][]string)
	}
	r.lines[channel] = append(r.lines[channel], message)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memoryEventRepo, *memoryWebhookRepo, *queue.MemoryQueue, *recordingLogs) {
	t.Helper()
	events := &memoryEventRepo{}
	hooks := &memoryWebhookRepo{}
	q := queue.NewMemoryQueue()
	logs := &recordingLogs{}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	m := New(events, hooks, q, logs, nil, logger, Config{Version: "1.2.3", ThresholdDays: 1})
	return m, events, hooks, q, logs
}

func domainPayload() map[string]any {
	return map[string]any{
		"domain_id":      "d1",
		"domain":         "shop.example.com",
		"site_id":        "7",
		"stage":          "checking-dns",
		"secure":         false,
		"primary_domain": false,
	}
}

func TestDoRejectsUnknownEvent(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	err := m.Do(context.Background(), "site_exploded", map[string]any{})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDoRequiresSamplePayloadKeys(t *testing.T) {
	m, events, _, _, _ := newTestManager(t)
	payload := domainPayload()
	delete(payload, "site_id")

	err := m.Do(context.Background(), EventDomainCreated, payload)
	if !errors.Is(err, ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got %v", err)
	}
	if got := err.Error(); got != "events: param required: site_id" {
		t.Fatalf("expected missing key in error, got %q", got)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected nothing persisted, got %d events", len(events.events))
	}
}

func TestDoPublishesPersistsAndFansOut(t *testing.T) {
	m, events, hooks, q, _ := newTestManager(t)
	hooks.hooks = []domain.Webhook{
		{ID: "h1", Event: EventDomainCreated, Active: true},
		{ID: "h2", Event: EventDomainCreated, Active: false},
		{ID: "h3", Event: EventPaymentReceived, Active: true},
	}

	var (
		specific []string
		wildcard []string
	)
	m.Bus().Subscribe(EventDomainCreated, func(_ context.Context, slug string, payload map[string]any) {
		specific = append(specific, slug)
		if payload["version"] != "1.2.3" {
			t.Errorf("expected version in payload, got %v", payload["version"])
		}
	})
	m.Bus().Subscribe(Wildcard, func(_ context.Context, slug string, _ map[string]any) {
		wildcard = append(wildcard, slug)
	})

	if err := m.Do(context.Background(), EventDomainCreated, domainPayload()); err != nil {
		t.Fatalf("Do returned error: %v", err)
	}

	if len(specific) != 1 || len(wildcard) != 1 {
		t.Fatalf("expected one specific and one wildcard delivery, got %v / %v", specific, wildcard)
	}
	if len(events.events) != 1 || events.events[0].Slug != EventDomainCreated {
		t.Fatalf("expected persisted domain_created, got %+v", events.events)
	}
	var stored map[string]any
	if err := json.Unmarshal(events.events[0].Payload, &stored); err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if stored["domain"] != "shop.example.com" || stored["version"] != "1.2.3" {
		t.Fatalf("unexpected stored payload %v", stored)
	}

	pending := q.Pending(queue.DefaultGroup)
	if len(pending) != 1 || pending[0].Name != queue.TaskWebhookDelivery {
		t.Fatalf("expected one webhook delivery task, got %+v", pending)
	}
	var args DeliveryArgs
	if err := pending[0].Decode(&args); err != nil {
		t.Fatalf("decode delivery args: %v", err)
	}
	if args.WebhookID != "h1" || args.EventID != events.events[0].ID {
		t.Fatalf("unexpected delivery args %+v", args)
	}
}

func TestLogTransitionSkipsExcludedAndEmptyDiffs(t *testing.T) {
	m, events, _, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.LogTransition(ctx, "domain", "d1", []Change{{Key: "updated_at", Old: 1, New: 2}, {Key: "stage", Old: "done", New: "done"}}, domain.InitiatorSystem); err != nil {
		t.Fatalf("LogTransition returned error: %v", err)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected empty diff to be skipped, got %+v", events.events)
	}

	changes := []Change{{Key: "stage", Old: "checking-dns", New: "checking-ssl-cert"}}
	if err := m.LogTransition(ctx, "domain", "d1", changes, domain.InitiatorManual); err != nil {
		t.Fatalf("LogTransition returned error: %v", err)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one transition event, got %d", len(events.events))
	}
	e := events.events[0]
	if e.Slug != EventDomainChanged || e.ObjectType != "domain" || e.ObjectID != "d1" || e.Initiator != domain.InitiatorManual {
		t.Fatalf("unexpected transition event %+v", e)
	}

	if err := m.LogTransition(ctx, "invoice", "i1", changes, domain.InitiatorSystem); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent for unregistered object, got %v", err)
	}
}

func TestCleanOldDeletesBatchAndLogs(t *testing.T) {
	m, events, _, q, logs := newTestManager(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		events.events = append(events.events, domain.Event{ID: string(rune('a' + i)), Slug: EventDomainCreated, CreatedAt: now.Add(-48 * time.Hour)})
	}
	events.events = append(events.events, domain.Event{ID: "fresh", Slug: EventDomainCreated, CreatedAt: now.Add(-time.Hour)})
	events.deleteErr = map[string]error{"b": errors.New("locked")}

	if err := m.HandleCleanTask(context.Background(), queue.Task{Name: queue.TaskCleanOldEvents}); err != nil {
		t.Fatalf("HandleCleanTask returned error: %v", err)
	}
	if len(events.events) != 2 {
		t.Fatalf("expected failed and fresh events to remain, got %+v", events.events)
	}
	lines := logs.lines["cron"]
	if len(lines) != 1 || lines[0] != "Removed 2 events successfully. Failed to remove 1 events." {
		t.Fatalf("unexpected cron log %v", lines)
	}
	pending := q.Pending(queue.DefaultGroup)
	if len(pending) != 1 || !pending[0].RunAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("expected next cleanup in 24h, got %+v", pending)
	}
}

func TestCleanOldDisabledWithZeroThreshold(t *testing.T) {
	m, events, _, _, logs := newTestManager(t)
	m.cfg.ThresholdDays = 0
	events.events = []domain.Event{{ID: "old", CreatedAt: time.Now().Add(-100 * 24 * time.Hour)}}

	removed, failed, err := m.CleanOld(context.Background())
	if err != nil || removed != 0 || failed != 0 {
		t.Fatalf("expected disabled cleanup, got %d %d %v", removed, failed, err)
	}
	if len(events.events) != 1 || len(logs.lines) != 0 {
		t.Fatal("expected no deletions or logs when disabled")
	}
}

func TestTypesIncludesBuiltins(t *testing.T) {
	m, _, _, _, _ := newTestManager(t)
	types := m.Types()
	slugs := make(map[string]TypeInfo)
	for _, ti := range types {
		slugs[ti.Slug] = ti
	}
	for _, want := range []string{EventPaymentReceived, EventDomainCreated, EventDNSPropagationFinished, EventDomainChanged} {
		if _, ok := slugs[want]; !ok {
			t.Fatalf("expected built-in %s in %v", want, types)
		}
	}
	if slugs[EventPaymentReceived].Payload["payment_id"] == nil {
		t.Fatal("expected evaluated sample payload")
	}
}
