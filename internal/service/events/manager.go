package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/queue"
	"github.com/splax/domainmap/internal/repository"
)

var (
	// ErrUnknownEvent is returned when firing a slug that was never registered.
	ErrUnknownEvent = errors.New("events: event not found")
	// ErrMissingParam is returned when a payload lacks a key of the registered sample.
	ErrMissingParam = errors.New("events: param required")
)

const (
	cleanBatchSize = 100
	cleanInterval  = 24 * time.Hour
)

// LogAppender writes lines to a named log channel.
type LogAppender interface {
	Append(ctx context.Context, channel, message string) error
}

// Config tunes the manager.
type Config struct {
	Version       string
	ThresholdDays int
	LogChannel    string
}

// DeliveryArgs is the payload of a webhook_delivery task.
type DeliveryArgs struct {
	WebhookID string          `json:"webhook_id"`
	EventID   string          `json:"event_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Change is one modified attribute recorded by LogTransition.
type Change struct {
	Key string
	Old any
	New any
}

// Record describes an event to persist.
type Record struct {
	Slug       string
	Severity   domain.Severity
	ObjectType string
	ObjectID   string
	Initiator  domain.Initiator
	Payload    map[string]any
}

// Manager registers event types, fires events and fans them out to webhooks.
type Manager struct {
	repo      repository.EventRepository
	webhooks  repository.WebhookRepository
	scheduler queue.Scheduler
	logs      LogAppender
	bus       *Bus
	logger    *slog.Logger
	cfg       Config

	mu    sync.RWMutex
	types map[string]EventType

	excluded map[string]struct{}
	now      func() time.Time
}

// New constructs a Manager with the built-in event types registered.
func New(repo repository.EventRepository, webhooks repository.WebhookRepository, scheduler queue.Scheduler, logs LogAppender, bus *Bus, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = NewBus()
	}
	if cfg.LogChannel == "" {
		cfg.LogChannel = "cron"
	}
	m := &Manager{
		repo:      repo,
		webhooks:  webhooks,
		scheduler: scheduler,
		logs:      logs,
		bus:       bus,
		logger:    logger.With("component", "events"),
		cfg:       cfg,
		types:     make(map[string]EventType),
		excluded: map[string]struct{}{
			"updated_at": {},
			"meta":       {},
			"settings":   {},
		},
		now: time.Now,
	}
	registerBuiltins(m)
	return m
}

// Bus returns the in-process event bus.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Register adds or replaces an event type.
func (m *Manager) Register(slug string, t EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[slug] = t
}

// Type returns a registered event type.
func (m *Manager) Type(slug string) (EventType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[slug]
	return t, ok
}

// Types lists registered event types with evaluated sample payloads, sorted by slug.
func (m *Manager) Types() []TypeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TypeInfo, 0, len(m.types))
	for slug, t := range m.types {
		info := TypeInfo{Slug: slug, Name: t.Name, Desc: t.Desc, Payload: map[string]any{}}
		if t.Payload != nil {
			info.Payload = t.Payload()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Do validates payload against the registered type of slug and fires it.
func (m *Manager) Do(ctx context.Context, slug string, payload map[string]any) error {
	return m.Fire(ctx, Record{Slug: slug, Payload: payload})
}

// Fire validates, publishes, persists and fans out an event.
func (m *Manager) Fire(ctx context.Context, rec Record) error {
	t, ok := m.Type(rec.Slug)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, rec.Slug)
	}
	if t.Payload != nil {
		sample := t.Payload()
		keys := make([]string, 0, len(sample))
		for key := range sample {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, ok := rec.Payload[key]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingParam, key)
			}
		}
	}

	payload := make(map[string]any, len(rec.Payload)+1)
	for k, v := range rec.Payload {
		payload[k] = v
	}
	payload["version"] = m.cfg.Version

	m.bus.Publish(ctx, rec.Slug, payload)

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if rec.Severity == 0 {
		rec.Severity = domain.SeverityInfo
	}
	if rec.Initiator == "" {
		rec.Initiator = domain.InitiatorSystem
	}
	event := &domain.Event{
		ID:         uuid.NewString(),
		Slug:       rec.Slug,
		Severity:   rec.Severity,
		ObjectType: rec.ObjectType,
		ObjectID:   rec.ObjectID,
		Initiator:  rec.Initiator,
		Payload:    raw,
		CreatedAt:  m.now().UTC(),
	}
	if m.repo != nil {
		if err := m.repo.InsertEvent(ctx, event); err != nil {
			return fmt.Errorf("save event %s: %w", rec.Slug, err)
		}
	}
	m.fanOut(ctx, event)
	return nil
}

func (m *Manager) fanOut(ctx context.Context, event *domain.Event) {
	if m.webhooks == nil || m.scheduler == nil {
		return
	}
	hooks, err := m.webhooks.ListActiveWebhooksByEvent(ctx, event.Slug)
	if err != nil {
		m.logger.Error("list webhooks failed", "event", event.Slug, "error", err)
		return
	}
	for _, hook := range hooks {
		task, err := queue.NewTask(queue.TaskWebhookDelivery, DeliveryArgs{
			WebhookID: hook.ID,
			EventID:   event.ID,
			Event:     event.Slug,
			Payload:   event.Payload,
			CreatedAt: event.CreatedAt,
		})
		if err != nil {
			m.logger.Error("build webhook task failed", "webhook_id", hook.ID, "error", err)
			continue
		}
		if err := m.scheduler.Enqueue(ctx, task); err != nil {
			m.logger.Error("enqueue webhook delivery failed", "webhook_id", hook.ID, "event", event.Slug, "error", err)
		}
	}
}

// LogTransition records the changed attributes of an object as an "<object>_changed" event.
// Excluded keys and unchanged values are dropped; nothing is recorded for an empty diff.
func (m *Manager) LogTransition(ctx context.Context, objectType, objectID string, changes []Change, initiator domain.Initiator) error {
	diff := make(map[string]any)
	for _, c := range changes {
		if _, skip := m.excluded[c.Key]; skip {
			continue
		}
		if reflect.DeepEqual(c.Old, c.New) {
			continue
		}
		diff[c.Key] = map[string]any{"old_value": c.Old, "new_value": c.New}
	}
	if len(diff) == 0 {
		return nil
	}
	slug := strings.TrimSpace(objectType) + "_changed"
	if _, ok := m.Type(slug); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, slug)
	}
	return m.Fire(ctx, Record{
		Slug:       slug,
		ObjectType: objectType,
		ObjectID:   objectID,
		Initiator:  initiator,
		Payload: map[string]any{
			"object_type": objectType,
			"object_id":   objectID,
			"changes":     diff,
		},
	})
}

// List returns persisted events.
func (m *Manager) List(ctx context.Context, slug string, limit, offset int) ([]domain.Event, error) {
	return m.repo.ListEvents(ctx, slug, limit, offset)
}

// CleanOld deletes up to one batch of events older than the configured threshold.
// A zero threshold disables cleanup.
func (m *Manager) CleanOld(ctx context.Context) (removed, failed int, err error) {
	if m.cfg.ThresholdDays <= 0 {
		return 0, 0, nil
	}
	cutoff := m.now().Add(-time.Duration(m.cfg.ThresholdDays) * 24 * time.Hour)
	ids, err := m.repo.ListEventIDsBefore(ctx, cutoff, cleanBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list old events: %w", err)
	}
	for _, id := range ids {
		if err := m.repo.DeleteEvent(ctx, id); err != nil {
			m.logger.Warn("delete event failed", "event_id", id, "error", err)
			failed++
			continue
		}
		removed++
	}
	if m.logs != nil {
		msg := fmt.Sprintf("Removed %d events successfully. Failed to remove %d events.", removed, failed)
		if err := m.logs.Append(ctx, m.cfg.LogChannel, msg); err != nil {
			m.logger.Warn("append cleanup log failed", "error", err)
		}
	}
	return removed, failed, nil
}

// HandleCleanTask runs CleanOld and schedules the next daily run.
func (m *Manager) HandleCleanTask(ctx context.Context, _ queue.Task) error {
	removed, failed, err := m.CleanOld(ctx)
	if err != nil {
		m.logger.Error("clean old events failed", "error", err)
	} else {
		m.logger.Info("old events cleaned", "removed", removed, "failed", failed)
	}
	if scheduleErr := m.ScheduleCleanup(ctx, m.now().Add(cleanInterval)); scheduleErr != nil {
		return errors.Join(err, scheduleErr)
	}
	return err
}

// ScheduleCleanup queues a clean_old_events task at at.
func (m *Manager) ScheduleCleanup(ctx context.Context, at time.Time) error {
	if m.scheduler == nil {
		return nil
	}
	task, err := queue.NewTask(queue.TaskCleanOldEvents, map[string]any{"threshold_days": m.cfg.ThresholdDays})
	if err != nil {
		return err
	}
	return m.scheduler.Schedule(ctx, at, task)
}
