package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/splax/domainmap/internal/domain"
)

// DomainRepository persists mapped domains.
type DomainRepository interface {
	CreateDomain(ctx context.Context, d *domain.Domain) error
	GetDomainByID(ctx context.Context, id string) (*domain.Domain, error)
	ListDomains(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error)
	ListPrimaryDomainIDs(ctx context.Context, siteID, excludeID string) ([]string, error)
	// UpdateDomainStage applies update only when the stored stage and cycle equal update.From and update.Cycle.
	// It returns ErrConflict when either has moved and ErrNotFound when the row is gone.
	UpdateDomainStage(ctx context.Context, update domain.StageUpdate) error
	ClearPrimaryDomain(ctx context.Context, id string) error
	DeleteDomain(ctx context.Context, id string) error
}

// EventRepository persists fired events.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, slug string, limit, offset int) ([]domain.Event, error)
	ListEventIDsBefore(ctx context.Context, before time.Time, limit int) ([]string, error)
	DeleteEvent(ctx context.Context, id string) error
}

// WebhookRepository stores webhook subscriptions.
type WebhookRepository interface {
	CreateWebhook(ctx context.Context, hook *domain.Webhook) error
	GetWebhook(ctx context.Context, id string) (*domain.Webhook, error)
	ListWebhooks(ctx context.Context) ([]domain.Webhook, error)
	ListActiveWebhooksByEvent(ctx context.Context, slug string) ([]domain.Webhook, error)
	IncrementWebhookCount(ctx context.Context, id string) error
	DeleteWebhook(ctx context.Context, id string) error
}

// LogRepository handles log persistence and retrieval.
type LogRepository interface {
	AppendLog(ctx context.Context, entry *domain.LogEntry) error
	ListLogsByChannel(ctx context.Context, channel string, limit, offset int) ([]domain.LogEntry, error)
}

// SettingRepository stores settings values keyed by field name.
type SettingRepository interface {
	GetSetting(ctx context.Context, key string) (json.RawMessage, error)
	UpsertSetting(ctx context.Context, key string, value json.RawMessage) error
	ListSettings(ctx context.Context) ([]domain.Setting, error)
}
