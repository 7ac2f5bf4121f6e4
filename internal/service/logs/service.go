package logs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/repository"
	"github.com/splax/domainmap/internal/ws"
)

// ChannelCron receives output of scheduled maintenance jobs.
const ChannelCron = "cron"

// Service handles channel log persistence and streaming.
type Service struct {
	repo   repository.LogRepository
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a log service.
func New(repo repository.LogRepository, hub *ws.Hub, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, hub: hub, logger: logger.With("component", "logs"), now: time.Now}
}

// Append stores and broadcasts one line on channel.
func (s Service) Append(ctx context.Context, channel, message string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return errors.New("log channel required")
	}
	entry := domain.LogEntry{Channel: channel, Message: message, CreatedAt: s.now().UTC()}
	if err := s.repo.AppendLog(ctx, &entry); err != nil {
		return err
	}
	s.broadcast(entry)
	return nil
}

// List returns logs for a channel, newest first.
func (s Service) List(ctx context.Context, channel string, limit, offset int) ([]domain.LogEntry, error) {
	return s.repo.ListLogsByChannel(ctx, channel, limit, offset)
}

func (s Service) broadcast(entry domain.LogEntry) {
	if s.hub == nil {
		return
	}
	data, err := MarshalEntry(entry)
	if err != nil {
		s.logger.Warn("failed to marshal log payload", "error", err)
		return
	}
	s.hub.Broadcast(entry.Channel, data)
}

// Hub returns the websocket hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

// MarshalEntry formats a log entry for streaming payloads.
func MarshalEntry(entry domain.LogEntry) ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":         entry.ID,
		"channel":    entry.Channel,
		"message":    entry.Message,
		"created_at": entry.CreatedAt.Format(time.RFC3339Nano),
	})
}
