package mapping

import (
	"context"
	"log/slog"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/service/settings"
)

// Policy decides how often a domain stage is retried.
type Policy interface {
	MaxTries(ctx context.Context, d domain.Domain) int
	RetryDelay(ctx context.Context, d domain.Domain) time.Duration
}

// StaticPolicy applies fixed limits to every domain.
type StaticPolicy struct {
	Tries int
	Delay time.Duration
}

// MaxTries implements Policy.
func (p StaticPolicy) MaxTries(context.Context, domain.Domain) int {
	return p.Tries
}

// RetryDelay implements Policy.
func (p StaticPolicy) RetryDelay(context.Context, domain.Domain) time.Duration {
	return p.Delay
}

// IntSettings reads numeric settings.
type IntSettings interface {
	Int(ctx context.Context, key string) (int, error)
}

// SettingsPolicy reads limits from settings and falls back to a static policy.
type SettingsPolicy struct {
	settings IntSettings
	fallback StaticPolicy
	logger   *slog.Logger
}

// NewSettingsPolicy returns a policy backed by settings.
func NewSettingsPolicy(s IntSettings, fallback StaticPolicy, logger *slog.Logger) *SettingsPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsPolicy{settings: s, fallback: fallback, logger: logger}
}

// MaxTries implements Policy.
func (p *SettingsPolicy) MaxTries(ctx context.Context, d domain.Domain) int {
	n, err := p.settings.Int(ctx, settings.KeyStageMaxTries)
	if err != nil || n <= 0 {
		if err != nil {
			p.logger.Warn("max tries setting unavailable", "domain", d.Domain, "error", err)
		}
		return p.fallback.Tries
	}
	return min(n, settings.MaxStageTries)
}

// RetryDelay implements Policy.
func (p *SettingsPolicy) RetryDelay(ctx context.Context, d domain.Domain) time.Duration {
	n, err := p.settings.Int(ctx, settings.KeyStageRetryMinutes)
	if err != nil || n <= 0 {
		if err != nil {
			p.logger.Warn("retry delay setting unavailable", "domain", d.Domain, "error", err)
		}
		return p.fallback.Delay
	}
	return time.Duration(min(n, settings.MaxRetryMinutes)) * time.Minute
}
