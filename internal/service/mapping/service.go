package mapping

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/queue"
	"github.com/splax/domainmap/internal/repository"
	"github.com/splax/domainmap/internal/resolver"
	"github.com/splax/domainmap/internal/service/events"
)

var (
	// ErrStageConflict is returned when another invocation moved the domain first.
	ErrStageConflict = errors.New("mapping: stage changed concurrently")
	// ErrMappingDisabled is returned by Create when domain mapping is switched off.
	ErrMappingDisabled = errors.New("mapping: domain mapping disabled")
	// ErrInvalidDomain is returned for hostnames that cannot be mapped.
	ErrInvalidDomain = errors.New("mapping: invalid domain")
	// ErrDomainExists is returned when the hostname is already mapped.
	ErrDomainExists = errors.New("mapping: domain already mapped")
	// ErrNotFound is returned when the domain does not exist.
	ErrNotFound = errors.New("mapping: domain not found")
)

// DNSChecker answers DNS questions about mapped hosts.
type DNSChecker interface {
	HasCorrectDNS(ctx context.Context, host string) (bool, error)
	GetRecords(ctx context.Context, host string) ([]resolver.Record, error)
	NetworkIPs(ctx context.Context) []string
}

// CertChecker reports whether a host serves a valid certificate.
type CertChecker interface {
	Valid(ctx context.Context, host string) (bool, error)
}

// LogAppender writes lines to a named log channel.
type LogAppender interface {
	Append(ctx context.Context, channel, message string) error
}

// EventEmitter fires events and records model transitions.
type EventEmitter interface {
	Do(ctx context.Context, slug string, payload map[string]any) error
	LogTransition(ctx context.Context, objectType, objectID string, changes []events.Change, initiator domain.Initiator) error
}

// Toggles reports whether a settings toggle is on.
type Toggles interface {
	Enabled(ctx context.Context, key string) bool
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo      repository.DomainRepository
	DNS       DNSChecker
	Certs     CertChecker
	Scheduler queue.Scheduler
	Logs      LogAppender
	Events    EventEmitter
	Toggles   Toggles
	Policy    Policy
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service owns mapped domains and drives their verification.
type Service struct {
	repo      repository.DomainRepository
	dns       DNSChecker
	certs     CertChecker
	scheduler queue.Scheduler
	logs      LogAppender
	events    EventEmitter
	toggles   Toggles
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs the mapping service.
func New(deps Deps) *Service {
	initMetrics()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	policy := deps.Policy
	if policy == nil {
		policy = StaticPolicy{Tries: 5, Delay: 5 * time.Minute}
	}
	return &Service{
		repo:      deps.Repo,
		dns:       deps.DNS,
		certs:     deps.Certs,
		scheduler: deps.Scheduler,
		logs:      deps.Logs,
		events:    deps.Events,
		toggles:   deps.Toggles,
		policy:    policy,
		logger:    logger.With("component", "mapping"),
		now:       now,
	}
}

// Get returns a single domain.
func (s *Service) Get(ctx context.Context, id string) (*domain.Domain, error) {
	d, err := s.repo.GetDomainByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return d, err
}

// List returns domains matching filter.
func (s *Service) List(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error) {
	return s.repo.ListDomains(ctx, filter)
}

func (s *Service) appendLog(ctx context.Context, d domain.Domain, message string) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Append(ctx, d.LogChannel(), message); err != nil {
		s.logger.Warn("append domain log failed", "domain", d.Domain, "error", err)
	}
}

func (s *Service) enqueueStage(ctx context.Context, d domain.Domain, tries int, at time.Time) error {
	task, err := queue.NewTask(queue.TaskDomainStage, StageArgs{DomainID: d.ID, Tries: tries, Cycle: d.Cycle})
	if err != nil {
		return err
	}
	if at.IsZero() {
		return s.scheduler.Enqueue(ctx, task)
	}
	return s.scheduler.Schedule(ctx, at, task)
}

func domainPayload(d domain.Domain) map[string]any {
	return map[string]any{
		"domain_id":      d.ID,
		"domain":         d.Domain,
		"site_id":        d.SiteID,
		"stage":          string(d.Stage),
		"secure":         d.Secure,
		"primary_domain": d.PrimaryDomain,
	}
}
