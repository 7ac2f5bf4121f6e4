package mapping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/queue"
	"github.com/splax/domainmap/internal/repository"
	"github.com/splax/domainmap/internal/resolver"
	"github.com/splax/domainmap/internal/service/events"
	"github.com/splax/domainmap/internal/service/ingress"
	"github.com/splax/domainmap/internal/service/settings"
)

// CreateInput describes a new domain mapping.
type CreateInput struct {
	SiteID        string `json:"site_id"`
	Domain        string `json:"domain"`
	PrimaryDomain bool   `json:"primary_domain"`
}

// RemovePrimariesArgs is the payload of a remove_old_primary_domains task.
type RemovePrimariesArgs struct {
	DomainIDs []string `json:"domain_ids"`
}

// DNSReport is the DNS state of a host alongside the network addresses it should target.
type DNSReport struct {
	Entries   []resolver.Record `json:"entries"`
	NetworkIP []string          `json:"network_ip"`
}

// NormalizeHost lower-cases host and strips a scheme, path and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

func validHost(host string) bool {
	if host == "" || len(host) > 253 || net.ParseIP(host) != nil {
		return false
	}
	if !strings.Contains(host, ".") {
		return false
	}
	if _, ok := dns.IsDomainName(host); !ok {
		return false
	}
	for _, label := range dns.SplitDomainName(host) {
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// Create maps a new hostname onto a site and starts its verification.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Domain, error) {
	if s.toggles != nil && (!s.toggles.Enabled(ctx, settings.KeyEnableDomainMapping) || !s.toggles.Enabled(ctx, settings.KeyCustomDomains)) {
		return nil, ErrMappingDisabled
	}
	host := NormalizeHost(in.Domain)
	if !validHost(host) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, in.Domain)
	}
	siteID := strings.TrimSpace(in.SiteID)
	if siteID == "" {
		return nil, fmt.Errorf("%w: site id required", ErrInvalidDomain)
	}

	now := s.now().UTC()
	d := &domain.Domain{
		ID:            uuid.NewString(),
		SiteID:        siteID,
		Domain:        host,
		Stage:         domain.StageCheckingDNS,
		PrimaryDomain: in.PrimaryDomain,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateDomain(ctx, d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrDomainExists, host)
		}
		return nil, fmt.Errorf("create domain %s: %w", host, err)
	}
	s.logger.Info("domain created", "domain", d.Domain, "domain_id", d.ID, "site_id", d.SiteID)

	if err := s.events.Do(ctx, events.EventDomainCreated, domainPayload(*d)); err != nil {
		s.logger.Warn("fire domain created event failed", "domain", d.Domain, "error", err)
	}

	addTask, err := queue.NewTask(queue.TaskAddDomain, ingress.DomainArgs{Domain: d.Domain, SiteID: d.SiteID})
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.Enqueue(ctx, addTask); err != nil {
		return nil, fmt.Errorf("enqueue add domain for %s: %w", d.Domain, err)
	}
	if err := s.enqueueStage(ctx, *d, 0, time.Time{}); err != nil {
		return nil, fmt.Errorf("enqueue stage check for %s: %w", d.Domain, err)
	}

	if d.PrimaryDomain {
		ids, err := s.repo.ListPrimaryDomainIDs(ctx, d.SiteID, d.ID)
		if err != nil {
			return nil, fmt.Errorf("list primary domains for site %s: %w", d.SiteID, err)
		}
		if len(ids) > 0 {
			task, err := queue.NewTask(queue.TaskRemoveOldPrimaries, RemovePrimariesArgs{DomainIDs: ids})
			if err != nil {
				return nil, err
			}
			if err := s.scheduler.Enqueue(ctx, task); err != nil {
				return nil, fmt.Errorf("enqueue primary cleanup for site %s: %w", d.SiteID, err)
			}
		}
	}
	return d, nil
}

// Delete removes a mapping and tells integrations to drop the host.
func (s *Service) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDomain(ctx, d.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete domain %s: %w", d.Domain, err)
	}
	s.logger.Info("domain deleted", "domain", d.Domain, "domain_id", d.ID)

	task, err := queue.NewTask(queue.TaskRemoveDomain, ingress.DomainArgs{Domain: d.Domain, SiteID: d.SiteID})
	if err != nil {
		return err
	}
	if err := s.scheduler.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue remove domain for %s: %w", d.Domain, err)
	}
	return nil
}

// RemoveOldPrimaryDomains clears the primary flag on each listed domain.
// Missing domains are skipped.
func (s *Service) RemoveOldPrimaryDomains(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		err := s.repo.ClearPrimaryDomain(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("clear primary %s: %w", id, err))
			continue
		}
		changes := []events.Change{{Key: "primary_domain", Old: true, New: false}}
		if err := s.events.LogTransition(ctx, "domain", id, changes, domain.InitiatorSystem); err != nil {
			s.logger.Warn("record primary change failed", "domain_id", id, "error", err)
		}
	}
	return errors.Join(errs...)
}

// HandleRemovePrimariesTask runs a remove_old_primary_domains task.
func (s *Service) HandleRemovePrimariesTask(ctx context.Context, task queue.Task) error {
	var args RemovePrimariesArgs
	if err := task.Decode(&args); err != nil {
		return err
	}
	return s.RemoveOldPrimaryDomains(ctx, args.DomainIDs)
}

// DNSRecords reports the current DNS records of host and the network IPs.
func (s *Service) DNSRecords(ctx context.Context, host string) (DNSReport, error) {
	host = NormalizeHost(host)
	if !validHost(host) {
		return DNSReport{}, fmt.Errorf("%w: %q", ErrInvalidDomain, host)
	}
	records, err := s.dns.GetRecords(ctx, host)
	if err != nil {
		return DNSReport{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	if records == nil {
		records = []resolver.Record{}
	}
	ips := s.dns.NetworkIPs(ctx)
	if ips == nil {
		ips = []string{}
	}
	return DNSReport{Entries: records, NetworkIP: ips}, nil
}
