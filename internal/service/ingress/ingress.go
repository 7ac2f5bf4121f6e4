package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/splax/domainmap/internal/queue"
)

// Integration is a host provider notified when mapped domains come and go.
type Integration interface {
	ID() string
	AddDomain(ctx context.Context, domain, siteID string) error
	RemoveDomain(ctx context.Context, domain, siteID string) error
	// Test checks that the provider is reachable and set up.
	Test(ctx context.Context) error
}

// TestResult is the outcome of one integration check.
type TestResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DomainArgs is the payload of add_domain and remove_domain tasks.
type DomainArgs struct {
	Domain string `json:"domain"`
	SiteID string `json:"site_id"`
}

// Manager dispatches domain add/remove notifications to every integration.
type Manager struct {
	integrations []Integration
	logger       *slog.Logger
}

// NewManager returns a manager over integrations. Nil entries are ignored.
func NewManager(logger *slog.Logger, integrations ...Integration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger.With("component", "ingress")}
	for _, in := range integrations {
		if in != nil {
			m.integrations = append(m.integrations, in)
		}
	}
	return m
}

// Integrations returns the registered integration ids.
func (m *Manager) Integrations() []string {
	ids := make([]string, 0, len(m.integrations))
	for _, in := range m.integrations {
		ids = append(ids, in.ID())
	}
	return ids
}

// Test checks every integration and reports each outcome.
func (m *Manager) Test(ctx context.Context) []TestResult {
	results := make([]TestResult, 0, len(m.integrations))
	for _, in := range m.integrations {
		res := TestResult{ID: in.ID(), OK: true}
		if err := in.Test(ctx); err != nil {
			m.logger.Warn("integration test failed", "integration", in.ID(), "error", err)
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// AddDomain notifies every integration. Failures are collected and do not stop other integrations.
func (m *Manager) AddDomain(ctx context.Context, domain, siteID string) error {
	return m.each(ctx, "add", domain, func(in Integration) error { return in.AddDomain(ctx, domain, siteID) })
}

// RemoveDomain notifies every integration of a removal.
func (m *Manager) RemoveDomain(ctx context.Context, domain, siteID string) error {
	return m.each(ctx, "remove", domain, func(in Integration) error { return in.RemoveDomain(ctx, domain, siteID) })
}

func (m *Manager) each(ctx context.Context, op, domain string, fn func(Integration) error) error {
	if strings.TrimSpace(domain) == "" {
		return errors.New("ingress: domain required")
	}
	var errs []error
	for _, in := range m.integrations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(in); err != nil {
			m.logger.Error("integration failed", "integration", in.ID(), "op", op, "domain", domain, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", in.ID(), err))
			continue
		}
		m.logger.Info("integration notified", "integration", in.ID(), "op", op, "domain", domain)
	}
	return errors.Join(errs...)
}

// HandleAddTask processes an add_domain task.
func (m *Manager) HandleAddTask(ctx context.Context, task queue.Task) error {
	var args DomainArgs
	if err := task.Decode(&args); err != nil {
		return err
	}
	return m.AddDomain(ctx, args.Domain, args.SiteID)
}

// HandleRemoveTask processes a remove_domain task.
func (m *Manager) HandleRemoveTask(ctx context.Context, task queue.Task) error {
	var args DomainArgs
	if err := task.Decode(&args); err != nil {
		return err
	}
	return m.RemoveDomain(ctx, args.Domain, args.SiteID)
}
