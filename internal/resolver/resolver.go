package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// Config holds resolver settings.
type Config struct {
	NetworkDomain string
	NetworkIPs    []string
	Servers       []string
	QueryTimeout  time.Duration
}

// Resolver fetches and evaluates DNS records of mapped domains.
type Resolver struct {
	lookup        *Chain
	networkDomain string
	networkIPs    []string
	logger        *slog.Logger
}

// New builds the default chain: configured servers, then the system resolver, then dig.
func New(cfg Config, logger *slog.Logger) *Resolver {
	servers := cfg.Servers
	if len(servers) == 0 {
		servers = []string{CloudflareDNS, GoogleDNS}
	}
	backends := make([]Backend, 0, len(servers)+2)
	for _, s := range servers {
		backends = append(backends, NewServerBackend(s, cfg.QueryTimeout))
	}
	backends = append(backends, NewSystemBackend(), NewDigBackend(nil))
	return NewWithChain(NewChain(backends...), cfg.NetworkDomain, cfg.NetworkIPs, logger)
}

// NewWithChain returns a Resolver on an explicit chain.
func NewWithChain(chain *Chain, networkDomain string, networkIPs []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:        chain,
		networkDomain: strings.TrimSuffix(strings.ToLower(strings.TrimSpace(networkDomain)), "."),
		networkIPs:    networkIPs,
		logger:        logger.With("component", "resolver"),
	}
}

// NetworkDomain returns the hostname mapped domains should CNAME to.
func (r *Resolver) NetworkDomain() string {
	return r.networkDomain
}

// GetRecords returns NS, CNAME and A records for host, in that order.
func (r *Resolver) GetRecords(ctx context.Context, host string) ([]Record, error) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return nil, fmt.Errorf("resolver: domain required")
	}

	results := make([][]Record, len(recordTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, qtype := range recordTypes {
		g.Go(func() error {
			answers, err := r.lookup.Lookup(gctx, host, qtype)
			if err != nil {
				return fmt.Errorf("lookup %s %s: %w", dns.TypeToString[qtype], host, err)
			}
			results[i] = normalize(host, qtype, answers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []Record
	for _, set := range results {
		records = append(records, set...)
	}
	return records, nil
}

// NetworkIPs returns the configured network addresses plus the network domain's A records.
func (r *Resolver) NetworkIPs(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var ips []string
	add := func(ip string) {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			return
		}
		if _, ok := seen[ip]; ok {
			return
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}
	for _, ip := range r.networkIPs {
		add(ip)
	}
	if r.networkDomain != "" {
		answers, err := r.lookup.Lookup(ctx, r.networkDomain, dns.TypeA)
		if err != nil {
			r.logger.Warn("resolve network domain failed", "network_domain", r.networkDomain, "error", err)
		}
		for _, a := range answers {
			add(a.IP)
		}
	}
	return ips
}

// HasCorrectDNS reports whether host points at the network, either through a
// CNAME to the network domain or an A record on a network IP.
func (r *Resolver) HasCorrectDNS(ctx context.Context, host string) (bool, error) {
	records, err := r.GetRecords(ctx, host)
	if err != nil {
		return false, err
	}

	var networkIPs map[string]struct{}
	for _, rec := range records {
		switch rec.Type {
		case "CNAME":
			if r.networkDomain != "" && strings.EqualFold(rec.Data, r.networkDomain) {
				return true, nil
			}
		case "A":
			if networkIPs == nil {
				networkIPs = make(map[string]struct{})
				for _, ip := range r.NetworkIPs(ctx) {
					networkIPs[ip] = struct{}{}
				}
			}
			if _, ok := networkIPs[rec.IP]; ok {
				return true, nil
			}
		}
	}
	return false, nil
}
