package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Well known public resolvers.
const (
	CloudflareDNS = "1.1.1.1:53"
	GoogleDNS     = "8.8.8.8:53"
)

// ServerBackend queries a specific DNS server directly.
type ServerBackend struct {
	server string
	client *dns.Client
}

// NewServerBackend returns a backend for server (host:port) with the given timeout.
func NewServerBackend(server string, timeout time.Duration) *ServerBackend {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ServerBackend{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Name implements Backend.
func (b *ServerBackend) Name() string {
	return "dns " + b.server
}

// Lookup implements Backend.
func (b *ServerBackend) Lookup(ctx context.Context, host string, qtype uint16) ([]Answer, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := b.client.ExchangeContext(ctx, msg, b.server)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: b.client.Timeout}
		if resp, _, err = tcp.ExchangeContext(ctx, msg, b.server); err != nil {
			return nil, err
		}
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
		return answersFromRR(qtype, resp.Answer), nil
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
}
