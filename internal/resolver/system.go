package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// SystemBackend uses the host resolver configuration.
type SystemBackend struct {
	resolver *net.Resolver
}

// NewSystemBackend returns a backend on net.DefaultResolver.
func NewSystemBackend() *SystemBackend {
	return &SystemBackend{resolver: net.DefaultResolver}
}

// Name implements Backend.
func (b *SystemBackend) Name() string {
	return "system"
}

// Lookup implements Backend. The system resolver does not expose TTLs.
func (b *SystemBackend) Lookup(ctx context.Context, host string, qtype uint16) ([]Answer, error) {
	var answers []Answer
	switch qtype {
	case dns.TypeNS:
		ns, err := b.resolver.LookupNS(ctx, host)
		if err != nil {
			return nil, ignoreNotFound(err)
		}
		for _, n := range ns {
			answers = append(answers, Answer{Data: n.Host})
		}
	case dns.TypeCNAME:
		cname, err := b.resolver.LookupCNAME(ctx, host)
		if err != nil {
			return nil, ignoreNotFound(err)
		}
		if strings.EqualFold(strings.TrimSuffix(cname, "."), strings.TrimSuffix(host, ".")) {
			return nil, nil
		}
		answers = append(answers, Answer{Data: cname})
	case dns.TypeA:
		addrs, err := b.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, ignoreNotFound(err)
		}
		for _, addr := range addrs {
			if ip4 := addr.IP.To4(); ip4 != nil {
				answers = append(answers, Answer{IP: ip4.String()})
			}
		}
	default:
		return nil, fmt.Errorf("unsupported record type %s", dns.TypeToString[qtype])
	}
	return answers, nil
}

func ignoreNotFound(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return nil
	}
	return err
}
