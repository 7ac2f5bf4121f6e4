package tlscheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Checker probes whether a host serves a valid certificate.
type Checker struct {
	timeout time.Duration
	port    string
	roots   *x509.CertPool
	now     func() time.Time
}

// Option customises a Checker.
type Option func(*Checker)

// WithPort overrides the probed port (default 443).
func WithPort(port string) Option {
	return func(c *Checker) {
		if strings.TrimSpace(port) != "" {
			c.port = port
		}
	}
}

// WithRootCAs sets the trust roots used for chain verification.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Checker) {
		c.roots = pool
	}
}

// WithClock overrides the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Checker with the given handshake timeout.
func New(timeout time.Duration, opts ...Option) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Checker{timeout: timeout, port: "443", now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Valid performs a verified TLS handshake against host and reports whether the
// presented leaf certificate is trusted, matches host and is currently valid.
// Verification failures return false with a nil error; network failures are returned.
func (c *Checker) Valid(ctx context.Context, host string) (bool, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return false, errors.New("tlscheck: host required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.timeout},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    c.roots,
			MinVersion: tls.VersionTLS12,
			Time:       c.now,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.port))
	if err != nil {
		if isVerificationError(err) {
			return false, nil
		}
		return false, fmt.Errorf("tls handshake %s: %w", host, err)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return false, errors.New("tlscheck: unexpected connection type")
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return false, nil
	}
	leaf := state.PeerCertificates[0]
	now := c.now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return false, nil
	}
	if err := leaf.VerifyHostname(host); err != nil {
		return false, nil
	}
	return true, nil
}

func isVerificationError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &verification)
}
