package tlscheck

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func startTLSServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	return srv, port
}

func TestValidTrustedCertificate(t *testing.T) {
	srv, port := startTLSServer(t)
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	checker := New(2*time.Second, WithPort(port), WithRootCAs(pool))
	ok, err := checker.Valid(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Valid returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected certificate to be valid")
	}
}

func TestValidUntrustedCertificate(t *testing.T) {
	_, port := startTLSServer(t)

	checker := New(2*time.Second, WithPort(port), WithRootCAs(x509.NewCertPool()))
	ok, err := checker.Valid(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("expected verification failure without error, got %v", err)
	}
	if ok {
		t.Fatal("expected untrusted certificate to be invalid")
	}
}

func TestValidExpiredByClock(t *testing.T) {
	srv, port := startTLSServer(t)
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	future := srv.Certificate().NotAfter.Add(24 * time.Hour)
	checker := New(2*time.Second, WithPort(port), WithRootCAs(pool), WithClock(func() time.Time { return future }))
	ok, err := checker.Valid(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("expected expiry to be a verification failure, got %v", err)
	}
	if ok {
		t.Fatal("expected expired certificate to be invalid")
	}
}

func TestValidConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	checker := New(time.Second, WithPort(port))
	ok, err := checker.Valid(context.Background(), "127.0.0.1")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if ok {
		t.Fatal("expected invalid result on dial error")
	}
}

func TestValidRequiresHost(t *testing.T) {
	if _, err := New(time.Second).Valid(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty host")
	}
}
