package settings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/repository"
)

type memorySettingRepo struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
}

func newMemorySettingRepo() *memorySettingRepo {
	return &memorySettingRepo{values: make(map[string]json.RawMessage)}
}

func (m *memorySettingRepo) GetSetting(_ context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (m *memorySettingRepo) UpsertSetting(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memorySettingRepo) ListSettings(context.Context) ([]domain.Setting, error) {
	return nil, nil
}

type staticIPs []string

func (s staticIPs) NetworkIPs(context.Context) []string { return s }

func newTestService(repo *memorySettingRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return New(repo, DefaultRegistry(5, 5), "network.local", staticIPs{"203.0.113.10"}, logger)
}

func TestGetReturnsDefaults(t *testing.T) {
	svc := newTestService(newMemorySettingRepo())
	ctx := context.Background()

	value, err := svc.Get(ctx, KeyForceAdminRedirect)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if value != "both" {
		t.Fatalf("expected default both, got %v", value)
	}
	tries, err := svc.Int(ctx, KeyStageMaxTries)
	if err != nil || tries != 5 {
		t.Fatalf("expected max tries 5, got %d (%v)", tries, err)
	}
	if _, err := svc.Get(ctx, "does_not_exist"); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("expected ErrUnknownSetting, got %v", err)
	}
}

func TestSetValidatesAndNormalizes(t *testing.T) {
	repo := newMemorySettingRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Set(ctx, KeyForceAdminRedirect, "force_sideways"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for unknown option, got %v", err)
	}
	if _, err := svc.Set(ctx, KeyForceAdminRedirect, "force_map"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if value, _ := svc.Get(ctx, KeyForceAdminRedirect); value != "force_map" {
		t.Fatalf("expected force_map, got %v", value)
	}

	normalized, err := svc.Set(ctx, KeyEnableDomainMapping, "0")
	if err != nil {
		t.Fatalf("Set toggle returned error: %v", err)
	}
	if normalized != false {
		t.Fatalf("expected toggle normalized to false, got %v", normalized)
	}
	if string(repo.values[KeyEnableDomainMapping]) != "false" {
		t.Fatalf("expected stored false, got %s", repo.values[KeyEnableDomainMapping])
	}

	if _, err := svc.Set(ctx, KeyStageMaxTries, float64(0)); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected minimum violation, got %v", err)
	}
	if _, err := svc.Set(ctx, KeyStageRetryMinutes, float64(MaxRetryMinutes+1)); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected maximum violation, got %v", err)
	}
	if _, err := svc.Set(ctx, KeyStageMaxTries, float64(8)); err != nil {
		t.Fatalf("Set number returned error: %v", err)
	}
	if n, _ := svc.Int(ctx, KeyStageMaxTries); n != 8 {
		t.Fatalf("expected 8 after reload, got %d", n)
	}
	if _, err := svc.Set(ctx, "nope", true); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("expected ErrUnknownSetting, got %v", err)
	}
}

func TestEnabledFollowsRequirements(t *testing.T) {
	svc := newTestService(newMemorySettingRepo())
	ctx := context.Background()

	if !svc.Enabled(ctx, KeyCustomDomains) {
		t.Fatal("expected custom domains enabled by default")
	}
	if _, err := svc.Set(ctx, KeyEnableDomainMapping, false); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if svc.Enabled(ctx, KeyCustomDomains) {
		t.Fatal("expected custom domains to follow enable_domain_mapping")
	}
	if svc.Enabled(ctx, KeyRestrictSSOToLogin) {
		t.Fatal("expected restrict_sso_to_login_pages off by default")
	}
	if svc.Enabled(ctx, "unknown") {
		t.Fatal("expected unknown keys to be disabled")
	}
}

func TestInstructionsReplacePlaceholders(t *testing.T) {
	svc := newTestService(newMemorySettingRepo())
	ctx := context.Background()

	text, err := svc.Instructions(ctx)
	if err != nil {
		t.Fatalf("Instructions returned error: %v", err)
	}
	if !strings.Contains(text, "<code>network.local</code>") {
		t.Fatalf("expected default instructions with network domain, got %q", text)
	}

	if _, err := svc.Set(ctx, KeyMappingInstructions, "Point %NETWORK_DOMAIN% or %NETWORK_IP%"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	text, err = svc.Instructions(ctx)
	if err != nil {
		t.Fatalf("Instructions returned error: %v", err)
	}
	if text != "Point network.local or 203.0.113.10" {
		t.Fatalf("unexpected instructions %q", text)
	}
}

func TestFieldsListsSectionsInOrder(t *testing.T) {
	svc := newTestService(newMemorySettingRepo())
	fields, err := svc.Fields(context.Background())
	if err != nil {
		t.Fatalf("Fields returned error: %v", err)
	}
	if len(fields) != 9 {
		t.Fatalf("expected 9 fields, got %d", len(fields))
	}
	if fields[0].Key != KeyEnableDomainMapping || fields[len(fields)-1].Key != KeyEnableSSOLoadOverlay {
		t.Fatalf("unexpected field order: first %s last %s", fields[0].Key, fields[len(fields)-1].Key)
	}
	sections := svc.Registry().Sections()
	if len(sections) != 2 || sections[0].Slug != "domain-mapping" || sections[1].Slug != "sso" {
		t.Fatalf("unexpected sections %+v", sections)
	}
}
