package config

import (
	"reflect"
	"testing"
	"time"
)

func TestGetListTrimsAndDropsEmpty(t *testing.T) {
	t.Setenv("DOMAINMAP_TEST_LIST", " 10.0.0.1, ,10.0.0.2 ,")
	got := GetList("DOMAINMAP_TEST_LIST", nil)
	want := []string{"10.0.0.1", "10.0.0.2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGetIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("DOMAINMAP_TEST_INT", "five")
	if got := GetInt("DOMAINMAP_TEST_INT", 5); got != 5 {
		t.Fatalf("expected fallback 5, got %d", got)
	}
}

func TestLoadAPIConfigStagePolicyDefaults(t *testing.T) {
	cfg := LoadAPIConfig()
	if cfg.DomainStageMaxTries != 5 {
		t.Fatalf("expected default max tries 5, got %d", cfg.DomainStageMaxTries)
	}
	if cfg.DomainStageRetryDelay != 5*time.Minute {
		t.Fatalf("expected default retry delay 5m, got %s", cfg.DomainStageRetryDelay)
	}
}

func TestLoadAPIConfigStagePolicyOverrides(t *testing.T) {
	t.Setenv("DOMAIN_STAGE_MAX_TRIES", "8")
	t.Setenv("DOMAIN_STAGE_RETRY_MINUTES", "2")
	cfg := LoadAPIConfig()
	if cfg.DomainStageMaxTries != 8 {
		t.Fatalf("expected max tries 8, got %d", cfg.DomainStageMaxTries)
	}
	if cfg.DomainStageRetryDelay != 2*time.Minute {
		t.Fatalf("expected retry delay 2m, got %s", cfg.DomainStageRetryDelay)
	}
}
