package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("ops", []string{"domains:write"}, "secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "ops" {
		t.Fatalf("expected subject ops, got %q", claims.Subject)
	}
	if !claims.HasScope("domains:write") || claims.HasScope("settings:write") {
		t.Fatalf("unexpected scope evaluation for %v", claims.Scopes)
	}
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	token, err := GenerateToken("ops", nil, "secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatal("expected parse with wrong secret to fail")
	}
	expired, err := GenerateToken("ops", nil, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if _, err := Parse(expired, "secret"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestGenerateTokenRequiresSubject(t *testing.T) {
	if _, err := GenerateToken("  ", nil, "secret", time.Minute); err == nil {
		t.Fatal("expected error for empty subject")
	}
}
