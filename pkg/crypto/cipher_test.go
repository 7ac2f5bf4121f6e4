package crypto

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := EncryptString("key", "whsec_123")
	if err != nil {
		t.Fatalf("EncryptString returned error: %v", err)
	}
	plain, err := DecryptToString("key", sealed)
	if err != nil {
		t.Fatalf("DecryptToString returned error: %v", err)
	}
	if plain != "whsec_123" {
		t.Fatalf("expected original secret, got %q", plain)
	}
	if _, err := DecryptToString("other", sealed); err == nil {
		t.Fatal("expected decrypt with wrong key to fail")
	}
}

func TestDecryptRejectsShortPayload(t *testing.T) {
	if _, err := DecryptToString("key", []byte{1, 2}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestSignAndVerify(t *testing.T) {
	secret := []byte("s3cret")
	payload := []byte(`{"event":"domain_created"}`)
	sig := Sign(secret, payload)
	if err := Verify(secret, payload, sig); err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}
	if err := Verify(secret, []byte(`{}`), sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if err := Verify(secret, payload, ""); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch for empty signature, got %v", err)
	}
}
