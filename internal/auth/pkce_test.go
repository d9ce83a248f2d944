package auth

import (
	"strings"
	"testing"
)

func TestChallengeS256_KnownVector(t *testing.T) {
	// Appendix B of RFC 7636.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := ChallengeS256(verifier); got != want {
		t.Fatalf("challenge mismatch: got %s, want %s", got, want)
	}
}

func TestNewPKCE(t *testing.T) {
	pkce, err := NewPKCE()
	if err != nil {
		t.Fatalf("NewPKCE: %v", err)
	}
	if len(pkce.Verifier) < 43 {
		t.Fatalf("verifier too short for RFC 7636: %d chars", len(pkce.Verifier))
	}
	if strings.ContainsAny(pkce.Verifier, "+/=") {
		t.Fatalf("verifier is not URL-safe: %s", pkce.Verifier)
	}
	if pkce.Challenge != ChallengeS256(pkce.Verifier) {
		t.Fatal("challenge does not match verifier")
	}

	other, err := NewPKCE()
	if err != nil {
		t.Fatalf("NewPKCE: %v", err)
	}
	if other.Verifier == pkce.Verifier {
		t.Fatal("two verifiers should never collide")
	}
}

func TestNewStateToken(t *testing.T) {
	a, err := NewStateToken()
	if err != nil {
		t.Fatalf("NewStateToken: %v", err)
	}
	b, err := NewStateToken()
	if err != nil {
		t.Fatalf("NewStateToken: %v", err)
	}
	if a == "" || a == b {
		t.Fatalf("state tokens must be random and non-empty: %q vs %q", a, b)
	}
}
