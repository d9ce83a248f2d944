package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// PKCE holds the single-use verifier/challenge pair for one authorization
// attempt (RFC 7636, S256 method only).
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a high-entropy code verifier (64 random bytes, base64url
// encoded, well above the 43-char minimum) and its S256 challenge.
func NewPKCE() (*PKCE, error) {
	raw := make([]byte, 64)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("auth: failed to generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return &PKCE{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
	}, nil
}

// ChallengeS256 derives the code challenge: base64url(SHA-256(verifier)),
// no padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewStateToken returns a random anti-CSRF nonce for the authorization URL.
func NewStateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: failed to generate state token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
