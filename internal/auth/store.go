package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Token is the persisted OAuth credential record for one provider.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the record can produce a valid session: either
// token present is enough, since a refresh token alone is recoverable.
func (t *Token) Usable() bool {
	if t == nil {
		return false
	}
	return t.AccessToken != "" || t.RefreshToken != ""
}

// ExpiredWithin reports whether the access token is known to expire within
// margin. Records without expiry metadata are never considered expired here;
// the 401 path catches those.
func (t *Token) ExpiredWithin(margin time.Duration) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(t.ExpiresAt.Add(-margin))
}

// TokenStore persists one provider's token record.
type TokenStore interface {
	Load() (*Token, error)
	Save(*Token) error
}

// FileTokenStore keeps the token in a local JSON file, with an
// environment-supplied refresh token taking precedence over the file. The
// env path supports container deployments where the filesystem is ephemeral.
type FileTokenStore struct {
	Path   string
	EnvVar string

	mu sync.Mutex
}

// NewFileTokenStore creates a store backed by path. envVar, when non-empty,
// names the environment variable holding an externally injected refresh
// token that always wins over the file.
func NewFileTokenStore(path, envVar string) *FileTokenStore {
	return &FileTokenStore{Path: path, EnvVar: envVar}
}

// Load returns the env-bootstrapped record if the env var is set, the file
// record otherwise, or nil when neither exists.
func (s *FileTokenStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.EnvVar != "" {
		if rt := strings.TrimSpace(os.Getenv(s.EnvVar)); rt != "" {
			return &Token{RefreshToken: rt, TokenType: "Bearer"}, nil
		}
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("auth: failed to read token file %s: %w", s.Path, err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("auth: failed to parse token file %s: %w", s.Path, err)
	}
	if !tok.Usable() {
		return nil, nil
	}
	return &tok, nil
}

// Save overwrites the token file. A write failure is surfaced to the caller;
// proceeding with an unpersisted credential would force re-authorization on
// every run.
func (s *FileTokenStore) Save(tok *Token) error {
	if tok == nil {
		return errors.New("auth: cannot save nil token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("auth: failed to create token directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: failed to encode token: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("auth: failed to write token file %s: %w", s.Path, err)
	}
	return nil
}
