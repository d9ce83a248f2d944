package auth

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canva_token.json")
	store := NewFileTokenStore(path, "")

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("load empty store: %v", err)
	}
	if tok != nil {
		t.Fatalf("expected nil token from empty store, got %+v", tok)
	}

	want := &Token{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Fatalf("loaded %+v, want %+v", got, want)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("expiry mismatch: %s vs %s", got.ExpiresAt, want.ExpiresAt)
	}
}

func TestFileTokenStore_EnvRefreshTokenWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkedin_token.json")
	store := NewFileTokenStore(path, "TEST_LINKEDIN_REFRESH_TOKEN")

	if err := store.Save(&Token{AccessToken: "file-at", RefreshToken: "file-rt", TokenType: "Bearer"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	t.Setenv("TEST_LINKEDIN_REFRESH_TOKEN", "env-rt")

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.RefreshToken != "env-rt" {
		t.Fatalf("expected env refresh token to win, got %+v", got)
	}
	if got.AccessToken != "" {
		t.Fatalf("env-bootstrapped record must not carry an access token, got %q", got.AccessToken)
	}
}

func TestToken_Usable(t *testing.T) {
	tests := []struct {
		name string
		tok  *Token
		want bool
	}{
		{name: "nil", tok: nil, want: false},
		{name: "empty", tok: &Token{}, want: false},
		{name: "access only", tok: &Token{AccessToken: "at"}, want: true},
		{name: "refresh only", tok: &Token{RefreshToken: "rt"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Usable(); got != tt.want {
				t.Fatalf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToken_ExpiredWithin(t *testing.T) {
	if (&Token{}).ExpiredWithin(RefreshMargin) {
		t.Fatal("token without expiry metadata must not be treated as expired")
	}
	soon := &Token{ExpiresAt: time.Now().Add(time.Minute)}
	if !soon.ExpiredWithin(RefreshMargin) {
		t.Fatal("token inside the refresh margin should count as expired")
	}
	later := &Token{ExpiresAt: time.Now().Add(time.Hour)}
	if later.ExpiredWithin(RefreshMargin) {
		t.Fatal("token well outside the margin should not count as expired")
	}
}
