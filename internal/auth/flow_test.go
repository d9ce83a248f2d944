package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// startFlow runs Authorize in the background and reports the consent URL the
// flow produced plus the callback base address of its listener.
func startFlow(t *testing.T, flow *Flow) (authURL *url.URL, callbackBase string, done <-chan struct {
	tok *Token
	err error
}) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	flow.Listener = listener

	urlCh := make(chan string, 1)
	flow.OpenURL = func(u string) error {
		urlCh <- u
		return nil
	}

	resultCh := make(chan struct {
		tok *Token
		err error
	}, 1)
	go func() {
		tok, err := flow.Authorize(context.Background())
		resultCh <- struct {
			tok *Token
			err error
		}{tok, err}
	}()

	select {
	case raw := <-urlCh:
		parsed, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse auth URL: %v", err)
		}
		return parsed, "http://" + listener.Addr().String(), resultCh
	case <-time.After(5 * time.Second):
		t.Fatal("flow never produced a consent URL")
		return nil, "", nil
	}
}

func newFlowFixture(t *testing.T, tokenURL string) *Flow {
	t.Helper()
	store := NewFileTokenStore(t.TempDir()+"/token.json", "")
	return &Flow{
		Name: "test",
		OAuth: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://127.0.0.1/callback",
			Scopes:       []string{"design:content:write"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "http://unused.invalid/authorize",
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Store:   store,
		Timeout: 5 * time.Second,
	}
}

func TestFlow_AuthorizeSuccess(t *testing.T) {
	var gotVerifier string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Fatalf("unexpected grant_type %q", got)
		}
		if got := r.Form.Get("code"); got != "auth-code-1" {
			t.Fatalf("unexpected code %q", got)
		}
		gotVerifier = r.Form.Get("code_verifier")
		if gotVerifier == "" {
			t.Fatal("exchange carried no code_verifier")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-at",
			"refresh_token": "new-rt",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenSrv.Close()

	flow := newFlowFixture(t, tokenSrv.URL)
	authURL, callbackBase, done := startFlow(t, flow)

	query := authURL.Query()
	state := query.Get("state")
	if state == "" {
		t.Fatal("consent URL carries no state")
	}
	if query.Get("code_challenge_method") != "S256" {
		t.Fatalf("unexpected challenge method %q", query.Get("code_challenge_method"))
	}
	challenge := query.Get("code_challenge")
	if challenge == "" {
		t.Fatal("consent URL carries no code_challenge")
	}

	resp, err := http.Get(fmt.Sprintf("%s/callback?code=auth-code-1&state=%s", callbackBase, state))
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from callback, got %d", resp.StatusCode)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("Authorize: %v", res.err)
	}
	if res.tok.AccessToken != "new-at" || res.tok.RefreshToken != "new-rt" {
		t.Fatalf("unexpected token %+v", res.tok)
	}
	if ChallengeS256(gotVerifier) != challenge {
		t.Fatal("code_challenge sent to provider does not match the exchanged verifier")
	}

	stored, err := flow.Store.Load()
	if err != nil {
		t.Fatalf("load stored token: %v", err)
	}
	if stored == nil || stored.AccessToken != "new-at" {
		t.Fatalf("token was not persisted: %+v", stored)
	}
}

func TestFlow_RejectsStateMismatch(t *testing.T) {
	flow := newFlowFixture(t, "http://unused.invalid/token")
	_, callbackBase, done := startFlow(t, flow)

	// A valid-looking code must not rescue a forged state.
	resp, err := http.Get(callbackBase + "/callback?code=stolen-code&state=forged")
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for forged state, got %d", resp.StatusCode)
	}

	res := <-done
	if !errors.Is(res.err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", res.err)
	}
}

func TestFlow_ProviderDenied(t *testing.T) {
	flow := newFlowFixture(t, "http://unused.invalid/token")
	authURL, callbackBase, done := startFlow(t, flow)
	state := authURL.Query().Get("state")

	resp, err := http.Get(fmt.Sprintf(
		"%s/callback?error=access_denied&error_description=User+cancelled&state=%s",
		callbackBase, state))
	if err != nil {
		t.Fatalf("callback request: %v", err)
	}
	resp.Body.Close()

	res := <-done
	var denied *ProviderDeniedError
	if !errors.As(res.err, &denied) {
		t.Fatalf("expected ProviderDeniedError, got %v", res.err)
	}
	if denied.Code != "access_denied" || !strings.Contains(denied.Error(), "User cancelled") {
		t.Fatalf("unexpected denial: %+v", denied)
	}
}

func TestFlow_Timeout(t *testing.T) {
	flow := newFlowFixture(t, "http://unused.invalid/token")
	flow.Timeout = 50 * time.Millisecond
	_, _, done := startFlow(t, flow)

	res := <-done
	if !errors.Is(res.err, ErrAuthTimeout) {
		t.Fatalf("expected ErrAuthTimeout, got %v", res.err)
	}
}
