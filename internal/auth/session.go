package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// RefreshMargin is how early to refresh before the recorded expiry.
const RefreshMargin = 5 * time.Minute

// Session wraps outbound HTTP calls for one provider with bearer-token
// injection, proactive refresh when expiry metadata exists, and exactly one
// refresh-and-retry cycle on 401/403.
type Session struct {
	name       string
	oauth      *oauth2.Config
	store      TokenStore
	httpClient *http.Client

	mu    sync.Mutex
	token *Token
}

// NewSession creates a session for the named provider. The oauth config only
// needs ClientID/ClientSecret/Endpoint for the refresh grant. A nil client
// falls back to a default with a 2 minute timeout.
func NewSession(name string, oauth *oauth2.Config, store TokenStore, client *http.Client) *Session {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Session{
		name:       name,
		oauth:      oauth,
		store:      store,
		httpClient: client,
	}
}

// AccessToken returns a bearer token believed valid, refreshing first when
// the held record is absent, has no access token, or is known to expire
// within RefreshMargin.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return "", err
	}
	if s.token.AccessToken == "" || s.token.ExpiredWithin(RefreshMargin) {
		if err := s.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return s.token.AccessToken, nil
}

// loadLocked populates s.token from the store on first use.
func (s *Session) loadLocked() error {
	if s.token != nil {
		return nil
	}
	tok, err := s.store.Load()
	if err != nil {
		return err
	}
	if !tok.Usable() {
		return fmt.Errorf("%w (provider %s)", ErrNotAuthorized, s.name)
	}
	s.token = tok
	return nil
}

// refreshLocked exchanges the refresh token for a new access token and
// persists the result, including a rotated refresh token when the provider
// issues one. Callers hold s.mu.
func (s *Session) refreshLocked(ctx context.Context) error {
	if s.token == nil || s.token.RefreshToken == "" {
		return fmt.Errorf("%w (provider %s)", ErrNotAuthorized, s.name)
	}

	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: s.token.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return &TokenExchangeError{Status: status, Body: string(retrieveErr.Body), Err: err}
		}
		return fmt.Errorf("auth: token refresh for %s failed: %w", s.name, err)
	}

	s.token.AccessToken = fresh.AccessToken
	s.token.TokenType = "Bearer"
	s.token.ExpiresAt = fresh.Expiry
	if fresh.RefreshToken != "" && fresh.RefreshToken != s.token.RefreshToken {
		log.Printf("[auth] %s: provider rotated refresh token", s.name)
		s.token.RefreshToken = fresh.RefreshToken
	}
	if err := s.store.Save(s.token); err != nil {
		return err
	}
	log.Printf("[auth] %s: refreshed access token (expires %s)", s.name, fresh.Expiry.Format(time.RFC3339))
	return nil
}

// refreshAfter401 performs the single reactive refresh. If another caller
// already replaced staleToken while we waited on the lock, its result is
// reused and no second token-endpoint call is made.
func (s *Session) refreshAfter401(ctx context.Context, staleToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != nil && s.token.AccessToken != "" && s.token.AccessToken != staleToken {
		return nil
	}
	return s.refreshLocked(ctx)
}

// Do sends an authenticated request. body may be nil; it is replayed as-is
// on the single 401/403 retry. Responses with any other status are returned
// to the caller unread.
func (s *Session) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.send(ctx, method, url, body, header, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	resp.Body.Close()

	log.Printf("[auth] %s: got %d from %s %s, refreshing and retrying once", s.name, resp.StatusCode, method, url)
	if err := s.refreshAfter401(ctx, token); err != nil {
		return nil, err
	}
	token, err = s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err = s.send(ctx, method, url, body, header, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		reqErr := ReadRequestError(resp)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrUnauthorized, reqErr.Status, reqErr.Body)
	}
	return resp, nil
}

func (s *Session) send(ctx context.Context, method, url string, body []byte, header http.Header, token string) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return s.httpClient.Do(req)
}

// DoJSON sends a JSON request and decodes a JSON response. Any non-2xx
// status (other than the 401/403 handled inside Do) becomes a RequestError
// carrying the verbatim body.
func (s *Session) DoJSON(ctx context.Context, method, url string, in, out any) error {
	var body []byte
	header := http.Header{}
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("auth: failed to encode request body: %w", err)
		}
		header.Set("Content-Type", "application/json")
	}

	resp, err := s.Do(ctx, method, url, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ReadRequestError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: failed to decode response from %s: %w", url, err)
	}
	return nil
}

// SetToken replaces the in-memory record, e.g. right after an interactive
// authorization that already persisted it.
func (s *Session) SetToken(tok *Token) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}
