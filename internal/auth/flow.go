package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

// DefaultAuthTimeout bounds how long the flow waits for the user to finish
// the browser consent screen.
const DefaultAuthTimeout = 5 * time.Minute

// Flow drives the interactive authorization-code + PKCE exchange for one
// provider: consent URL, one-shot local callback listener, state validation,
// code-for-token exchange, persistence.
type Flow struct {
	Name    string
	OAuth   *oauth2.Config
	Store   TokenStore
	Timeout time.Duration

	// OpenURL is invoked with the consent URL; when nil the URL is only
	// logged and the user opens it manually.
	OpenURL func(url string) error

	// Listener overrides the redirect-URI listener, used by tests.
	Listener net.Listener
}

type callbackResult struct {
	code string
	err  error
}

// Authorize runs the flow to completion and persists the resulting token.
// It blocks for at most Timeout (DefaultAuthTimeout when zero) and
// guarantees the callback listener is shut down on every exit path.
func (f *Flow) Authorize(ctx context.Context) (*Token, error) {
	pkce, err := NewPKCE()
	if err != nil {
		return nil, err
	}
	state, err := NewStateToken()
	if err != nil {
		return nil, err
	}

	redirect, err := url.Parse(f.OAuth.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid redirect URL %q: %w", f.OAuth.RedirectURL, err)
	}

	listener := f.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", redirect.Host)
		if err != nil {
			return nil, fmt.Errorf("auth: failed to listen on %s for callback: %w", redirect.Host, err)
		}
	}

	resultCh := make(chan callbackResult, 1)
	var once sync.Once
	deliver := func(res callbackResult) {
		once.Do(func() { resultCh <- res })
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	router := chi.NewRouter()
	router.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			writeCallbackPage(w, http.StatusBadRequest, "Authorization failed: state mismatch.")
			deliver(callbackResult{err: ErrStateMismatch})
			return
		}
		if errCode := q.Get("error"); errCode != "" {
			denied := &ProviderDeniedError{Code: errCode, Description: q.Get("error_description")}
			writeCallbackPage(w, http.StatusBadRequest, "Authorization failed: "+denied.Error())
			deliver(callbackResult{err: denied})
			return
		}
		code := q.Get("code")
		if code == "" {
			writeCallbackPage(w, http.StatusBadRequest, "Authorization failed: callback carried no code.")
			deliver(callbackResult{err: errors.New("auth: callback carried neither code nor error")})
			return
		}
		writeCallbackPage(w, http.StatusOK, "Authorization complete. You can close this window.")
		deliver(callbackResult{code: code})
	})

	srv := &http.Server{Handler: router}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[auth] %s: callback server error: %v", f.Name, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[auth] %s: failed to shut down callback server: %v", f.Name, err)
		}
	}()

	authURL := f.OAuth.AuthCodeURL(state, oauth2.S256ChallengeOption(pkce.Verifier))
	log.Printf("[auth] %s: open this URL to authorize:\n%s", f.Name, authURL)
	if f.OpenURL != nil {
		if err := f.OpenURL(authURL); err != nil {
			log.Printf("[auth] %s: failed to open browser: %v", f.Name, err)
		}
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}

	var code string
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-time.After(timeout):
		return nil, ErrAuthTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := f.OAuth.Exchange(ctx, code, oauth2.VerifierOption(pkce.Verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return nil, &TokenExchangeError{Status: status, Body: string(retrieveErr.Body), Err: err}
		}
		return nil, fmt.Errorf("auth: code exchange for %s failed: %w", f.Name, err)
	}

	record := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    tok.Expiry,
	}
	if err := f.Store.Save(record); err != nil {
		return nil, err
	}
	log.Printf("[auth] %s: authorization complete, token saved", f.Name)
	return record, nil
}

func writeCallbackPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Social Publisher</title></head>
<body style="font-family: sans-serif; max-width: 600px; margin: 50px auto;">
<p>%s</p>
</body>
</html>`, message)
}
