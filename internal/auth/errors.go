package auth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrStateMismatch indicates the callback carried a state parameter that
	// does not match the nonce issued for this authorization attempt.
	ErrStateMismatch = errors.New("auth: callback state does not match")
	// ErrAuthTimeout indicates no callback arrived before the flow deadline.
	ErrAuthTimeout = errors.New("auth: timed out waiting for authorization callback")
	// ErrUnauthorized indicates the provider rejected the request even after
	// one refresh-and-retry cycle. Not retried further.
	ErrUnauthorized = errors.New("auth: request unauthorized after token refresh")
	// ErrNotAuthorized indicates no usable credentials exist; the interactive
	// login flow must be run first.
	ErrNotAuthorized = errors.New("auth: no stored credentials, run login first")
)

// ProviderDeniedError is returned when the authorization callback carries a
// provider error (e.g. the user cancelled the consent screen).
type ProviderDeniedError struct {
	Code        string
	Description string
}

func (e *ProviderDeniedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("auth: provider denied authorization: %s", e.Code)
	}
	return fmt.Sprintf("auth: provider denied authorization: %s (%s)", e.Code, e.Description)
}

// TokenExchangeError is returned when the token endpoint rejects a code
// exchange or refresh. Body is kept verbatim for diagnostics.
type TokenExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("auth: token exchange failed: status=%d body=%s", e.Status, e.Body)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// RequestError is any non-auth HTTP failure from a provider. Propagated
// verbatim, never swallowed.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed: status=%d", e.Status)
	}
	return fmt.Sprintf("request failed: status=%d body=%s", e.Status, e.Body)
}

// ReadRequestError drains up to 8KB of the response body into a RequestError.
// The response body is consumed.
func ReadRequestError(resp *http.Response) *RequestError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
