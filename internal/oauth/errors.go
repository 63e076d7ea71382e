package oauth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Token lifecycle error taxonomy. Handlers surface these during initial
// setup; the session gate collapses all of them to "no token".
var (
	// ErrStateExpired means the round-tripped state outlived its TTL
	ErrStateExpired = errors.New("authorization state expired")

	// ErrStateMalformed means the state parameter did not decode
	ErrStateMalformed = errors.New("authorization state malformed")

	// ErrVerifierMissing means neither the state nor the fallback cookie
	// produced a PKCE verifier
	ErrVerifierMissing = errors.New("code verifier missing")

	// ErrSessionInvalid means the refresh token was rejected and the
	// caller must treat the session as never authenticated
	ErrSessionInvalid = errors.New("session invalid, re-authentication required")

	// ErrNotAuthenticated means no token record exists at all
	ErrNotAuthenticated = errors.New("not authenticated")
)

// UpstreamError reports a token endpoint rejection, preserving the
// upstream status and body for diagnostics.
type UpstreamError struct {
	Op         string // "exchange" or "refresh"
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed: token endpoint returned %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// newUpstreamError maps token endpoint failures, unwrapping the status
// and body the oauth2 library captured. Timeouts and transport errors
// come through with StatusCode 0.
func newUpstreamError(op string, err error) *UpstreamError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		statusCode := 0
		if retrieveErr.Response != nil {
			statusCode = retrieveErr.Response.StatusCode
		}
		return &UpstreamError{Op: op, StatusCode: statusCode, Body: string(retrieveErr.Body), Err: err}
	}
	return &UpstreamError{Op: op, Err: err}
}
