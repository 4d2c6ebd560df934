package goSession

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches any *HTTPError carrying a 401 status.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches any *HTTPError carrying a 403 status.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches any *HTTPError carrying a 404 status.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches any *HTTPError carrying a 409 status.
	ErrConflict = errors.New("conflict")
	// ErrServer matches any *HTTPError carrying a 5xx status.
	ErrServer = errors.New("server error")
	// ErrSessionExpired is matched by errors returned when the session could not be renewed.
	ErrSessionExpired = errors.New("session expired")
	// ErrTransport wraps network-level failures (dial, TLS, timeouts, reset connections).
	ErrTransport = errors.New("transport failure")
	// ErrInvalidRequest is returned for requests that cannot be built (bad path, unencodable body).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrClientNotReady is returned by methods called on a nil or closed Client.
	ErrClientNotReady = errors.New("client not initialized")
	// ErrInvalidConfig is returned by Config.Validate for rejected configurations.
	ErrInvalidConfig = errors.New("invalid config")

	errRefreshPanicked = errors.New("session refresh panicked")
)

// HTTPError is returned for every non-2xx response. The body is kept verbatim
// so callers can decode backend-specific error payloads.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 256 {
		msg = msg[:256] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is maps status codes onto the package sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrServer:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// SessionExpiredError reports that the session was lost and could not be
// renewed. Cause is the refresh failure (or the 401 from the refresh
// endpoint itself).
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return ErrSessionExpired.Error()
	}
	return ErrSessionExpired.Error() + ": " + e.Cause.Error()
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Cause
}

func isUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}
