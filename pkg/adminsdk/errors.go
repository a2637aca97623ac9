package adminsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/passport/pkg/httpx"
)

var (
	// ErrSessionExpired is returned when the session cannot be recovered:
	// the refresh failed, there was no refresh token, or no session existed.
	// It always wraps the error that caused it.
	ErrSessionExpired = errors.New("adminsdk: session expired")

	// ErrHookFailed wraps an error returned by a request or response hook.
	ErrHookFailed = errors.New("adminsdk: hook failed")

	// ErrNotLoggedIn is returned by operations that need stored credentials.
	ErrNotLoggedIn = errors.New("adminsdk: not logged in")
)

// APIError is an envelope whose code is not SUCCESS.
type APIError struct {
	Code     int
	Message  string
	Response *Response
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("adminsdk: code %d", e.Code)
	}
	return fmt.Sprintf("adminsdk: code %d: %s", e.Code, e.Message)
}

// HTTPError is a non-2xx response that carried no envelope.
type HTTPError struct {
	StatusCode int
	Response   *Response
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("adminsdk: HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ServerFault reports a 5xx status.
func (e *HTTPError) ServerFault() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

func sessionExpired(cause error) error {
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}

// IsCode reports whether err is an APIError with the given envelope code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsTransport reports whether err means no response was received.
func IsTransport(err error) bool {
	var terr *httpx.TransportError
	return errors.As(err, &terr)
}
