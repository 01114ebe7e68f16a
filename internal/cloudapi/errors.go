package cloudapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrSessionNotInitialized is returned by authenticated calls issued before
// InitSession succeeded.
var ErrSessionNotInitialized = errors.New("cloudapi: no session, call InitSession with credentials first")

// ValidationError reports a missing or empty required argument. No network
// call is made when it is returned.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cloudapi: %s is empty", e.Field)
}

// MalformedBaseURLError is returned when no host can be derived from the base URL.
type MalformedBaseURLError struct {
	URL string
	Err error
}

func (e *MalformedBaseURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cloudapi: invalid base url %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("cloudapi: invalid base url %q: no host", e.URL)
}

func (e *MalformedBaseURLError) Unwrap() error { return e.Err }

// RemoteCallError describes a failed call to the control plane: a status
// outside 200-299, a transport failure or an unreadable reply.
type RemoteCallError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

const maxErrorSnippet = 256

func (e *RemoteCallError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("cloudapi: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("cloudapi: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("cloudapi: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Message())
	}
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// HTTPStatus returns the response status, or 0 when no response arrived.
func (e *RemoteCallError) HTTPStatus() int { return e.StatusCode }

// Message extracts a human readable reason from the reply body. JSON error
// bodies with a message or error field are preferred over the raw body.
func (e *RemoteCallError) Message() string {
	body := strings.TrimSpace(e.Body)
	if body != "" && gjson.Valid(body) {
		for _, path := range []string{"message", "error.message", "error", "errorMessage"} {
			if res := gjson.Get(body, path); res.Exists() && res.Type == gjson.String && res.Str != "" {
				return res.Str
			}
		}
	}
	if body != "" {
		if len(body) > maxErrorSnippet {
			return body[:maxErrorSnippet] + "..."
		}
		return body
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "empty response"
}

// IsStatus reports whether err is a RemoteCallError with the given status.
func IsStatus(err error, status int) bool {
	var rce *RemoteCallError
	return errors.As(err, &rce) && rce.StatusCode == status
}
