package authclient

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

var errMissingAccessToken = errors.New("response has no access_token")

// TransportError means no HTTP response was obtained: DNS, refused connection,
// timeout, cancellation, or a body that could not be read.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("authr %s: transport error calling %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means a body was expected to be JSON (or to carry an access
// token) and was not, or a request payload could not be encoded.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authr %s: protocol error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("authr %s: protocol error (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError is a non-2xx answer from login, register, refresh or logout.
type AuthError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authr %s rejected: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("authr %s rejected: %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is an AuthError carrying 401.
func IsUnauthorized(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

// StatusCode returns the HTTP status carried by an AuthError or ProtocolError.
func StatusCode(err error) (int, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.StatusCode, true
	}
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return pe.StatusCode, true
	}
	return 0, false
}

// extractMessage pulls a human-readable message out of an error body.
// Servers answer with a bare JSON string, an object with message/error, or plain text.
func extractMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if !gjson.ValidBytes(trimmed) {
		return string(trimmed)
	}

	res := gjson.ParseBytes(trimmed)
	if res.Type == gjson.String {
		return res.String()
	}
	if res.IsObject() {
		for _, key := range []string{"message", "error", "error_description", "detail"} {
			if v := res.Get(key); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	return string(trimmed)
}
