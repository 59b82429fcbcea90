package authclient

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Operation names used in errors, logs and metrics.
const (
	OpLogin    = "login"
	OpRegister = "register"
	OpRefresh  = "refresh"
	OpLogout   = "logout"
	OpGet      = "get"
	OpPost     = "post"
)

// Credentials are supplied by the caller for login and register. They are never stored.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// Session is the token pair returned by login, register and refresh.
// It is a plain value owned by the caller; the client never mutates one.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// Informational fields some servers return alongside the tokens.
	// They are filled best-effort; a value of an unexpected type is left empty.
	ID       string   `json:"id,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Response is the outcome of an authorized call. Any HTTP status is a valid Response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
	Elapsed    time.Duration
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the raw body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into out. An undecodable body yields a *ProtocolError.
func (r *Response) JSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &ProtocolError{Op: "decode", StatusCode: r.StatusCode, Body: r.Body, Err: err}
	}
	return nil
}

type tokenFields struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// decodeSession reads the token pair strictly and the informational fields
// leniently: "id" may be a string or a number, "roles" an array or a
// comma-separated string.
func decodeSession(body []byte) (Session, error) {
	var tf tokenFields
	if err := json.Unmarshal(body, &tf); err != nil {
		return Session{}, err
	}

	doc := gjson.ParseBytes(body)
	return Session{
		AccessToken:  tf.AccessToken,
		RefreshToken: tf.RefreshToken,
		ID:           scalar(doc.Get("id")),
		Username:     scalar(doc.Get("username")),
		Email:        scalar(doc.Get("email")),
		Roles:        roles(doc.Get("roles")),
	}, nil
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String, gjson.Number:
		return v.String()
	default:
		return ""
	}
}

func roles(v gjson.Result) []string {
	var out []string
	switch {
	case v.IsArray():
		for _, r := range v.Array() {
			if s := scalar(r); s != "" {
				out = append(out, s)
			}
		}
	case v.Type == gjson.String:
		for _, r := range strings.Split(v.String(), ",") {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
	}
	return out
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
