// Package authclient exchanges credentials for bearer tokens and makes authorized
// calls with them. Sessions are plain values owned by the caller.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/authr-client/internal/httpclient"
	"github.com/Checker-Finance/authr-client/internal/metrics"
	"github.com/Checker-Finance/authr-client/pkg/utils"
)

// RefreshEncoding selects how the refresh token is sent to the refresh endpoint.
type RefreshEncoding int

const (
	// RefreshForm posts form field refresh=<token>.
	RefreshForm RefreshEncoding = iota
	// RefreshJSON posts {"refresh_token": <token>}.
	RefreshJSON
)

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout         time.Duration
	refreshEncoding RefreshEncoding
}

// WithTimeout bounds every request. Zero keeps the transport default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRefreshEncoding selects the refresh request body encoding.
func WithRefreshEncoding(enc RefreshEncoding) Option {
	return func(o *options) { o.refreshEncoding = enc }
}

// Client performs credential exchange and bearer-authorized calls against a remote API.
// It keeps no token state; callers pass a Session into every authorized call.
type Client struct {
	logger          *zap.Logger
	exec            *httpclient.Executor
	refreshEncoding RefreshEncoding
}

// New constructs a Client. A nil httpClient uses a default http.Client.
func New(logger *zap.Logger, httpClient *http.Client, opts ...Option) *Client {
	o := options{refreshEncoding: RefreshForm}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		logger:          logger,
		exec:            httpclient.New(logger, httpClient, "authr", o.timeout),
		refreshEncoding: o.refreshEncoding,
	}
}

// Login posts {"username","password"} to endpoint and returns the issued Session.
func (c *Client) Login(ctx context.Context, creds Credentials, endpoint string) (Session, error) {
	body, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return Session{}, &ProtocolError{Op: OpLogin, Err: err}
	}

	res, err := c.send(ctx, OpLogin, http.MethodPost, endpoint, bytes.NewReader(body), "application/json", nil)
	if err != nil {
		return Session{}, err
	}

	s, err := c.sessionFrom(OpLogin, res)
	if err != nil {
		return Session{}, err
	}
	c.logger.Info("authr.login_success",
		zap.String("user", creds.Username),
		zap.String("access_token", utils.MaskToken(s.AccessToken)))
	return s, nil
}

// Register posts {"username","password","email"} to endpoint and returns the issued Session.
func (c *Client) Register(ctx context.Context, creds Credentials, endpoint string) (Session, error) {
	body, err := json.Marshal(registerRequest{Username: creds.Username, Password: creds.Password, Email: creds.Email})
	if err != nil {
		return Session{}, &ProtocolError{Op: OpRegister, Err: err}
	}

	res, err := c.send(ctx, OpRegister, http.MethodPost, endpoint, bytes.NewReader(body), "application/json", nil)
	if err != nil {
		return Session{}, err
	}

	s, err := c.sessionFrom(OpRegister, res)
	if err != nil {
		return Session{}, err
	}
	c.logger.Info("authr.register_success",
		zap.String("user", creds.Username),
		zap.String("access_token", utils.MaskToken(s.AccessToken)))
	return s, nil
}

// Refresh exchanges refreshToken for a new Session.
// The body is form-encoded (refresh=<token>) unless RefreshJSON was selected.
func (c *Client) Refresh(ctx context.Context, refreshToken, endpoint string) (Session, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch c.refreshEncoding {
	case RefreshJSON:
		b, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
		if err != nil {
			return Session{}, &ProtocolError{Op: OpRefresh, Err: err}
		}
		body, contentType = bytes.NewReader(b), "application/json"
	default:
		form := url.Values{"refresh": {refreshToken}}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	res, err := c.send(ctx, OpRefresh, http.MethodPost, endpoint, body, contentType, nil)
	if err != nil {
		return Session{}, err
	}

	s, err := c.sessionFrom(OpRefresh, res)
	if err != nil {
		return Session{}, err
	}
	c.logger.Info("authr.refresh_success",
		zap.String("access_token", utils.MaskToken(s.AccessToken)))
	return s, nil
}

// Logout posts to endpoint with the session's bearer token and no body.
// The session is left untouched; the caller is expected to discard it on success.
func (c *Client) Logout(ctx context.Context, session Session, endpoint string) error {
	res, err := c.send(ctx, OpLogout, http.MethodPost, endpoint, nil, "", &session)
	if err != nil {
		return err
	}
	if !isSuccess(res.StatusCode) {
		return c.reject(OpLogout, res)
	}
	c.logger.Info("authr.logout_success",
		zap.String("access_token", utils.MaskToken(session.AccessToken)))
	return nil
}

// AuthorizedGet sends a GET with the session's bearer token.
// Non-2xx statuses, 401 included, come back as a normal Response.
func (c *Client) AuthorizedGet(ctx context.Context, rawURL string, session Session) (*Response, error) {
	res, err := c.send(ctx, OpGet, http.MethodGet, rawURL, nil, "", &session)
	if err != nil {
		return nil, err
	}
	return toResponse(res), nil
}

// AuthorizedPost sends payload as JSON with the session's bearer token.
// json.RawMessage and []byte payloads are sent verbatim after a validity check.
// Non-2xx statuses, 401 included, come back as a normal Response.
func (c *Client) AuthorizedPost(ctx context.Context, rawURL string, session Session, payload any) (*Response, error) {
	body, err := encodePayload(payload)
	if err != nil {
		return nil, &ProtocolError{Op: OpPost, Err: err}
	}

	var reader io.Reader
	contentType := ""
	if body != nil {
		reader, contentType = bytes.NewReader(body), "application/json"
	}

	res, err := c.send(ctx, OpPost, http.MethodPost, rawURL, reader, contentType, &session)
	if err != nil {
		return nil, err
	}
	return toResponse(res), nil
}

// send builds and executes one request. Only a missing response is an error here.
func (c *Client) send(ctx context.Context, op, method, rawURL string, body io.Reader, contentType string, session *Session) (*httpclient.Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &TransportError{Op: op, URL: rawURL, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session != nil {
		req.Header.Set("Authorization", session.bearer())
	}

	res, err := c.exec.Do(ctx, op, req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: rawURL, Err: err}
	}
	return res, nil
}

// sessionFrom turns an auth-flow response into a Session or an error.
func (c *Client) sessionFrom(op string, res *httpclient.Result) (Session, error) {
	if !isSuccess(res.StatusCode) {
		return Session{}, c.reject(op, res)
	}

	s, err := decodeSession(res.Body)
	if err != nil {
		c.logger.Warn("authr.decode_failed",
			zap.String("op", op),
			zap.Int("status", res.StatusCode),
			zap.Error(err))
		return Session{}, &ProtocolError{Op: op, StatusCode: res.StatusCode, Body: res.Body, Err: err}
	}
	if s.AccessToken == "" {
		return Session{}, &ProtocolError{Op: op, StatusCode: res.StatusCode, Body: res.Body, Err: errMissingAccessToken}
	}
	return s, nil
}

func (c *Client) reject(op string, res *httpclient.Result) error {
	msg := extractMessage(res.Body)
	metrics.IncAuthFailure(op, res.StatusCode)
	c.logger.Warn("authr.auth_rejected",
		zap.String("op", op),
		zap.Int("status", res.StatusCode),
		zap.String("message", msg),
		zap.String("request_id", res.RequestID),
		zap.Duration("elapsed", res.Elapsed))
	return &AuthError{Op: op, StatusCode: res.StatusCode, Message: msg}
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func toResponse(res *httpclient.Result) *Response {
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       res.Body,
		RequestID:  res.RequestID,
		Elapsed:    res.Elapsed,
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
