package authtest

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, s *Server, path, contentType, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.URL(path), strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestServer_LoginIssuesTokenPair(t *testing.T) {
	s := NewServer()
	id := s.AddUser("alexj", "goose", "alexj@example.test")

	resp := post(t, s, "/login", "application/json", `{"username":"alexj","password":"goose"}`, "")
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"access_token"`)
	assert.Contains(t, body, `"refresh_token"`)
	assert.Contains(t, body, id)
	assert.Equal(t, 2, s.ActiveTokens())
}

func TestServer_LoginWrongPassword(t *testing.T) {
	s := NewServer()
	s.AddUser("alexj", "goose", "")

	resp := post(t, s, "/login", "application/json", `{"username":"alexj","password":"maverick"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `"Please provide valid login details"`, readBody(t, resp))
}

func TestServer_LoginInvalidJSON(t *testing.T) {
	s := NewServer()

	resp := post(t, s, "/login", "application/json", `{`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, `"Invalid json provided"`, readBody(t, resp))
}

func TestServer_TodoRequiresToken(t *testing.T) {
	s := NewServer()

	resp := post(t, s, "/todo", "application/json", `{"title":"t"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `"unauthorized"`, readBody(t, resp))
	assert.Equal(t, 1, s.Hits("/todo"))
}

func TestServer_RefreshFormAndJSON(t *testing.T) {
	s := NewServer()
	s.AddUser("alexj", "goose", "")

	u, _ := s.byUsername("alexj")
	pair, err := s.issue(u)
	require.NoError(t, err)

	form := url.Values{"refresh": {pair.RefreshToken}}.Encode()
	resp := post(t, s, "/refresh", "application/x-www-form-urlencoded", form, "")
	body := readBody(t, resp)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	// The first refresh token is single-use.
	resp = post(t, s, "/refresh", "application/json", `{"refresh_token":"`+pair.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	readBody(t, resp)

	assert.Equal(t, []string{"application/x-www-form-urlencoded", "application/json"}, s.RefreshContentTypes())
}

func TestServer_ExpiredAccessTokenRejected(t *testing.T) {
	s := NewServer()
	s.AddUser("alexj", "goose", "")
	u, _ := s.byUsername("alexj")
	pair, err := s.issue(u)
	require.NoError(t, err)

	s.SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	resp := post(t, s, "/echo", "application/json", `{}`, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	readBody(t, resp)
}

func TestServer_LogoutRevokesBothTokens(t *testing.T) {
	s := NewServer()
	s.AddUser("alexj", "goose", "")
	u, _ := s.byUsername("alexj")
	pair, err := s.issue(u)
	require.NoError(t, err)
	require.Equal(t, 2, s.ActiveTokens())

	resp := post(t, s, "/logout", "", "", pair.AccessToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"Successfully logged out"`, readBody(t, resp))
	assert.Equal(t, 0, s.ActiveTokens())
}

func (s *Server) byUsername(name string) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	return u, ok
}
