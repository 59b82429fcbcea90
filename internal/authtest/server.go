// Package authtest provides an in-process fake of the remote auth + todo API.
// It issues HS256 JWT pairs, revokes them on logout, rotates them on refresh,
// and guards /todo, /whoami and /echo with bearer authentication. Requests
// reach it through Client(), whose transport dispatches into the fiber app
// without opening a socket.
package authtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BaseURL is the host the fake answers on when reached through Client().
const BaseURL = "http://authr.test"

const (
	claimUserID      = "user_id"
	claimAccessUUID  = "access_uuid"
	claimRefreshUUID = "refresh_uuid"
	claimRole        = "role"
)

type user struct {
	id       string
	username string
	email    string
	hash     []byte
	roles    []string
}

// Todo mirrors the resource stored by the fake /todo endpoint.
type Todo struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type tokenPair struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
}

// Server is the fake API. The zero value is not usable; call NewServer.
type Server struct {
	app           *fiber.App
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time

	mu      sync.Mutex
	users   map[string]*user     // by username
	byID    map[string]*user     // by id
	active  map[string]time.Time // token uuid → expiry
	todos   map[string][]Todo    // by user id
	hits    map[string]int       // by route path
	refresh []string             // content types seen on /refresh
}

// NewServer builds the fake with its routes registered.
func NewServer() *Server {
	s := &Server{
		accessSecret:  []byte("access-" + uuid.NewString()),
		refreshSecret: []byte("refresh-" + uuid.NewString()),
		accessTTL:     30 * time.Minute,
		refreshTTL:    7 * 24 * time.Hour,
		now:           time.Now,
		users:         make(map[string]*user),
		byID:          make(map[string]*user),
		active:        make(map[string]time.Time),
		todos:         make(map[string][]Todo),
		hits:          make(map[string]int),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(func(c *fiber.Ctx) error {
		s.mu.Lock()
		s.hits[c.Path()]++
		s.mu.Unlock()
		return c.Next()
	})
	app.Post("/login", s.login)
	app.Post("/register", s.register)
	app.Post("/refresh", s.refreshTokens)
	app.Post("/logout", s.logout)
	app.Get("/whoami", s.requireToken, s.whoami)
	app.Get("/todo", s.requireToken, s.listTodos)
	app.Post("/todo", s.requireToken, s.createTodo)
	app.Post("/echo", s.requireToken, s.echo)
	s.app = app
	return s
}

// URL returns BaseURL joined with path.
func (s *Server) URL(path string) string { return BaseURL + path }

// Client returns an http.Client whose transport serves every request from the fake.
func (s *Server) Client() *http.Client {
	return &http.Client{Transport: &fiberTransport{app: s.app}}
}

// AddUser registers a user directly and returns its id.
func (s *Server) AddUser(username, password, email string, roles ...string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("authtest: hash password: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, hash, roles)
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// ActiveTokens returns the number of unrevoked access and refresh tokens.
func (s *Server) ActiveTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// RefreshContentTypes returns the Content-Type of every /refresh request in order.
func (s *Server) RefreshContentTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refresh...)
}

// SetClock replaces the time source used for issuing and validating tokens.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Server) addUserLocked(username, email string, hash []byte, roles []string) string {
	if len(roles) == 0 {
		roles = []string{"ROLE_USER"}
	}
	u := &user{id: uuid.NewString(), username: username, email: email, hash: hash, roles: roles}
	s.users[username] = u
	s.byID[u.id] = u
	return u.id
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) login(c *fiber.Ctx) error {
	// A caller still holding a valid token gets it revoked first.
	if claims, err := s.accessClaims(c); err == nil {
		s.revoke(claims)
	}

	var args struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(c.Body(), &args); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON("Invalid json provided")
	}

	s.mu.Lock()
	u, ok := s.users[args.Username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(args.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON("Please provide valid login details")
	}

	pair, err := s.issue(u)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(err.Error())
	}
	return c.Status(fiber.StatusOK).JSON(pair)
}

func (s *Server) register(c *fiber.Ctx) error {
	if _, err := s.accessClaims(c); err == nil {
		return c.Status(fiber.StatusUnauthorized).JSON("unable to register - user is logged in")
	}

	var args struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(c.Body(), &args); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON("Invalid json provided")
	}
	if args.Username == "" || args.Password == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": "username and password are required"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(args.Password), bcrypt.MinCost)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON("error occurred")
	}

	s.mu.Lock()
	if _, exists := s.users[args.Username]; exists {
		s.mu.Unlock()
		return c.Status(fiber.StatusUnprocessableEntity).JSON("error occurred")
	}
	id := s.addUserLocked(args.Username, args.Email, hash, nil)
	u := s.byID[id]
	s.mu.Unlock()

	pair, err := s.issue(u)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(err.Error())
	}
	return c.Status(fiber.StatusOK).JSON(pair)
}

// refreshTokens accepts the token as form field "refresh" or JSON "refresh_token".
func (s *Server) refreshTokens(c *fiber.Ctx) error {
	contentType := string(c.Request().Header.ContentType())
	s.mu.Lock()
	s.refresh = append(s.refresh, contentType)
	s.mu.Unlock()

	var raw string
	if strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		var body map[string]string
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(err.Error())
		}
		raw = body["refresh_token"]
	} else {
		raw = c.FormValue("refresh")
	}

	claims, err := s.parse(raw, s.refreshSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON("Refresh token expired")
	}
	refreshUUID, _ := claims[claimRefreshUUID].(string)
	userID, _ := claims[claimUserID].(string)
	if refreshUUID == "" || userID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON("unauthorized")
	}

	s.mu.Lock()
	_, live := s.active[refreshUUID]
	u, known := s.byID[userID]
	if live {
		delete(s.active, refreshUUID)
		delete(s.active, strings.TrimSuffix(refreshUUID, "++"+userID))
	}
	s.mu.Unlock()
	if !live {
		return c.Status(fiber.StatusUnauthorized).JSON("unauthorized")
	}
	if !known {
		return c.Status(fiber.StatusForbidden).JSON("unknown user")
	}

	pair, err := s.issue(u)
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(pair)
}

func (s *Server) logout(c *fiber.Ctx) error {
	if claims, err := s.accessClaims(c); err == nil {
		s.revoke(claims)
	}
	return c.Status(fiber.StatusOK).JSON("Successfully logged out")
}

func (s *Server) whoami(c *fiber.Ctx) error {
	userID, _ := c.Locals(claimUserID).(string)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"code":    fiber.StatusOK,
		"message": fmt.Sprintf("hello [%s]", userID),
	})
}

func (s *Server) listTodos(c *fiber.Ctx) error {
	userID, _ := c.Locals(claimUserID).(string)
	s.mu.Lock()
	todos := append([]Todo{}, s.todos[userID]...)
	s.mu.Unlock()
	return c.Status(fiber.StatusOK).JSON(todos)
}

func (s *Server) createTodo(c *fiber.Ctx) error {
	var td Todo
	if err := json.Unmarshal(c.Body(), &td); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON("invalid json")
	}
	userID, _ := c.Locals(claimUserID).(string)
	td.UserID = userID

	s.mu.Lock()
	s.todos[userID] = append(s.todos[userID], td)
	s.mu.Unlock()
	return c.Status(fiber.StatusOK).JSON(td)
}

func (s *Server) echo(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(c.Body())
}

// requireToken rejects requests without a live access token.
func (s *Server) requireToken(c *fiber.Ctx) error {
	claims, err := s.accessClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON("unauthorized")
	}
	c.Locals(claimUserID, claims[claimUserID])
	return c.Next()
}

// ─── Tokens ───────────────────────────────────────────────────────────────────

func (s *Server) issue(u *user) (tokenPair, error) {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	accessUUID := uuid.NewString()
	refreshUUID := accessUUID + "++" + u.id
	atExp := now.Add(s.accessTTL)
	rtExp := now.Add(s.refreshTTL)

	at, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claimAccessUUID: accessUUID,
		claimUserID:     u.id,
		claimRole:       strings.Join(u.roles, ","),
		"exp":           jwt.NewNumericDate(atExp),
	}).SignedString(s.accessSecret)
	if err != nil {
		return tokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	rt, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claimRefreshUUID: refreshUUID,
		claimUserID:      u.id,
		"exp":            jwt.NewNumericDate(rtExp),
	}).SignedString(s.refreshSecret)
	if err != nil {
		return tokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	s.mu.Lock()
	s.active[accessUUID] = atExp
	s.active[refreshUUID] = rtExp
	s.mu.Unlock()

	return tokenPair{
		ID:           u.id,
		Username:     u.username,
		Email:        u.email,
		Roles:        u.roles,
		AccessToken:  at,
		RefreshToken: rt,
	}, nil
}

// accessClaims returns the claims of a live bearer token on the request.
func (s *Server) accessClaims(c *fiber.Ctx) (jwt.MapClaims, error) {
	parts := strings.Split(c.Get(fiber.HeaderAuthorization), " ")
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("no bearer token")
	}

	claims, err := s.parse(parts[1], s.accessSecret)
	if err != nil {
		return nil, err
	}
	accessUUID, _ := claims[claimAccessUUID].(string)

	s.mu.Lock()
	_, live := s.active[accessUUID]
	s.mu.Unlock()
	if !live {
		return nil, fmt.Errorf("token revoked")
	}
	return claims, nil
}

func (s *Server) parse(raw string, secret []byte) (jwt.MapClaims, error) {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Server) revoke(claims jwt.MapClaims) {
	accessUUID, _ := claims[claimAccessUUID].(string)
	userID, _ := claims[claimUserID].(string)
	s.mu.Lock()
	delete(s.active, accessUUID)
	delete(s.active, accessUUID+"++"+userID)
	s.mu.Unlock()
}

// ─── Transport ────────────────────────────────────────────────────────────────

type fiberTransport struct {
	app *fiber.App
}

func (t *fiberTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	return t.app.Test(req, -1)
}
