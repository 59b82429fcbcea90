package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Refresh body encodings understood by the client.
const (
	RefreshEncodingForm = "form"
	RefreshEncodingJSON = "json"
)

// Config holds the runtime configuration for the authr CLI.
// Values come from the environment, with an optional .env file loaded first.
type Config struct {
	ServiceName string // e.g. "authr"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.

	BaseURL      string // e.g. http://localhost:4000
	LoginPath    string
	RegisterPath string
	RefreshPath  string
	LogoutPath   string
	WhoamiPath   string
	TodoPath     string

	// RequestTimeout is passed through to the HTTP transport. Zero keeps the transport default.
	RequestTimeout  time.Duration
	RefreshEncoding string // "form" or "json"

	Username string
	Password string
	Email    string

	// CredentialsSecret names an AWS Secrets Manager secret holding
	// {"username": ..., "password": ..., "email": ...}. Used when no username is given.
	CredentialsSecret string
	AWSRegion         string
	CacheTTL          time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName:       GetEnv("SERVICE_NAME", "authr"),
		Env:               GetEnv("ENV", "dev"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		BaseURL:           GetEnv("AUTHR_BASE_URL", "http://localhost:4000"),
		LoginPath:         GetEnv("AUTHR_LOGIN_PATH", "/login"),
		RegisterPath:      GetEnv("AUTHR_REGISTER_PATH", "/register"),
		RefreshPath:       GetEnv("AUTHR_REFRESH_PATH", "/refresh"),
		LogoutPath:        GetEnv("AUTHR_LOGOUT_PATH", "/logout"),
		WhoamiPath:        GetEnv("AUTHR_WHOAMI_PATH", "/whoami"),
		TodoPath:          GetEnv("AUTHR_TODO_PATH", "/todo"),
		RequestTimeout:    GetEnvDuration("AUTHR_TIMEOUT", 0),
		RefreshEncoding:   GetEnvChoice("AUTHR_REFRESH_ENCODING", RefreshEncodingForm, RefreshEncodingForm, RefreshEncodingJSON),
		Username:          GetEnv("AUTHR_USERNAME", ""),
		Password:          GetEnv("AUTHR_PASSWORD", ""),
		Email:             GetEnv("AUTHR_EMAIL", ""),
		CredentialsSecret: GetEnv("AUTHR_CREDENTIALS_SECRET", ""),
		AWSRegion:         GetEnv("AWS_REGION", "us-east-2"),
		CacheTTL:          GetEnvDuration("CACHE_TTL", 30*time.Minute),
	}
}

// URL joins the base URL and an endpoint path. Absolute URLs are returned unchanged.
func (c *Config) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}
