package config

import (
	"os"
	"strings"
	"time"
)

// GetEnv returns the environment variable value for key, or def if unset or empty.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvDuration returns the environment variable value for key parsed as time.Duration, or def if unset or invalid.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

// GetEnvChoice returns the lower-cased value for key when it is one of allowed, or def otherwise.
func GetEnvChoice(key, def string, allowed ...string) string {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	return def
}
