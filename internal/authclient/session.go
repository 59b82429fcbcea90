package authclient

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Valid reports whether the session carries an access token. It says nothing about expiry.
func (s Session) Valid() bool {
	return s.AccessToken != ""
}

// Claims decodes the access token as a JWT without verifying its signature.
// Opaque tokens return an error.
func (s Session) Claims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return nil, fmt.Errorf("access token is not a JWT: %w", err)
	}
	return claims, nil
}

// ExpiresAt returns the access token's exp claim, if it has one.
func (s Session) ExpiresAt() (time.Time, bool) {
	claims, err := s.Claims()
	if err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s Session) bearer() string {
	return "Bearer " + s.AccessToken
}
