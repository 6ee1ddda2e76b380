// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"

	"github.com/stem-ed-architects/backend/internal/config"
)

// SessionCookie mirrors the bearer token pair into a signed cookie so
// browser clients do not have to keep tokens in script-reachable
// storage. API clients ignore it and send Authorization headers.
type SessionCookie struct {
	codec  *securecookie.SecureCookie
	name   string
	secure bool
	maxAge time.Duration
}

// SessionPayload is the value sealed into the session cookie.
type SessionPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// NewSessionCookie builds the cookie codec from the configured keys.
// Returns nil when cookie sessions are disabled.
func NewSessionCookie(cfg *config.AuthConfig) (*SessionCookie, error) {
	if !cfg.CookieSessions {
		return nil, nil
	}
	hashKey, err := hex.DecodeString(cfg.CookieHashKey)
	if err != nil || len(hashKey) != 32 {
		return nil, errors.New("cookie hash key must be 32 bytes of hex")
	}
	var blockKey []byte
	if cfg.CookieBlockKey != "" {
		blockKey, err = hex.DecodeString(cfg.CookieBlockKey)
		if err != nil || len(blockKey) != 32 {
			return nil, errors.New("cookie block key must be 32 bytes of hex")
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &SessionCookie{
		codec:  codec,
		name:   cfg.CookieName,
		secure: cfg.CookieSecure,
		maxAge: cfg.RefreshTokenTTL,
	}, nil
}

// Write seals the payload into the response cookie.
func (s *SessionCookie) Write(c echo.Context, payload SessionPayload) error {
	encoded, err := s.codec.Encode(s.name, payload)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     s.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(s.maxAge.Seconds()),
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read unseals the session cookie. A missing or tampered cookie
// returns an error; the caller treats that as "not logged in".
func (s *SessionCookie) Read(c echo.Context) (*SessionPayload, error) {
	cookie, err := c.Cookie(s.name)
	if err != nil {
		return nil, err
	}
	var payload SessionPayload
	if err := s.codec.Decode(s.name, cookie.Value, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Clear expires the session cookie.
func (s *SessionCookie) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
