// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireAuth resolves the access token from the Authorization header,
// falling back to the session cookie, and puts the account into the
// request context. Challenge tokens never pass.
func (h *Handlers) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accessToken := bearerToken(c)
		if accessToken == "" && h.session != nil {
			if payload, err := h.session.Read(c); err == nil {
				accessToken = payload.AccessToken
			}
		}
		if accessToken == "" {
			return errorJSON(c, http.StatusUnauthorized, "authentication required")
		}

		user, err := h.auth.CurrentUser(c.Request().Context(), accessToken)
		if err != nil {
			return fail(c, err)
		}

		c.Set(userContextKey, user)
		return next(c)
	}
}

// OptionalAuth resolves the account when a valid token is present and
// stays silent otherwise. Public endpoints use it to unlock extra
// behavior for admins.
func (h *Handlers) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accessToken := bearerToken(c)
		if accessToken == "" && h.session != nil {
			if payload, err := h.session.Read(c); err == nil {
				accessToken = payload.AccessToken
			}
		}
		if accessToken != "" {
			if user, err := h.auth.CurrentUser(c.Request().Context(), accessToken); err == nil {
				c.Set(userContextKey, user)
			}
		}
		return next(c)
	}
}

// RequireAdmin allows only admin accounts past. Must run after
// RequireAuth.
func (h *Handlers) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := currentUser(c)
		if user == nil || !user.IsAdmin() {
			return errorJSON(c, http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
