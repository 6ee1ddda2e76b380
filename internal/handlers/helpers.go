// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/services/auth"
	"github.com/stem-ed-architects/backend/internal/services/password"
	"github.com/stem-ed-architects/backend/internal/services/refresh"
	"github.com/stem-ed-architects/backend/internal/services/token"
	"github.com/stem-ed-architects/backend/internal/services/twofactor"
)

const userContextKey = "auth.user"

// clientFrom extracts the request metadata bound into challenge tokens.
func clientFrom(c echo.Context) auth.Client {
	return auth.Client{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// currentUser returns the user placed in context by RequireAuth.
func currentUser(c echo.Context) *models.User {
	user, _ := c.Get(userContextKey).(*models.User)
	return user
}

// fail translates service errors into JSON error responses. Anything
// unmapped is logged and reported as a plain 500.
func fail(c echo.Context, err error) error {
	var lockedErr *auth.AccountLockedError
	var ratedErr *auth.RateLimitedError
	var policyErr *password.PolicyError

	switch {
	case errors.As(err, &lockedErr):
		body := map[string]any{"error": "account is locked"}
		if lockedErr.Until != nil {
			body["locked_until"] = lockedErr.Until.UTC()
		}
		return c.JSON(http.StatusLocked, body)

	case errors.As(err, &ratedErr):
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(ratedErr.RetryAfter.Seconds())))
		return errorJSON(c, http.StatusTooManyRequests, "too many login attempts")

	case errors.As(err, &policyErr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":    "password does not meet requirements",
			"failures": policyErr.Failures,
		})

	case errors.Is(err, auth.ErrInvalidCredentials):
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrTwoFactorInvalid):
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, token.ErrTokenInvalid):
		return errorJSON(c, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, refresh.ErrTokenInactive):
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrEmailNotVerified):
		return errorJSON(c, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrRegistrationClosed):
		return errorJSON(c, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrVerificationInvalid):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, twofactor.ErrAlreadyEnabled),
		errors.Is(err, twofactor.ErrNotEnabled),
		errors.Is(err, twofactor.ErrSetupRequired),
		errors.Is(err, twofactor.ErrCodeInvalid):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "not found")
	}

	slog.Error("unhandled error", "error", err, "path", c.Path())
	return errorJSON(c, http.StatusInternalServerError, "internal server error")
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
