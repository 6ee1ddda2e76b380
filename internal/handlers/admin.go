// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/services/lockout"
)

type lockUserRequest struct {
	// Until is optional; omitted means an indefinite lock.
	Until *time.Time `json:"until"`
}

type setRoleRequest struct {
	Role models.Role `json:"role"`
}

// AdminListUsers returns all accounts, newest first.
func (h *Handlers) AdminListUsers(c echo.Context) error {
	users, err := h.repo.ListUsers(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// AdminLockUser locks an account and revokes its sessions.
func (h *Handlers) AdminLockUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	var req lockUserRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if err := h.auth.LockUser(c.Request().Context(), id, req.Until); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "account locked"})
}

// AdminUnlockUser clears any lock and the failure counter.
func (h *Handlers) AdminUnlockUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	if err := h.auth.UnlockUser(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "account unlocked"})
}

// AdminSetUserRole updates an account's role.
func (h *Handlers) AdminSetUserRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	var req setRoleRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if !req.Role.Valid() {
		return errorJSON(c, http.StatusUnprocessableEntity, "invalid role")
	}

	if err := h.repo.SetUserRole(c.Request().Context(), id, req.Role); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "role updated"})
}

// AdminListLoginAttempts returns the newest login attempts for one
// account plus the failure count inside the current lockout window.
func (h *Handlers) AdminListLoginAttempts(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}

	attempts, err := h.repo.ListLoginAttempts(c.Request().Context(), id, 50)
	if err != nil {
		return fail(c, err)
	}
	cutoff := time.Now().UTC().Add(-lockout.LockDuration)
	failures, err := h.repo.CountRecentFailedAttempts(c.Request().Context(), id, cutoff)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"attempts":        attempts,
		"recent_failures": failures,
	})
}

// AdminDeleteUser removes an account. Tokens and login attempts go
// with it via the foreign-key cascade.
func (h *Handlers) AdminDeleteUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user id")
	}
	if err := h.repo.DeleteUser(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
