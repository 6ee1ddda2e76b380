// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

type twoFactorDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// TwoFactorStatus reports whether 2FA is enabled and how many backup
// codes remain.
func (h *Handlers) TwoFactorStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.twoFactor.StatusFor(currentUser(c)))
}

// TwoFactorSetup starts enrollment: it stores an encrypted secret and
// returns the provisioning URI plus the one-time view of the backup
// codes. 2FA stays off until the first code is confirmed.
func (h *Handlers) TwoFactorSetup(c echo.Context) error {
	result, err := h.twoFactor.StartSetup(c.Request().Context(), currentUser(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// TwoFactorEnable confirms enrollment with a first valid TOTP code.
func (h *Handlers) TwoFactorEnable(c echo.Context) error {
	var req twoFactorCodeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.twoFactor.Enable(c.Request().Context(), currentUser(c), req.Code); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "two-factor authentication enabled"})
}

// TwoFactorDisable turns 2FA off and wipes the secret and backup
// codes. Requires the current password plus a valid TOTP or backup
// code.
func (h *Handlers) TwoFactorDisable(c echo.Context) error {
	var req twoFactorDisableRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.auth.DisableTwoFactor(c.Request().Context(), currentUser(c), req.Password, req.Code); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

// TwoFactorRegenerateBackupCodes replaces the backup-code set after a
// valid TOTP code. Codes consumed from the old set stay dead.
func (h *Handlers) TwoFactorRegenerateBackupCodes(c echo.Context) error {
	var req twoFactorCodeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	codes, err := h.twoFactor.RegenerateBackupCodes(c.Request().Context(), currentUser(c), req.Code)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"backup_codes": codes})
}
