// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stem-ed-architects/backend/internal/services/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorLoginRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RegisterUser creates an unverified account and sends the
// verification mail.
func (h *Handlers) RegisterUser(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, http.StatusUnprocessableEntity, "email and password are required")
	}

	user, err := h.auth.Register(c.Request().Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// Login runs the password step of the login flow. Accounts with 2FA
// enabled get a challenge token instead of a session.
func (h *Handlers) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	result, err := h.auth.Login(c.Request().Context(), req.Email, req.Password, clientFrom(c))
	if err != nil {
		return fail(c, err)
	}

	if result.TwoFactorRequired {
		return c.JSON(http.StatusOK, map[string]any{
			"two_factor_required": true,
			"challenge_token":     result.ChallengeToken,
		})
	}
	return h.respondWithTokens(c, result)
}

// VerifyTwoFactor finishes a pending challenge with a TOTP or backup
// code.
func (h *Handlers) VerifyTwoFactor(c echo.Context) error {
	var req twoFactorLoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	result, err := h.auth.VerifyTwoFactor(c.Request().Context(), req.ChallengeToken, req.Code, clientFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return h.respondWithTokens(c, result)
}

// Refresh rotates the refresh token. Browser clients can rely on the
// session cookie instead of the body field.
func (h *Handlers) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	rawToken := req.RefreshToken
	if rawToken == "" && h.session != nil {
		if payload, err := h.session.Read(c); err == nil {
			rawToken = payload.RefreshToken
		}
	}
	if rawToken == "" {
		return errorJSON(c, http.StatusUnauthorized, "refresh token required")
	}

	pair, err := h.auth.Refresh(c.Request().Context(), rawToken, clientFrom(c))
	if err != nil {
		return fail(c, err)
	}

	if h.session != nil {
		if err := h.session.Write(c, SessionPayload{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
			return fail(c, err)
		}
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the presented refresh token and drops the session
// cookie. Revoking an already dead token still succeeds.
func (h *Handlers) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	rawToken := req.RefreshToken
	if rawToken == "" && h.session != nil {
		if payload, err := h.session.Read(c); err == nil {
			rawToken = payload.RefreshToken
		}
	}

	if rawToken != "" {
		if err := h.auth.Logout(c.Request().Context(), rawToken); err != nil {
			return fail(c, err)
		}
	}
	if h.session != nil {
		h.session.Clear(c)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the caller.
func (h *Handlers) LogoutAll(c echo.Context) error {
	if err := h.auth.LogoutAll(c.Request().Context(), currentUser(c).ID); err != nil {
		return fail(c, err)
	}
	if h.session != nil {
		h.session.Clear(c)
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyEmail confirms the address matching the token query parameter.
func (h *Handlers) VerifyEmail(c echo.Context) error {
	plainToken := c.QueryParam("token")
	if plainToken == "" {
		return errorJSON(c, http.StatusBadRequest, "token is required")
	}
	if err := h.auth.VerifyEmail(c.Request().Context(), plainToken); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "email verified"})
}

// ResendVerification issues a fresh verification token. The response
// is identical for known and unknown addresses.
func (h *Handlers) ResendVerification(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.auth.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "if the address exists, a verification email was sent"})
}

// ForgotPassword mails a reset link. The response is identical for
// known and unknown addresses.
func (h *Handlers) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "if the address exists, a reset email was sent"})
}

// ResetPassword sets a new password via reset token and revokes all
// sessions.
func (h *Handlers) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.auth.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password reset"})
}

// ChangePassword replaces the caller's password after checking the
// current one.
func (h *Handlers) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := h.auth.ChangePassword(c.Request().Context(), currentUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		return fail(c, err)
	}
	if h.session != nil {
		h.session.Clear(c)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *Handlers) respondWithTokens(c echo.Context, result *auth.LoginResult) error {
	if h.session != nil {
		payload := SessionPayload{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
		}
		if err := h.session.Write(c, payload); err != nil {
			return fail(c, err)
		}
	}
	return c.JSON(http.StatusOK, result.Tokens)
}
