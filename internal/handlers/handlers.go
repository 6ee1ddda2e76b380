// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains all HTTP handlers. Handlers bind JSON,
// call into the service layer and translate its errors into status
// codes; no business rule lives here.
package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/services/auth"
	"github.com/stem-ed-architects/backend/internal/services/twofactor"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo      *repository.Repository
	auth      *auth.Service
	twoFactor *twofactor.Engine
	session   *SessionCookie
}

// New creates a new Handlers instance. session may be nil when cookie
// sessions are disabled.
func New(repo *repository.Repository, authSvc *auth.Service, engine *twofactor.Engine, session *SessionCookie) *Handlers {
	return &Handlers{repo: repo, auth: authSvc, twoFactor: engine, session: session}
}

// Register mounts all routes on the echo instance.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	v1 := e.Group("/api/v1")

	a := v1.Group("/auth")
	a.POST("/register", h.RegisterUser)
	a.POST("/login", h.Login)
	a.POST("/login/2fa", h.VerifyTwoFactor)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.GET("/verify-email", h.VerifyEmail)
	a.POST("/resend-verification", h.ResendVerification)
	a.POST("/forgot-password", h.ForgotPassword)
	a.POST("/reset-password", h.ResetPassword)

	me := a.Group("", h.RequireAuth)
	me.POST("/logout-all", h.LogoutAll)
	me.POST("/change-password", h.ChangePassword)

	tfa := a.Group("/2fa", h.RequireAuth)
	tfa.GET("/status", h.TwoFactorStatus)
	tfa.POST("/setup", h.TwoFactorSetup)
	tfa.POST("/enable", h.TwoFactorEnable)
	tfa.POST("/disable", h.TwoFactorDisable)
	tfa.POST("/backup-codes/regenerate", h.TwoFactorRegenerateBackupCodes)

	users := v1.Group("/users", h.RequireAuth)
	users.GET("/me", h.Me)

	admin := v1.Group("/admin", h.RequireAuth, h.RequireAdmin)
	admin.GET("/users", h.AdminListUsers)
	admin.POST("/users/:id/lock", h.AdminLockUser)
	admin.POST("/users/:id/unlock", h.AdminUnlockUser)
	admin.GET("/users/:id/login-attempts", h.AdminListLoginAttempts)
	admin.PUT("/users/:id/role", h.AdminSetUserRole)
	admin.DELETE("/users/:id", h.AdminDeleteUser)
	admin.POST("/blog", h.AdminCreateBlogPost)
	admin.PUT("/blog/:id", h.AdminUpdateBlogPost)
	admin.DELETE("/blog/:id", h.AdminDeleteBlogPost)
	admin.PUT("/settings/:key", h.AdminUpsertSetting)
	admin.DELETE("/settings/:key", h.AdminDeleteSetting)

	v1.GET("/blog", h.ListBlogPosts, h.OptionalAuth)
	v1.GET("/blog/:slug", h.GetBlogPost, h.OptionalAuth)
	v1.GET("/settings", h.ListSettings)
	v1.GET("/settings/:key", h.GetSetting)
	v1.POST("/contact", h.SubmitContact)
	v1.POST("/newsletter/subscribe", h.SubscribeNewsletter)
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
