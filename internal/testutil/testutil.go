// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/stem-ed-architects/backend/internal/database"
	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/services/password"
)

// Password is the plaintext behind every fixture user.
const Password = "Correct-Horse-7"

// NewTestDB creates a migrated in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	require.NoError(t, database.RunMigrations(db.DB))
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates a verified user with the fixture password.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	hash, err := password.Hash(Password)
	require.NoError(t, err)

	user := &models.User{
		Email:           email,
		FullName:        "Test User",
		HashedPassword:  hash,
		Role:            models.RoleStudent,
		IsEmailVerified: true,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewUnverifiedUser creates a user whose email is not confirmed yet.
func NewUnverifiedUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	hash, err := password.Hash(Password)
	require.NoError(t, err)

	user := &models.User{
		Email:          email,
		FullName:       "Test User",
		HashedPassword: hash,
		Role:           models.RoleStudent,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewAdminUser creates a verified admin with the fixture password.
func NewAdminUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	user := NewTestUser(t, repo, email)
	require.NoError(t, repo.SetUserRole(context.Background(), user.ID, models.RoleAdmin))
	user.Role = models.RoleAdmin
	return user
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
