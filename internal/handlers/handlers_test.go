// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stem-ed-architects/backend/internal/config"
	"github.com/stem-ed-architects/backend/internal/handlers"
	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/secretbox"
	"github.com/stem-ed-architects/backend/internal/services/auth"
	"github.com/stem-ed-architects/backend/internal/services/email"
	"github.com/stem-ed-architects/backend/internal/services/lockout"
	"github.com/stem-ed-architects/backend/internal/services/ratelimit"
	"github.com/stem-ed-architects/backend/internal/services/refresh"
	"github.com/stem-ed-architects/backend/internal/services/token"
	"github.com/stem-ed-architects/backend/internal/services/twofactor"
	"github.com/stem-ed-architects/backend/internal/testutil"
)

const testUserAgent = "handlers-test-agent"

type app struct {
	e      *echo.Echo
	repo   *repository.Repository
	engine *twofactor.Engine
	svc    *auth.Service
}

func newApp(t *testing.T) *app {
	t.Helper()
	_, repo := testutil.NewTestDB(t)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			SecretKey:        "test-secret",
			AccessTokenTTL:   time.Hour,
			RefreshTokenTTL:  30 * 24 * time.Hour,
			TwoFactorIssuer:  "TestIssuer",
			RegistrationOpen: true,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:       true,
			LoginAttempts: 100,
			LoginWindow:   time.Minute,
		},
	}

	codec, err := token.NewCodec(cfg.Auth.SecretKey, cfg.Auth.AccessTokenTTL)
	require.NoError(t, err)
	box, err := secretbox.New(cfg.Auth.SecretKey)
	require.NoError(t, err)

	mailer := email.NewService(&cfg.SMTP, "http://localhost:8080")
	refreshSvc := refresh.NewService(repo, cfg.Auth.RefreshTokenTTL)
	guard := lockout.NewGuard(repo, mailer)
	engine := twofactor.NewEngine(repo, box, cfg.Auth.TwoFactorIssuer)
	svc := auth.NewService(repo, codec, refreshSvc, guard, engine, ratelimit.NewMemoryLimiter(), mailer, cfg)

	e := echo.New()
	h := handlers.New(repo, svc, engine, nil)
	h.Register(e)

	return &app{e: e, repo: repo, engine: engine, svc: svc}
}

func (a *app) request(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", testUserAgent)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// login runs the password step and returns the token pair fields.
func (a *app) login(t *testing.T, email, password string) map[string]any {
	t.Helper()
	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.request(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRegisterEndpoint(t *testing.T) {
	a := newApp(t)

	rec := a.request(http.MethodPost, "/api/v1/auth/register",
		`{"email":"new@example.com","full_name":"New User","password":"Str0ngEnough"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "new@example.com", body["email"])
	// Sensitive columns must not serialize.
	assert.NotContains(t, rec.Body.String(), "hashed_password")

	// Same address again conflicts.
	rec = a.request(http.MethodPost, "/api/v1/auth/register",
		`{"email":"new@example.com","full_name":"New User","password":"Str0ngEnough"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterEndpoint_WeakPassword(t *testing.T) {
	a := newApp(t)

	rec := a.request(http.MethodPost, "/api/v1/auth/register",
		`{"email":"new@example.com","password":"weak"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "failures")
}

func TestLoginEndpoint(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "alice@example.com")

	body := a.login(t, "alice@example.com", testutil.Password)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.Equal(t, "bearer", body["token_type"])
}

func TestLoginEndpoint_WrongPassword(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "alice@example.com")

	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginEndpoint_UnverifiedEmail(t *testing.T) {
	a := newApp(t)
	testutil.NewUnverifiedUser(t, a.repo, "pending@example.com")

	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"pending@example.com","password":"`+testutil.Password+`"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginEndpoint_LockedAccount(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "alice@example.com")

	for i := 0; i < lockout.MaxFailedAttempts; i++ {
		a.request(http.MethodPost, "/api/v1/auth/login",
			`{"email":"alice@example.com","password":"wrong"}`, "")
	}

	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"`+testutil.Password+`"}`, "")
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Contains(t, rec.Body.String(), "locked_until")
}

func TestMeEndpoint(t *testing.T) {
	a := newApp(t)
	user := testutil.NewTestUser(t, a.repo, "alice@example.com")

	tokens := a.login(t, user.Email, testutil.Password)
	rec := a.request(http.MethodGet, "/api/v1/users/me", "", tokens["access_token"].(string))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.Email, decode(t, rec)["email"])
}

func TestMeEndpoint_Unauthenticated(t *testing.T) {
	a := newApp(t)

	rec := a.request(http.MethodGet, "/api/v1/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.request(http.MethodGet, "/api/v1/users/me", "", "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "alice@example.com")
	tokens := a.login(t, "alice@example.com", testutil.Password)

	rec := a.request(http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+tokens["refresh_token"].(string)+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode(t, rec)
	assert.NotEqual(t, tokens["refresh_token"], rotated["refresh_token"])

	// Replaying the rotated-out token fails.
	rec = a.request(http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+tokens["refresh_token"].(string)+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "alice@example.com")
	tokens := a.login(t, "alice@example.com", testutil.Password)

	rec := a.request(http.MethodPost, "/api/v1/auth/logout",
		`{"refresh_token":"`+tokens["refresh_token"].(string)+`"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/auth/refresh",
		`{"refresh_token":"`+tokens["refresh_token"].(string)+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwoFactorLoginFlow(t *testing.T) {
	a := newApp(t)
	user := testutil.NewTestUser(t, a.repo, "alice@example.com")

	setup, err := a.engine.StartSetup(context.Background(), user)
	require.NoError(t, err)
	code, err := twofactor.CodeAt(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, a.engine.Enable(context.Background(), user, code))

	// The password step yields a challenge, not tokens.
	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"`+testutil.Password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["two_factor_required"])
	challenge := body["challenge_token"].(string)
	assert.NotContains(t, body, "access_token")

	// A wrong code is rejected.
	rec = a.request(http.MethodPost, "/api/v1/auth/login/2fa",
		`{"challenge_token":"`+challenge+`","code":"000000"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The current TOTP code completes it.
	code, err = twofactor.CodeAt(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	rec = a.request(http.MethodPost, "/api/v1/auth/login/2fa",
		`{"challenge_token":"`+challenge+`","code":"`+code+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["access_token"])
}

func TestTwoFactorLogin_UserAgentBound(t *testing.T) {
	a := newApp(t)
	user := testutil.NewTestUser(t, a.repo, "alice@example.com")

	setup, err := a.engine.StartSetup(context.Background(), user)
	require.NoError(t, err)
	code, err := twofactor.CodeAt(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, a.engine.Enable(context.Background(), user, code))

	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"`+testutil.Password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	challenge := decode(t, rec)["challenge_token"].(string)

	// Same challenge, different user agent.
	code, err = twofactor.CodeAt(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login/2fa",
		strings.NewReader(`{"challenge_token":"`+challenge+`","code":"`+code+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "a-different-browser")
	hijacked := httptest.NewRecorder()
	a.e.ServeHTTP(hijacked, req)
	assert.Equal(t, http.StatusUnauthorized, hijacked.Code)
}

func TestTwoFactorManagementEndpoints(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "alice@example.com")
	tokens := a.login(t, "alice@example.com", testutil.Password)
	access := tokens["access_token"].(string)

	rec := a.request(http.MethodGet, "/api/v1/auth/2fa/status", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["enabled"])

	rec = a.request(http.MethodPost, "/api/v1/auth/2fa/setup", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	secret := body["secret"].(string)
	assert.Contains(t, body["otpauth_uri"], "otpauth://totp/")
	assert.Len(t, body["backup_codes"], twofactor.BackupCodeCount)

	// Enabling with a wrong code fails, with the right one succeeds.
	rec = a.request(http.MethodPost, "/api/v1/auth/2fa/enable", `{"code":"000000"}`, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, err := twofactor.CodeAt(secret, time.Now().UTC())
	require.NoError(t, err)
	rec = a.request(http.MethodPost, "/api/v1/auth/2fa/enable", `{"code":"`+code+`"}`, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.request(http.MethodGet, "/api/v1/auth/2fa/status", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["enabled"])
}

func TestAdminEndpoints_RequireAdminRole(t *testing.T) {
	a := newApp(t)
	testutil.NewTestUser(t, a.repo, "student@example.com")
	tokens := a.login(t, "student@example.com", testutil.Password)

	rec := a.request(http.MethodGet, "/api/v1/admin/users", "", tokens["access_token"].(string))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminLockUnlock(t *testing.T) {
	a := newApp(t)
	testutil.NewAdminUser(t, a.repo, "admin@example.com")
	victim := testutil.NewTestUser(t, a.repo, "victim@example.com")
	adminTokens := a.login(t, "admin@example.com", testutil.Password)
	access := adminTokens["access_token"].(string)

	id := int64ToString(victim.ID)
	rec := a.request(http.MethodPost, "/api/v1/admin/users/"+id+"/lock", `{}`, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The locked account cannot log in.
	rec = a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"victim@example.com","password":"`+testutil.Password+`"}`, "")
	assert.Equal(t, http.StatusLocked, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/admin/users/"+id+"/unlock", `{}`, access)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"victim@example.com","password":"`+testutil.Password+`"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSetRole(t *testing.T) {
	a := newApp(t)
	testutil.NewAdminUser(t, a.repo, "admin@example.com")
	user := testutil.NewTestUser(t, a.repo, "student@example.com")
	adminTokens := a.login(t, "admin@example.com", testutil.Password)

	rec := a.request(http.MethodPut, "/api/v1/admin/users/"+int64ToString(user.ID)+"/role",
		`{"role":"admin"}`, adminTokens["access_token"].(string))
	require.Equal(t, http.StatusOK, rec.Code)

	reloaded, err := a.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsAdmin())

	rec = a.request(http.MethodPut, "/api/v1/admin/users/"+int64ToString(user.ID)+"/role",
		`{"role":"emperor"}`, adminTokens["access_token"].(string))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminLoginAttempts(t *testing.T) {
	a := newApp(t)
	testutil.NewAdminUser(t, a.repo, "admin@example.com")
	victim := testutil.NewTestUser(t, a.repo, "victim@example.com")
	adminTokens := a.login(t, "admin@example.com", testutil.Password)

	a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"victim@example.com","password":"wrong"}`, "")
	a.login(t, "victim@example.com", testutil.Password)

	rec := a.request(http.MethodGet, "/api/v1/admin/users/"+int64ToString(victim.ID)+"/login-attempts",
		"", adminTokens["access_token"].(string))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	attempts := body["attempts"].([]any)
	assert.Len(t, attempts, 2)
	assert.Equal(t, float64(1), body["recent_failures"])
}

func TestAdminDeleteUser(t *testing.T) {
	a := newApp(t)
	testutil.NewAdminUser(t, a.repo, "admin@example.com")
	victim := testutil.NewTestUser(t, a.repo, "victim@example.com")
	adminTokens := a.login(t, "admin@example.com", testutil.Password)

	rec := a.request(http.MethodDelete, "/api/v1/admin/users/"+int64ToString(victim.ID),
		"", adminTokens["access_token"].(string))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"victim@example.com","password":"`+testutil.Password+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwoFactorDisableEndpoint(t *testing.T) {
	a := newApp(t)
	user := testutil.NewTestUser(t, a.repo, "alice@example.com")

	setup, err := a.engine.StartSetup(context.Background(), user)
	require.NoError(t, err)
	code, err := twofactor.CodeAt(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, a.engine.Enable(context.Background(), user, code))

	// 2FA is on, so logging in for an access token takes the full flow.
	rec := a.request(http.MethodPost, "/api/v1/auth/login",
		`{"email":"alice@example.com","password":"`+testutil.Password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	challenge := decode(t, rec)["challenge_token"].(string)
	code, err = twofactor.CodeAt(setup.Secret, time.Now().UTC())
	require.NoError(t, err)
	rec = a.request(http.MethodPost, "/api/v1/auth/login/2fa",
		`{"challenge_token":"`+challenge+`","code":"`+code+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	access := decode(t, rec)["access_token"].(string)

	// Wrong password is rejected before anything is wiped.
	rec = a.request(http.MethodPost, "/api/v1/auth/2fa/disable",
		`{"password":"nope","code":"`+setup.BackupCodes[0]+`"}`, access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.request(http.MethodPost, "/api/v1/auth/2fa/disable",
		`{"password":"`+testutil.Password+`","code":"`+setup.BackupCodes[0]+`"}`, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.request(http.MethodGet, "/api/v1/auth/2fa/status", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["enabled"])
}

func int64ToString(id int64) string {
	return strconv.FormatInt(id, 10)
}
