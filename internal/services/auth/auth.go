// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth orchestrates the login flow: rate limiting, lockout
// checks, credential verification, the two-factor challenge hop and
// token issuance. Handlers call into this package and translate its
// errors into HTTP responses; no HTTP types appear below this line.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stem-ed-architects/backend/internal/config"
	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/services/email"
	"github.com/stem-ed-architects/backend/internal/services/lockout"
	"github.com/stem-ed-architects/backend/internal/services/password"
	"github.com/stem-ed-architects/backend/internal/services/ratelimit"
	"github.com/stem-ed-architects/backend/internal/services/refresh"
	"github.com/stem-ed-architects/backend/internal/services/token"
	"github.com/stem-ed-architects/backend/internal/services/twofactor"
)

var (
	// ErrInvalidCredentials deliberately covers both unknown accounts
	// and wrong passwords so responses cannot be used to enumerate
	// registered addresses.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrEmailNotVerified is returned after a correct password when the
	// address has not been confirmed yet.
	ErrEmailNotVerified = errors.New("email address is not verified")

	// ErrEmailTaken is returned on registration with a known address.
	ErrEmailTaken = errors.New("email address is already registered")

	// ErrRegistrationClosed is returned when self-service signup is off.
	ErrRegistrationClosed = errors.New("registration is closed")

	// ErrTwoFactorInvalid covers wrong, expired and replayed codes in
	// the challenge verification step.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")

	// ErrVerificationInvalid covers unknown and expired email
	// verification and password reset tokens.
	ErrVerificationInvalid = errors.New("invalid or expired token")
)

// AccountLockedError carries the lock horizon. A nil Until means the
// lock was placed by an administrator and does not expire on its own.
type AccountLockedError struct {
	Until *time.Time
}

func (e *AccountLockedError) Error() string {
	if e.Until == nil {
		return "account is locked"
	}
	return fmt.Sprintf("account is locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// RateLimitedError tells the caller how long to back off.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %s", e.RetryAfter)
}

// TokenPair is the result of a completed authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginResult is either a finished session or a pending 2FA challenge,
// never both.
type LoginResult struct {
	User              *models.User
	Tokens            *TokenPair
	TwoFactorRequired bool
	ChallengeToken    string
}

// Client captures the request metadata bound into challenge tokens and
// recorded on the login audit trail.
type Client struct {
	IP        string
	UserAgent string
}

// Service wires the authentication subsystems together.
type Service struct {
	repo      *repository.Repository
	codec     *token.Codec
	refresh   *refresh.Service
	lockout   *lockout.Guard
	twoFactor *twofactor.Engine
	limiter   ratelimit.Limiter
	mailer    *email.Service
	policy    *password.Policy
	rate      config.RateLimitConfig
	open      bool
}

func NewService(
	repo *repository.Repository,
	codec *token.Codec,
	refreshSvc *refresh.Service,
	guard *lockout.Guard,
	engine *twofactor.Engine,
	limiter ratelimit.Limiter,
	mailer *email.Service,
	cfg *config.Config,
) *Service {
	return &Service{
		repo:      repo,
		codec:     codec,
		refresh:   refreshSvc,
		lockout:   guard,
		twoFactor: engine,
		limiter:   limiter,
		mailer:    mailer,
		policy:    password.DefaultPolicy(),
		rate:      cfg.RateLimit,
		open:      cfg.Auth.RegistrationOpen,
	}
}

// Register creates an unverified account and mails the verification
// link. Delivery failures are logged, not surfaced: the token can be
// re-sent later.
func (s *Service) Register(ctx context.Context, emailAddr, fullName, plain string) (*models.User, error) {
	if !s.open {
		return nil, ErrRegistrationClosed
	}
	if err := s.policy.Validate(plain); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetUserByEmail(ctx, emailAddr); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing user: %w", err)
	}

	hash, err := password.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	plainToken, tokenHash, err := email.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generating verification token: %w", err)
	}
	expires := time.Now().Add(email.VerificationExpiry)

	user := &models.User{
		Email:                 emailAddr,
		FullName:              fullName,
		HashedPassword:        hash,
		Role:                  models.RoleStudent,
		VerificationToken:     &tokenHash,
		VerificationExpiresAt: &expires,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if err := s.mailer.SendVerification(ctx, user.Email, plainToken); err != nil {
		slog.Error("verification_email_failed", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// VerifyEmail confirms the address matching the token and clears the
// token so it cannot be replayed.
func (s *Service) VerifyEmail(ctx context.Context, plainToken string) error {
	hash := email.HashToken(plainToken)
	user, err := s.repo.GetUserByVerificationToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("looking up verification token: %w", err)
	}
	if user.VerificationExpiresAt == nil || user.VerificationExpiresAt.Before(time.Now()) {
		return ErrVerificationInvalid
	}

	user.IsEmailVerified = true
	user.VerificationToken = nil
	user.VerificationExpiresAt = nil
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	return nil
}

// ResendVerification issues a fresh token for an unverified account.
// Unknown and already-verified addresses return nil so the endpoint
// does not leak which addresses exist.
func (s *Service) ResendVerification(ctx context.Context, emailAddr string) error {
	user, err := s.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}
	if user.IsEmailVerified {
		return nil
	}

	plainToken, tokenHash, err := email.GenerateToken()
	if err != nil {
		return fmt.Errorf("generating verification token: %w", err)
	}
	expires := time.Now().Add(email.VerificationExpiry)
	user.VerificationToken = &tokenHash
	user.VerificationExpiresAt = &expires
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("storing verification token: %w", err)
	}

	if err := s.mailer.SendVerification(ctx, user.Email, plainToken); err != nil {
		slog.Error("verification_email_failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// Login runs the full password step. The order matters: the rate
// limiter fires before any database work, the lockout check fires
// before the password so a locked account responds identically to
// correct and incorrect passwords, and the limiter window resets only
// after a fully successful authentication.
func (s *Service) Login(ctx context.Context, emailAddr, plain string, client Client) (*LoginResult, error) {
	if err := s.checkRateLimit(ctx, client.IP); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn comparable CPU so response timing does not reveal
			// whether the address exists.
			password.VerifyDummy(plain)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if !user.HasPassword() {
		password.VerifyDummy(plain)
		return nil, ErrInvalidCredentials
	}

	locked, until, err := s.lockout.Evaluate(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("evaluating lockout: %w", err)
	}
	if locked {
		return nil, &AccountLockedError{Until: until}
	}

	if !password.Verify(plain, user.HashedPassword) {
		nowLocked, err := s.lockout.RecordFailure(ctx, user, lockout.ClientMeta{IP: client.IP, UserAgent: client.UserAgent})
		if err != nil {
			return nil, fmt.Errorf("recording failed attempt: %w", err)
		}
		if nowLocked {
			return nil, &AccountLockedError{Until: user.LockedUntil}
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}

	if user.TwoFactorEnabled {
		challenge, err := s.codec.IssueChallenge(user.ID, client.IP, client.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("issuing challenge token: %w", err)
		}
		return &LoginResult{User: user, TwoFactorRequired: true, ChallengeToken: challenge}, nil
	}

	return s.completeLogin(ctx, user, client)
}

// VerifyTwoFactor finishes a pending challenge. The challenge token
// must come back from the same client address and user agent it was
// issued to; a TOTP code is tried first, then the backup codes.
func (s *Service) VerifyTwoFactor(ctx context.Context, challengeToken, code string, client Client) (*LoginResult, error) {
	claims, err := s.codec.Decode(challengeToken, token.ScopeTwoFactorChallenge)
	if err != nil {
		return nil, ErrTwoFactorInvalid
	}
	if claims.ClientIP != client.IP || claims.UAHash != token.HashUserAgent(client.UserAgent) {
		return nil, ErrTwoFactorInvalid
	}

	userID, ok := claims.Subject.UserID()
	if !ok {
		return nil, ErrTwoFactorInvalid
	}
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorInvalid
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	locked, until, err := s.lockout.Evaluate(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("evaluating lockout: %w", err)
	}
	if locked {
		return nil, &AccountLockedError{Until: until}
	}

	ok, err = s.twoFactor.VerifyTOTP(user, code)
	if err != nil && !errors.Is(err, twofactor.ErrNotEnabled) {
		return nil, fmt.Errorf("verifying totp: %w", err)
	}
	if !ok {
		ok, err = s.twoFactor.ConsumeBackupCode(ctx, user, code)
		if errors.Is(err, twofactor.ErrNotEnabled) {
			return nil, ErrTwoFactorInvalid
		}
		if err != nil {
			return nil, fmt.Errorf("consuming backup code: %w", err)
		}
	}
	if !ok {
		nowLocked, err := s.lockout.RecordFailure(ctx, user, lockout.ClientMeta{IP: client.IP, UserAgent: client.UserAgent})
		if err != nil {
			return nil, fmt.Errorf("recording failed attempt: %w", err)
		}
		if nowLocked {
			return nil, &AccountLockedError{Until: user.LockedUntil}
		}
		return nil, ErrTwoFactorInvalid
	}

	if err := s.twoFactor.MarkVerified(ctx, user); err != nil {
		return nil, fmt.Errorf("marking 2fa verified: %w", err)
	}
	return s.completeLogin(ctx, user, client)
}

// LoginWithGoogle issues tokens for an identity already verified by
// Google. The account is created on first sight and its address is
// trusted as verified.
func (s *Service) LoginWithGoogle(ctx context.Context, emailAddr, fullName, googleID string, client Client) (*LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, emailAddr)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user = &models.User{
			Email:           emailAddr,
			FullName:        fullName,
			Role:            models.RoleStudent,
			GoogleID:        googleID,
			IsEmailVerified: true,
		}
		if err := s.repo.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("creating google user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("looking up user: %w", err)
	default:
		locked, until, lerr := s.lockout.Evaluate(ctx, user)
		if lerr != nil {
			return nil, fmt.Errorf("evaluating lockout: %w", lerr)
		}
		if locked {
			return nil, &AccountLockedError{Until: until}
		}
		if user.GoogleID == "" {
			user.GoogleID = googleID
			user.IsEmailVerified = true
			if err := s.repo.UpdateUser(ctx, user); err != nil {
				return nil, fmt.Errorf("linking google account: %w", err)
			}
		}
	}

	if user.TwoFactorEnabled {
		challenge, err := s.codec.IssueChallenge(user.ID, client.IP, client.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("issuing challenge token: %w", err)
		}
		return &LoginResult{User: user, TwoFactorRequired: true, ChallengeToken: challenge}, nil
	}
	return s.completeLogin(ctx, user, client)
}

// completeLogin issues the token pair and resets the failure counters.
func (s *Service) completeLogin(ctx context.Context, user *models.User, client Client) (*LoginResult, error) {
	pair, err := s.issueTokens(ctx, user, client)
	if err != nil {
		return nil, err
	}

	meta := lockout.ClientMeta{IP: client.IP, UserAgent: client.UserAgent}
	if err := s.lockout.RecordSuccess(ctx, user, meta); err != nil {
		return nil, fmt.Errorf("recording successful attempt: %w", err)
	}
	if s.rate.Enabled {
		if err := s.limiter.Reset(ctx, loginKey(client.IP)); err != nil {
			slog.Warn("rate_limit_reset_failed", "error", err)
		}
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}

func (s *Service) issueTokens(ctx context.Context, user *models.User, client Client) (*TokenPair, error) {
	access, err := s.codec.IssueAccess(token.UserIDSubject(user.ID))
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refreshToken, err := s.refresh.Issue(ctx, user, refresh.ClientMeta{IP: client.IP, UserAgent: client.UserAgent})
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken, TokenType: "bearer"}, nil
}

// Refresh rotates the presented refresh token and returns a fresh pair.
// A revoked or unknown token fails with refresh.ErrTokenInactive.
func (s *Service) Refresh(ctx context.Context, rawToken string, client Client) (*TokenPair, error) {
	stored, err := s.refresh.Lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, refresh.ErrTokenInactive
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	locked, until, err := s.lockout.Evaluate(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("evaluating lockout: %w", err)
	}
	if locked {
		return nil, &AccountLockedError{Until: until}
	}

	newRefresh, err := s.refresh.Rotate(ctx, rawToken, user, refresh.ClientMeta{IP: client.IP, UserAgent: client.UserAgent})
	if err != nil {
		return nil, err
	}
	access, err := s.codec.IssueAccess(token.UserIDSubject(user.ID))
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: newRefresh, TokenType: "bearer"}, nil
}

// Logout revokes one refresh token. Revoking an already revoked or
// unknown token is a no-op.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	return s.refresh.Revoke(ctx, rawToken)
}

// LogoutAll revokes every outstanding refresh token for the user.
func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	return s.refresh.RevokeAll(ctx, userID)
}

// CurrentUser resolves an access token to its account. Challenge
// tokens are rejected here; they open no session.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.codec.Decode(accessToken, token.ScopeAccess)
	if err != nil {
		return nil, err
	}

	var user *models.User
	if id, ok := claims.Subject.UserID(); ok {
		user, err = s.repo.GetUserByID(ctx, id)
	} else if addr, ok := claims.Subject.Email(); ok {
		user, err = s.repo.GetUserByEmail(ctx, addr)
	} else {
		return nil, token.ErrTokenInvalid
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, token.ErrTokenInvalid
		}
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}
	return user, nil
}

// ForgotPassword stores a reset token and mails the link. Unknown
// addresses return nil to avoid enumeration.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.repo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	plainToken, tokenHash, err := email.GenerateToken()
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}
	expires := time.Now().Add(email.ResetExpiry)
	user.PasswordResetToken = &tokenHash
	user.PasswordResetExpiresAt = &expires
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, plainToken); err != nil {
		slog.Error("reset_email_failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password for the account matching the reset
// token and revokes every open session.
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	hash := email.HashToken(plainToken)
	user, err := s.repo.GetUserByPasswordResetToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("looking up reset token: %w", err)
	}
	if user.PasswordResetExpiresAt == nil || user.PasswordResetExpiresAt.Before(time.Now()) {
		return ErrVerificationInvalid
	}

	newHash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.HashedPassword = newHash
	user.PasswordResetToken = nil
	user.PasswordResetExpiresAt = nil
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("storing new password: %w", err)
	}

	if err := s.refresh.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password before replacing it.
// All refresh tokens are revoked, including the caller's own session.
func (s *Service) ChangePassword(ctx context.Context, user *models.User, current, newPassword string) error {
	if !password.Verify(current, user.HashedPassword) {
		return ErrInvalidCredentials
	}
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("storing new password: %w", err)
	}
	if err := s.refresh.RevokeAll(ctx, user.ID); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// DisableTwoFactor turns 2FA off after re-authentication: the current
// password plus a valid TOTP code or backup code. The secret and all
// backup codes are wiped.
func (s *Service) DisableTwoFactor(ctx context.Context, user *models.User, current, code string) error {
	if !password.Verify(current, user.HashedPassword) {
		return ErrInvalidCredentials
	}
	if !user.TwoFactorEnabled {
		return twofactor.ErrNotEnabled
	}

	ok, err := s.twoFactor.VerifyTOTP(user, code)
	if err != nil {
		return fmt.Errorf("verifying totp: %w", err)
	}
	if !ok {
		ok, err = s.twoFactor.ConsumeBackupCode(ctx, user, code)
		if err != nil {
			return fmt.Errorf("consuming backup code: %w", err)
		}
	}
	if !ok {
		return twofactor.ErrCodeInvalid
	}
	return s.twoFactor.Disable(ctx, user)
}

// LockUser imposes an administrative lock. A nil until never expires
// on its own. All open sessions are revoked.
func (s *Service) LockUser(ctx context.Context, userID int64, until *time.Time) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.lockout.Lock(ctx, user, until); err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	return s.refresh.RevokeAll(ctx, userID)
}

// UnlockUser clears any lock and the failure counter.
func (s *Service) UnlockUser(ctx context.Context, userID int64) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.lockout.Unlock(ctx, user)
}

func (s *Service) checkRateLimit(ctx context.Context, ip string) error {
	if !s.rate.Enabled {
		return nil
	}
	limited, _, err := s.limiter.Check(ctx, loginKey(ip), s.rate.LoginAttempts, s.rate.LoginWindow)
	if err != nil {
		// Fail open. Losing the throttle is better than losing logins,
		// and the lockout guard still bounds per-account abuse.
		slog.Warn("rate_limit_check_failed", "error", err)
		return nil
	}
	if limited {
		return &RateLimitedError{RetryAfter: s.rate.LoginWindow}
	}
	return nil
}

func loginKey(ip string) string {
	return "login:" + ip
}
