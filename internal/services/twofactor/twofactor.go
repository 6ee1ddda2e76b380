// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package twofactor implements TOTP-based two-factor authentication
// with one-time backup codes.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
	"github.com/stem-ed-architects/backend/internal/secretbox"
)

var (
	// ErrAlreadyEnabled is returned when setup starts on an enabled account.
	ErrAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	// ErrNotEnabled is returned for operations that need 2FA active.
	ErrNotEnabled = errors.New("two-factor authentication is not enabled")
	// ErrSetupRequired is returned when enabling without a pending setup.
	ErrSetupRequired = errors.New("two-factor setup has not been started")
	// ErrCodeInvalid is returned for wrong TOTP and backup codes alike.
	ErrCodeInvalid = errors.New("invalid two-factor code")
)

// casRetries bounds the compare-and-swap loop for backup code consumption.
const casRetries = 3

// Status describes the 2FA state of an account.
type Status struct {
	Enabled              bool       `json:"enabled"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	LastVerifiedAt       *time.Time `json:"last_verified_at,omitempty"`
}

// SetupResult is returned from StartSetup. The secret and plaintext
// backup codes appear here exactly once and are never stored.
type SetupResult struct {
	Secret      string   `json:"secret"`
	OTPAuthURI  string   `json:"otpauth_uri"`
	BackupCodes []string `json:"backup_codes"`
}

// Engine provisions, verifies and disables two-factor authentication.
type Engine struct {
	repo   *repository.Repository
	box    *secretbox.Box
	issuer string
	skew   int
}

// NewEngine creates a two-factor engine. issuer is shown in
// authenticator apps; skew is the TOTP clock-drift tolerance in steps.
func NewEngine(repo *repository.Repository, box *secretbox.Box, issuer string) *Engine {
	return &Engine{repo: repo, box: box, issuer: issuer, skew: 1}
}

// StatusFor reports the 2FA state of a user.
func (e *Engine) StatusFor(user *models.User) Status {
	return Status{
		Enabled:              user.TwoFactorEnabled,
		BackupCodesRemaining: len(decodeHashes(user.TwoFactorBackupCodes)),
		ConfirmedAt:          user.TwoFactorConfirmedAt,
		LastVerifiedAt:       user.TwoFactorLastVerifiedAt,
	}
}

// StartSetup provisions a fresh secret and backup code set. 2FA stays
// disabled until the user confirms with a valid code via Enable.
func (e *Engine) StartSetup(ctx context.Context, user *models.User) (*SetupResult, error) {
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := generateTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}
	sealed, err := e.box.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypting totp secret: %w", err)
	}

	codes, err := generateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generating backup codes: %w", err)
	}
	hashes, err := hashBackupCodes(codes)
	if err != nil {
		return nil, fmt.Errorf("hashing backup codes: %w", err)
	}
	serialized, err := encodeHashes(hashes)
	if err != nil {
		return nil, err
	}

	user.TwoFactorSecret = &sealed
	user.TwoFactorBackupCodes = &serialized
	user.TwoFactorEnabled = false
	user.TwoFactorConfirmedAt = nil
	user.TwoFactorLastVerifiedAt = nil
	if err := e.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	return &SetupResult{
		Secret:      secret,
		OTPAuthURI:  provisioningURI(e.issuer, user.Email, secret),
		BackupCodes: codes,
	}, nil
}

// Enable confirms a pending setup with a valid TOTP code.
func (e *Engine) Enable(ctx context.Context, user *models.User, code string) error {
	if user.TwoFactorEnabled {
		return ErrAlreadyEnabled
	}
	if user.TwoFactorSecret == nil {
		return ErrSetupRequired
	}

	ok, err := e.VerifyTOTP(user, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeInvalid
	}

	now := time.Now().UTC()
	user.TwoFactorEnabled = true
	user.TwoFactorConfirmedAt = &now
	user.TwoFactorLastVerifiedAt = &now
	return e.repo.UpdateUser(ctx, user)
}

// Disable clears the secret and all backup codes. Nothing decryptable
// is left behind. The caller is responsible for the password and code
// checks that guard this operation.
func (e *Engine) Disable(ctx context.Context, user *models.User) error {
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.TwoFactorBackupCodes = nil
	user.TwoFactorConfirmedAt = nil
	user.TwoFactorLastVerifiedAt = nil
	return e.repo.UpdateUser(ctx, user)
}

// VerifyTOTP checks a TOTP code against the user's secret, tolerating
// one time-step of clock drift. A user without a stored secret always
// fails; decryption errors fail closed.
func (e *Engine) VerifyTOTP(user *models.User, code string) (bool, error) {
	if user.TwoFactorSecret == nil {
		return false, nil
	}
	secret, err := e.box.Open(*user.TwoFactorSecret)
	if err != nil {
		return false, nil
	}
	return verifyTOTP(secret, code, time.Now().UTC(), e.skew)
}

// MarkVerified records a successful 2FA verification.
func (e *Engine) MarkVerified(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.TwoFactorLastVerifiedAt = &now
	return e.repo.UpdateUser(ctx, user)
}

// ConsumeBackupCode verifies a backup code and removes it from the
// stored set in one step. The removal is a compare-and-swap on the
// serialized list, so two concurrent requests can consume a given code
// at most once; the loser retries against the fresh list.
func (e *Engine) ConsumeBackupCode(ctx context.Context, user *models.User, code string) (bool, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		hashes := decodeHashes(user.TwoFactorBackupCodes)
		if len(hashes) == 0 {
			return false, nil
		}

		consumed, remaining := matchBackupCode(hashes, code)
		if !consumed {
			return false, nil
		}

		serialized, err := encodeHashes(remaining)
		if err != nil {
			return false, err
		}
		swapped, err := e.repo.SwapBackupCodes(ctx, user.ID, user.TwoFactorBackupCodes, &serialized)
		if err != nil {
			return false, err
		}
		if swapped {
			user.TwoFactorBackupCodes = &serialized
			return true, nil
		}

		// Lost the race: reload and try again against the current list.
		fresh, err := e.repo.GetUserByID(ctx, user.ID)
		if err != nil {
			return false, err
		}
		user.TwoFactorBackupCodes = fresh.TwoFactorBackupCodes
	}
	return false, nil
}

// RegenerateBackupCodes replaces the whole backup code set. Requires a
// valid current TOTP code; every previously issued code stops working.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, user *models.User, totpCode string) ([]string, error) {
	if !user.TwoFactorEnabled {
		return nil, ErrNotEnabled
	}

	ok, err := e.VerifyTOTP(user, totpCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeInvalid
	}

	codes, err := generateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generating backup codes: %w", err)
	}
	hashes, err := hashBackupCodes(codes)
	if err != nil {
		return nil, fmt.Errorf("hashing backup codes: %w", err)
	}
	serialized, err := encodeHashes(hashes)
	if err != nil {
		return nil, err
	}

	user.TwoFactorBackupCodes = &serialized
	if err := e.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return codes, nil
}
