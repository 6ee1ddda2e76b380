// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package lockout implements the account lockout guard: a counter of
// failed logins that trips into a temporary lock, evaluated lazily on
// each request instead of by a background timer.
package lockout

import (
	"context"
	"log/slog"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
)

const (
	// MaxFailedAttempts trips the lock.
	MaxFailedAttempts = 5
	// LockDuration is how long an automatic lock lasts.
	LockDuration = 15 * time.Minute
)

// Notifier delivers the lockout notification side effect. Failures are
// logged and swallowed; they never block the authentication decision.
type Notifier interface {
	SendLockoutNotice(ctx context.Context, user *models.User, until *time.Time) error
}

// Guard evaluates and mutates the per-user lockout state.
type Guard struct {
	repo     *repository.Repository
	notifier Notifier
}

// NewGuard creates a lockout guard. notifier may be nil.
func NewGuard(repo *repository.Repository, notifier Notifier) *Guard {
	return &Guard{repo: repo, notifier: notifier}
}

// ClientMeta carries per-request audit data.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Evaluate reports whether the account is currently locked. An expired
// automatic lock is cleared here, on the spot: there is no unlock timer.
// A nil until with locked=true means an admin lock with no expiry.
func (g *Guard) Evaluate(ctx context.Context, user *models.User) (locked bool, until *time.Time, err error) {
	if !user.IsLocked {
		return false, nil, nil
	}

	if user.LockedUntil != nil {
		if time.Now().UTC().Before(*user.LockedUntil) {
			return true, user.LockedUntil, nil
		}
		// Lock expired: transition back to Unlocked(0).
		if err := g.Unlock(ctx, user); err != nil {
			return false, nil, err
		}
		return false, nil, nil
	}

	// Admin lock, only an explicit unlock clears it.
	return true, nil, nil
}

// RecordFailure appends the audit row, increments the counter and locks
// the account when the threshold is reached. Returns true if this
// failure locked the account.
func (g *Guard) RecordFailure(ctx context.Context, user *models.User, meta ClientMeta) (bool, error) {
	if err := g.recordAttempt(ctx, user, false, meta); err != nil {
		return false, err
	}

	user.FailedLoginAttempts++

	if user.FailedLoginAttempts >= MaxFailedAttempts {
		until := time.Now().UTC().Add(LockDuration)
		user.IsLocked = true
		user.LockedUntil = &until
		if err := g.repo.UpdateUser(ctx, user); err != nil {
			return false, err
		}

		if g.notifier != nil {
			if err := g.notifier.SendLockoutNotice(ctx, user, user.LockedUntil); err != nil {
				slog.Warn("lockout_notice_failed", "user_id", user.ID, "error", err)
			}
		}
		slog.Warn("account_locked", "user_id", user.ID, "until", until)
		return true, nil
	}

	return false, g.repo.UpdateUser(ctx, user)
}

// RecordSuccess appends the audit row and resets the counter. An
// expired automatic lock is also cleared; an admin lock is not.
func (g *Guard) RecordSuccess(ctx context.Context, user *models.User, meta ClientMeta) error {
	if err := g.recordAttempt(ctx, user, true, meta); err != nil {
		return err
	}

	user.FailedLoginAttempts = 0
	if user.IsLocked && user.LockedUntil != nil {
		user.IsLocked = false
		user.LockedUntil = nil
	}
	return g.repo.UpdateUser(ctx, user)
}

// Unlock clears the lock and the failure counter. Used for expired
// automatic locks and by admins for indefinite locks.
func (g *Guard) Unlock(ctx context.Context, user *models.User) error {
	user.IsLocked = false
	user.LockedUntil = nil
	user.FailedLoginAttempts = 0
	return g.repo.UpdateUser(ctx, user)
}

// Lock imposes a lock. A nil until is an indefinite admin lock.
func (g *Guard) Lock(ctx context.Context, user *models.User, until *time.Time) error {
	user.IsLocked = true
	user.LockedUntil = until
	return g.repo.UpdateUser(ctx, user)
}

func (g *Guard) recordAttempt(ctx context.Context, user *models.User, success bool, meta ClientMeta) error {
	attempt := &models.LoginAttempt{
		UserID:    user.ID,
		Success:   success,
		IPAddress: optional(meta.IP),
		UserAgent: optional(meta.UserAgent),
	}
	return g.repo.CreateLoginAttempt(ctx, attempt)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
