// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
)

// CreateUser inserts a new user and fills in its generated ID.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, full_name, hashed_password, role, google_id, is_email_verified,
		    verification_token, verification_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.FullName, user.HashedPassword, user.Role, user.GoogleID,
		user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByVerificationToken retrieves a user by the hashed email
// verification token. Expiry is checked by the caller.
func (r *Repository) GetUserByVerificationToken(ctx context.Context, tokenHash string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE verification_token = ?`, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByPasswordResetToken retrieves a user by the hashed password
// reset token. Expiry is checked by the caller.
func (r *Repository) GetUserByPasswordResetToken(ctx context.Context, tokenHash string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE password_reset_token = ?`, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UpdateUser persists all mutable fields of the user.
func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, full_name = ?, hashed_password = ?, role = ?, google_id = ?,
		    is_email_verified = ?, verification_token = ?, verification_expires_at = ?,
		    password_reset_token = ?, password_reset_expires_at = ?,
		    failed_login_attempts = ?, is_locked = ?, locked_until = ?,
		    two_factor_enabled = ?, two_factor_secret = ?, two_factor_backup_codes = ?,
		    two_factor_confirmed_at = ?, two_factor_last_verified_at = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email, user.FullName, user.HashedPassword, user.Role, user.GoogleID,
		user.IsEmailVerified, user.VerificationToken, user.VerificationExpiresAt,
		user.PasswordResetToken, user.PasswordResetExpiresAt,
		user.FailedLoginAttempts, user.IsLocked, user.LockedUntil,
		user.TwoFactorEnabled, user.TwoFactorSecret, user.TwoFactorBackupCodes,
		user.TwoFactorConfirmedAt, user.TwoFactorLastVerifiedAt, user.UpdatedAt,
		user.ID)
	return err
}

// DeleteUser deletes a user; refresh tokens and login attempts cascade.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// ListUsers returns all users ordered by creation date, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserPassword updates a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, hashedPassword string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?`,
		hashedPassword, time.Now().UTC(), id)
	return err
}

// SetUserRole updates a user's role.
func (r *Repository) SetUserRole(ctx context.Context, id int64, role models.Role) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, time.Now().UTC(), id)
	return err
}

// SwapBackupCodes replaces the serialized backup-code list only when the
// stored value still matches expected. Returns false when another writer
// got there first, so a consumed code can never be replayed.
func (r *Repository) SwapBackupCodes(ctx context.Context, userID int64, expected, updated *string) (bool, error) {
	var res interface {
		RowsAffected() (int64, error)
	}
	var err error
	if expected == nil {
		res, err = r.db.ExecContext(ctx,
			`UPDATE users SET two_factor_backup_codes = ?, updated_at = ?
			 WHERE id = ? AND two_factor_backup_codes IS NULL`,
			updated, time.Now().UTC(), userID)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE users SET two_factor_backup_codes = ?, updated_at = ?
			 WHERE id = ? AND two_factor_backup_codes = ?`,
			updated, time.Now().UTC(), userID, expected)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
