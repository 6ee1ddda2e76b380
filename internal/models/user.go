// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Role is the access level assigned to a user account.
type Role string

const (
	RoleStudent Role = "student"
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleUser, RoleAdmin:
		return true
	}
	return false
}

// User is the credential record backing authentication.
// HashedPassword is empty for OAuth-only accounts.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID                      int64      `db:"id" json:"id"`
	Email                   string     `db:"email" json:"email"`
	FullName                string     `db:"full_name" json:"full_name"`
	HashedPassword          string     `db:"hashed_password" json:"-"`
	Role                    Role       `db:"role" json:"role"`
	GoogleID                string     `db:"google_id" json:"-"`
	IsEmailVerified         bool       `db:"is_email_verified" json:"is_email_verified"`
	VerificationToken       *string    `db:"verification_token" json:"-"`
	VerificationExpiresAt   *time.Time `db:"verification_expires_at" json:"-"`
	PasswordResetToken      *string    `db:"password_reset_token" json:"-"`
	PasswordResetExpiresAt  *time.Time `db:"password_reset_expires_at" json:"-"`
	FailedLoginAttempts     int        `db:"failed_login_attempts" json:"-"`
	IsLocked                bool       `db:"is_locked" json:"-"`
	LockedUntil             *time.Time `db:"locked_until" json:"-"`
	TwoFactorEnabled        bool       `db:"two_factor_enabled" json:"two_factor_enabled"`
	TwoFactorSecret         *string    `db:"two_factor_secret" json:"-"`
	TwoFactorBackupCodes    *string    `db:"two_factor_backup_codes" json:"-"`
	TwoFactorConfirmedAt    *time.Time `db:"two_factor_confirmed_at" json:"-"`
	TwoFactorLastVerifiedAt *time.Time `db:"two_factor_last_verified_at" json:"-"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.HashedPassword != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
