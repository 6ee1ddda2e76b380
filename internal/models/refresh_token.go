// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RefreshToken is the server-side record of an issued refresh token.
// Only the SHA256 hash of the raw value is ever stored. Rows are never
// deleted, only marked revoked, so the audit trail stays intact.
type RefreshToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IP        *string    `db:"ip" json:"-"`
	UserAgent *string    `db:"user_agent" json:"-"`
}

// Active reports whether the token is usable: not revoked and not expired.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
