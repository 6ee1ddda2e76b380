// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
)

// CreateRefreshToken inserts a refresh token record.
func (r *Repository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	token.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, created_at, expires_at, ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.IP, token.UserAgent)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = id
	return nil
}

// GetRefreshTokenByHash retrieves a refresh token by its hash.
func (r *Repository) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.GetContext(ctx, &token, `SELECT * FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// RevokeRefreshToken marks a token revoked. Idempotent: an already
// revoked token keeps its original revocation time.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenHash)
	return err
}

// RevokeUserRefreshTokens revokes every active token of a user.
func (r *Repository) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), userID)
	return err
}

// RotateRefreshToken revokes the old token and inserts the new record in
// a single transaction. If the old token was already revoked the rotation
// fails and the new token is not created, so a leaked token cannot be
// revived by replaying the rotation.
func (r *Repository) RotateRefreshToken(ctx context.Context, oldHash string, newToken *models.RefreshToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), oldHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	newToken.CreatedAt = time.Now().UTC()
	ins, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, created_at, expires_at, ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		newToken.UserID, newToken.TokenHash, newToken.CreatedAt, newToken.ExpiresAt,
		newToken.IP, newToken.UserAgent)
	if err != nil {
		return err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return err
	}
	newToken.ID = id

	return tx.Commit()
}
