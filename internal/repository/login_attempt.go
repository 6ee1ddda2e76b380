// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
)

// CreateLoginAttempt appends an audit row. Rows are never updated or deleted.
func (r *Repository) CreateLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO login_attempts (user_id, ip_address, user_agent, success, attempt_time)
		 VALUES (?, ?, ?, ?, ?)`,
		attempt.UserID, attempt.IPAddress, attempt.UserAgent, attempt.Success, attempt.AttemptTime)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	attempt.ID = id
	return nil
}

// ListLoginAttempts returns the most recent attempts for a user.
func (r *Repository) ListLoginAttempts(ctx context.Context, userID int64, limit int) ([]models.LoginAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var attempts []models.LoginAttempt
	err := r.db.SelectContext(ctx, &attempts,
		`SELECT * FROM login_attempts WHERE user_id = ? ORDER BY attempt_time DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// CountRecentFailedAttempts counts failed attempts for a user since cutoff.
func (r *Repository) CountRecentFailedAttempts(ctx context.Context, userID int64, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM login_attempts WHERE user_id = ? AND success = 0 AND attempt_time >= ?`,
		userID, cutoff)
	return count, err
}
