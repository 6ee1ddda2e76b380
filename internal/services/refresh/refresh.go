// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package refresh manages the server-side refresh token store.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/repository"
)

// tokenBytes gives 384 bits of entropy, comfortably past the point
// where offline guessing is feasible.
const tokenBytes = 48

// ErrTokenInactive is returned when a refresh token is unknown, revoked
// or expired. One sentinel for all three, deliberately.
var ErrTokenInactive = errors.New("refresh token is not active")

// ClientMeta carries per-request audit data stored with each token.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Service issues, looks up, revokes and rotates refresh tokens. Only
// the SHA256 of the raw value touches the database.
type Service struct {
	repo *repository.Repository
	ttl  time.Duration
}

// NewService creates a refresh token service with the given lifetime.
func NewService(repo *repository.Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{repo: repo, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// hashToken computes the SHA256 hex digest of a raw token value.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// generateToken returns a new high-entropy url-safe raw token.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a refresh token for the user and returns the raw value.
// The raw value is never stored or logged.
func (s *Service) Issue(ctx context.Context, user *models.User, meta ClientMeta) (string, error) {
	raw, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: time.Now().UTC().Add(s.ttl),
		IP:        truncatePtr(meta.IP, 64),
		UserAgent: truncatePtr(meta.UserAgent, 255),
	}
	if err := s.repo.CreateRefreshToken(ctx, record); err != nil {
		return "", fmt.Errorf("storing refresh token: %w", err)
	}
	return raw, nil
}

// Lookup resolves a raw token to its active record. Unknown, revoked
// and expired tokens all return ErrTokenInactive.
func (s *Service) Lookup(ctx context.Context, raw string) (*models.RefreshToken, error) {
	record, err := s.repo.GetRefreshTokenByHash(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInactive
		}
		return nil, err
	}
	if !record.Active(time.Now().UTC()) {
		return nil, ErrTokenInactive
	}
	return record, nil
}

// Revoke marks a token revoked. Revoking an already revoked or unknown
// token is a no-op.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	return s.repo.RevokeRefreshToken(ctx, hashToken(raw))
}

// RevokeAll revokes every active token of a user (password change,
// account lock, 2FA disable).
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	return s.repo.RevokeUserRefreshTokens(ctx, userID)
}

// Rotate atomically revokes the old token and issues a replacement.
// If the old token was already revoked or expired the rotation fails,
// so a stolen token cannot be replayed after its rotation.
func (s *Service) Rotate(ctx context.Context, oldRaw string, user *models.User, meta ClientMeta) (string, error) {
	old, err := s.Lookup(ctx, oldRaw)
	if err != nil {
		return "", err
	}
	if old.UserID != user.ID {
		return "", ErrTokenInactive
	}

	newRaw, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(newRaw),
		ExpiresAt: time.Now().UTC().Add(s.ttl),
		IP:        truncatePtr(meta.IP, 64),
		UserAgent: truncatePtr(meta.UserAgent, 255),
	}
	if err := s.repo.RotateRefreshToken(ctx, hashToken(oldRaw), record); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrTokenInactive
		}
		return "", fmt.Errorf("rotating refresh token: %w", err)
	}
	return newRaw, nil
}

func truncatePtr(s string, max int) *string {
	if s == "" {
		return nil
	}
	if len(s) > max {
		s = s[:max]
	}
	return &s
}
