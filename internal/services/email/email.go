// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email sends transactional mail and manages the one-time
// tokens for email verification and password reset.
package email

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stem-ed-architects/backend/internal/config"
	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/wneessen/go-mail"
)

const (
	// TokenLength is the number of random bytes for one-time tokens.
	TokenLength = 32
	// VerificationExpiry is how long email verification tokens are valid.
	VerificationExpiry = 24 * time.Hour
	// ResetExpiry is how long password reset tokens are valid.
	ResetExpiry = time.Hour
)

// Service sends email via SMTP. With no SMTP host configured it logs
// instead of sending, which keeps development setups working.
type Service struct {
	cfg     *config.SMTPConfig
	baseURL string
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, baseURL string) *Service {
	return &Service{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// GenerateToken generates a new one-time token.
// Returns (plaintext token, SHA256 hash for storage, error).
func GenerateToken() (string, string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	plaintext := hex.EncodeToString(bytes)
	return plaintext, HashToken(plaintext), nil
}

// HashToken computes the SHA256 hash of a token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// SendVerification sends an email verification link.
func (s *Service) SendVerification(_ context.Context, toEmail, token string) error {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
	body := fmt.Sprintf(
		"Welcome to STEM-ED-ARCHITECTS!\n\nPlease confirm your email address by visiting:\n\n%s\n\nThe link expires in 24 hours.\n",
		verifyURL)
	return s.send(toEmail, "Verify your email address", body)
}

// SendPasswordReset sends a password reset link.
func (s *Service) SendPasswordReset(_ context.Context, toEmail, token string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nReset your password here:\n\n%s\n\nThe link expires in 1 hour. If you did not request this, you can ignore this email.\n",
		resetURL)
	return s.send(toEmail, "Reset your password", body)
}

// SendLockoutNotice notifies a user their account was locked after
// repeated failed logins. Satisfies the lockout guard's Notifier.
func (s *Service) SendLockoutNotice(_ context.Context, user *models.User, until *time.Time) error {
	lockedUntil := "until an administrator unlocks it"
	if until != nil {
		lockedUntil = "until " + until.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	body := fmt.Sprintf(
		"Your account has been temporarily locked due to multiple failed login attempts.\n\nAccount: %s\nLocked %s\n\nIf you did not attempt to log in, reset your password: %s/forgot-password\n",
		user.Email, lockedUntil, s.baseURL)
	return s.send(user.Email, "Security alert: account locked", body)
}

// send delivers an email via SMTP using go-mail.
func (s *Service) send(to, subject, body string) error {
	if s.cfg.Host == "" {
		slog.Info("email_skipped_no_smtp", "to", to, "subject", subject)
		return nil
	}

	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
