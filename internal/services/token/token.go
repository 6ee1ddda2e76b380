// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token signs and verifies the JWTs used for API access and
// transient two-factor challenges.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token scopes. A token issued for one scope is rejected everywhere else.
// An empty scope is treated as access for backward compatibility with
// tokens minted before scopes existed.
const (
	ScopeAccess             = "access"
	ScopeTwoFactorChallenge = "two_factor_challenge"
)

// ErrTokenInvalid covers expired, malformed, badly signed and
// wrong-scope tokens. One sentinel on purpose: callers must not be able
// to tell which check failed.
var ErrTokenInvalid = errors.New("invalid token")

// Subject identifies the token holder. Historically the sub claim held
// either a numeric user id or an email; Subject makes that explicit
// instead of leaving callers to guess from the string.
type Subject struct {
	userID int64
	email  string
	byID   bool
}

// UserIDSubject creates a Subject from a user id.
func UserIDSubject(id int64) Subject {
	return Subject{userID: id, byID: true}
}

// EmailSubject creates a Subject from an email address.
func EmailSubject(email string) Subject {
	return Subject{email: email}
}

// UserID returns the numeric id, if this subject carries one.
func (s Subject) UserID() (int64, bool) {
	return s.userID, s.byID
}

// Email returns the email, if this subject carries one.
func (s Subject) Email() (string, bool) {
	return s.email, !s.byID
}

// String renders the subject as it appears in the sub claim.
func (s Subject) String() string {
	if s.byID {
		return strconv.FormatInt(s.userID, 10)
	}
	return s.email
}

// parseSubject resolves the sub claim: all-digit strings are user ids,
// anything else is an email.
func parseSubject(raw string) (Subject, error) {
	if raw == "" {
		return Subject{}, ErrTokenInvalid
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return UserIDSubject(id), nil
	}
	return EmailSubject(raw), nil
}

// Claims is the decoded token payload.
type Claims struct {
	Subject     Subject
	Scope       string
	ChallengeID string
	ClientIP    string
	UAHash      string
	ExpiresAt   time.Time
}

type jwtClaims struct {
	Scope       string `json:"scope,omitempty"`
	ChallengeID string `json:"cid,omitempty"`
	ClientIP    string `json:"ip,omitempty"`
	UAHash      string `json:"ua,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a process-wide static key.
// Rotating the key invalidates all outstanding tokens.
type Codec struct {
	secretKey []byte
	accessTTL time.Duration
}

// ChallengeTTL is the lifetime of a two-factor challenge token.
const ChallengeTTL = 5 * time.Minute

// NewCodec creates a Codec. accessTTL applies to access tokens.
func NewCodec(secretKey string, accessTTL time.Duration) (*Codec, error) {
	if secretKey == "" {
		return nil, errors.New("secret key is required")
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &Codec{secretKey: []byte(secretKey), accessTTL: accessTTL}, nil
}

// IssueAccess mints an access token for the subject.
func (c *Codec) IssueAccess(subject Subject) (string, error) {
	return c.issue(jwtClaims{
		Scope: ScopeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(c.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
}

// IssueChallenge mints a short-lived two-factor challenge token bound to
// the requesting client. Nothing is persisted; authenticity rests on the
// signature and expiry alone.
func (c *Codec) IssueChallenge(userID int64, clientIP, userAgent string) (string, error) {
	return c.issue(jwtClaims{
		Scope:       ScopeTwoFactorChallenge,
		ChallengeID: uuid.NewString(),
		ClientIP:    clientIP,
		UAHash:      HashUserAgent(userAgent),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ChallengeTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
}

func (c *Codec) issue(claims jwtClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secretKey)
}

// Decode verifies a token and checks its scope against expectedScope.
// Any failure, including a scope mismatch, returns ErrTokenInvalid.
func (c *Codec) Decode(tokenString, expectedScope string) (*Claims, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return c.secretKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	scope := claims.Scope
	if scope == "" {
		scope = ScopeAccess
	}
	if scope != expectedScope {
		return nil, ErrTokenInvalid
	}

	subject, err := parseSubject(claims.RegisteredClaims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Claims{
		Subject:     subject,
		Scope:       scope,
		ChallengeID: claims.ChallengeID,
		ClientIP:    claims.ClientIP,
		UAHash:      claims.UAHash,
		ExpiresAt:   expiresAt,
	}, nil
}

// HashUserAgent shortens a user-agent string for embedding in claims.
func HashUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:8])
}
