// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stem-ed-architects/backend/internal/services/token"
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec("test-secret", time.Hour)
	require.NoError(t, err)
	return codec
}

func TestNewCodec_EmptySecret(t *testing.T) {
	_, err := token.NewCodec("", time.Hour)
	assert.Error(t, err)
}

func TestIssueAccess_Roundtrip(t *testing.T) {
	codec := newCodec(t)

	raw, err := codec.IssueAccess(token.UserIDSubject(42))
	require.NoError(t, err)

	claims, err := codec.Decode(raw, token.ScopeAccess)
	require.NoError(t, err)

	id, ok := claims.Subject.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, token.ScopeAccess, claims.Scope)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestIssueAccess_EmailSubject(t *testing.T) {
	codec := newCodec(t)

	raw, err := codec.IssueAccess(token.EmailSubject("user@example.com"))
	require.NoError(t, err)

	claims, err := codec.Decode(raw, token.ScopeAccess)
	require.NoError(t, err)

	email, ok := claims.Subject.Email()
	assert.True(t, ok)
	assert.Equal(t, "user@example.com", email)
	_, ok = claims.Subject.UserID()
	assert.False(t, ok)
}

func TestIssueChallenge_CarriesClientBinding(t *testing.T) {
	codec := newCodec(t)

	raw, err := codec.IssueChallenge(7, "203.0.113.9", "Mozilla/5.0")
	require.NoError(t, err)

	claims, err := codec.Decode(raw, token.ScopeTwoFactorChallenge)
	require.NoError(t, err)

	id, ok := claims.Subject.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "203.0.113.9", claims.ClientIP)
	assert.Equal(t, token.HashUserAgent("Mozilla/5.0"), claims.UAHash)
	assert.NotEmpty(t, claims.ChallengeID)
	assert.WithinDuration(t, time.Now().Add(token.ChallengeTTL), claims.ExpiresAt, time.Minute)
}

func TestIssueChallenge_UniqueChallengeIDs(t *testing.T) {
	codec := newCodec(t)

	a, err := codec.IssueChallenge(7, "203.0.113.9", "ua")
	require.NoError(t, err)
	b, err := codec.IssueChallenge(7, "203.0.113.9", "ua")
	require.NoError(t, err)

	ca, err := codec.Decode(a, token.ScopeTwoFactorChallenge)
	require.NoError(t, err)
	cb, err := codec.Decode(b, token.ScopeTwoFactorChallenge)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ChallengeID, cb.ChallengeID)
}

func TestDecode_ScopeMismatch(t *testing.T) {
	codec := newCodec(t)

	access, err := codec.IssueAccess(token.UserIDSubject(1))
	require.NoError(t, err)
	challenge, err := codec.IssueChallenge(1, "127.0.0.1", "ua")
	require.NoError(t, err)

	_, err = codec.Decode(access, token.ScopeTwoFactorChallenge)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
	_, err = codec.Decode(challenge, token.ScopeAccess)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestDecode_EmptyScopeIsAccess(t *testing.T) {
	// Tokens minted before scopes existed carry no scope claim and must
	// keep working as access tokens.
	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := legacy.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	codec := newCodec(t)
	claims, err := codec.Decode(raw, token.ScopeAccess)
	require.NoError(t, err)
	assert.Equal(t, token.ScopeAccess, claims.Scope)
}

func TestDecode_WrongKey(t *testing.T) {
	codec := newCodec(t)
	other, err := token.NewCodec("different-secret", time.Hour)
	require.NoError(t, err)

	raw, err := codec.IssueAccess(token.UserIDSubject(1))
	require.NoError(t, err)

	_, err = other.Decode(raw, token.ScopeAccess)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestDecode_Expired(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	raw, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	codec := newCodec(t)
	_, err = codec.Decode(raw, token.ScopeAccess)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestDecode_RejectsNonHMAC(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	codec := newCodec(t)
	_, err = codec.Decode(raw, token.ScopeAccess)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestDecode_Garbage(t *testing.T) {
	codec := newCodec(t)
	_, err := codec.Decode("definitely.not.ajwt", token.ScopeAccess)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestHashUserAgent_StableAndShort(t *testing.T) {
	a := token.HashUserAgent("Mozilla/5.0")
	b := token.HashUserAgent("Mozilla/5.0")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, token.HashUserAgent("curl/8.0"))
}
