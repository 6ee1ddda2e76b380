// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/secretbox"
	"github.com/stem-ed-architects/backend/internal/testutil"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	box, err := secretbox.New("test-app-secret")
	require.NoError(t, err)
	return NewEngine(repo, box, "TestIssuer")
}

// currentCode computes the valid TOTP code for a setup secret.
func currentCode(t *testing.T, secret string) string {
	t.Helper()
	key, err := base32NoPad.DecodeString(secret)
	require.NoError(t, err)
	return hotpCode(key, time.Now().UTC().Unix()/totpPeriod)
}

func enableFor(t *testing.T, e *Engine, user *models.User) *SetupResult {
	t.Helper()
	setup, err := e.StartSetup(context.Background(), user)
	require.NoError(t, err)
	require.NoError(t, e.Enable(context.Background(), user, currentCode(t, setup.Secret)))
	return setup
}

func TestStartSetup(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	setup, err := e.StartSetup(context.Background(), user)
	require.NoError(t, err)

	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OTPAuthURI, "otpauth://totp/")
	assert.Len(t, setup.BackupCodes, BackupCodeCount)

	// 2FA is still off and the stored secret is not the plaintext.
	reloaded, err := e.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.TwoFactorEnabled)
	require.NotNil(t, reloaded.TwoFactorSecret)
	assert.NotEqual(t, setup.Secret, *reloaded.TwoFactorSecret)
}

func TestStartSetup_AlreadyEnabled(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	enableFor(t, e, user)

	_, err := e.StartSetup(context.Background(), user)
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestEnable(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	setup, err := e.StartSetup(context.Background(), user)
	require.NoError(t, err)

	require.NoError(t, e.Enable(context.Background(), user, currentCode(t, setup.Secret)))

	reloaded, err := e.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.TwoFactorEnabled)
	assert.NotNil(t, reloaded.TwoFactorConfirmedAt)
}

func TestEnable_WrongCode(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	_, err := e.StartSetup(context.Background(), user)
	require.NoError(t, err)

	err = e.Enable(context.Background(), user, "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)
	assert.False(t, user.TwoFactorEnabled)
}

func TestEnable_WithoutSetup(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	err := e.Enable(context.Background(), user, "123456")
	assert.ErrorIs(t, err, ErrSetupRequired)
}

func TestVerifyTOTP(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	setup := enableFor(t, e, user)

	ok, err := e.VerifyTOTP(user, currentCode(t, setup.Secret))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.VerifyTOTP(user, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTOTP_NoSecret(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	ok, err := e.VerifyTOTP(user, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTOTP_UndecryptableSecretFailsClosed(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	garbage := "not-a-valid-ciphertext"
	user.TwoFactorSecret = &garbage

	ok, err := e.VerifyTOTP(user, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisable(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	enableFor(t, e, user)

	require.NoError(t, e.Disable(context.Background(), user))

	reloaded, err := e.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.TwoFactorEnabled)
	assert.Nil(t, reloaded.TwoFactorSecret)
	assert.Nil(t, reloaded.TwoFactorBackupCodes)
}

func TestConsumeBackupCode(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	setup := enableFor(t, e, user)

	code := setup.BackupCodes[0]
	ok, err := e.ConsumeBackupCode(context.Background(), user, code)
	require.NoError(t, err)
	assert.True(t, ok)

	// The same code is single-use.
	ok, err = e.ConsumeBackupCode(context.Background(), user, code)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, BackupCodeCount-1, e.StatusFor(user).BackupCodesRemaining)
}

func TestConsumeBackupCode_Unknown(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	enableFor(t, e, user)

	ok, err := e.ConsumeBackupCode(context.Background(), user, "0000-0000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, BackupCodeCount, e.StatusFor(user).BackupCodesRemaining)
}

func TestConsumeBackupCode_StaleCopyRetries(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	setup := enableFor(t, e, user)

	// A second handler holds its own copy of the row.
	stale, err := e.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)

	ok, err := e.ConsumeBackupCode(context.Background(), user, setup.BackupCodes[0])
	require.NoError(t, err)
	require.True(t, ok)

	// The stale copy's first swap fails, the retry consumes a
	// different code against the fresh list.
	ok, err = e.ConsumeBackupCode(context.Background(), stale, setup.BackupCodes[1])
	require.NoError(t, err)
	assert.True(t, ok)

	// But replaying the already consumed code through the stale copy
	// must not work.
	stale2, err := e.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	ok, err = e.ConsumeBackupCode(context.Background(), stale2, setup.BackupCodes[0])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegenerateBackupCodes(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	setup := enableFor(t, e, user)

	// Burn one code, then regenerate.
	ok, err := e.ConsumeBackupCode(context.Background(), user, setup.BackupCodes[0])
	require.NoError(t, err)
	require.True(t, ok)

	fresh, err := e.RegenerateBackupCodes(context.Background(), user, currentCode(t, setup.Secret))
	require.NoError(t, err)
	assert.Len(t, fresh, BackupCodeCount)

	// Old codes are all dead, fresh ones work.
	ok, err = e.ConsumeBackupCode(context.Background(), user, setup.BackupCodes[1])
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = e.ConsumeBackupCode(context.Background(), user, fresh[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegenerateBackupCodes_RequiresValidCode(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")
	enableFor(t, e, user)

	_, err := e.RegenerateBackupCodes(context.Background(), user, "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestRegenerateBackupCodes_NotEnabled(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	_, err := e.RegenerateBackupCodes(context.Background(), user, "123456")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestStatusFor(t *testing.T) {
	e := newEngine(t)
	user := testutil.NewTestUser(t, e.repo, "alice@example.com")

	status := e.StatusFor(user)
	assert.False(t, status.Enabled)
	assert.Zero(t, status.BackupCodesRemaining)

	enableFor(t, e, user)
	status = e.StatusFor(user)
	assert.True(t, status.Enabled)
	assert.Equal(t, BackupCodeCount, status.BackupCodesRemaining)
	assert.NotNil(t, status.ConfirmedAt)
}
