// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package lockout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stem-ed-architects/backend/internal/models"
	"github.com/stem-ed-architects/backend/internal/services/lockout"
	"github.com/stem-ed-architects/backend/internal/testutil"
)

var meta = lockout.ClientMeta{IP: "203.0.113.9", UserAgent: "test-agent"}

// recordingNotifier captures lockout notices for assertions.
type recordingNotifier struct {
	notices int
	fail    bool
}

func (n *recordingNotifier) SendLockoutNotice(_ context.Context, _ *models.User, _ *time.Time) error {
	n.notices++
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func TestRecordFailure_LocksAtThreshold(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	notifier := &recordingNotifier{}
	guard := lockout.NewGuard(repo, notifier)
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	for i := 0; i < lockout.MaxFailedAttempts-1; i++ {
		locked, err := guard.RecordFailure(context.Background(), user, meta)
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d must not lock", i+1)
	}

	locked, err := guard.RecordFailure(context.Background(), user, meta)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 1, notifier.notices)

	// The lock horizon is LockDuration out.
	reloaded, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsLocked)
	require.NotNil(t, reloaded.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(lockout.LockDuration), *reloaded.LockedUntil, time.Minute)
}

func TestRecordFailure_NotifierErrorSwallowed(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	guard := lockout.NewGuard(repo, &recordingNotifier{fail: true})
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	for i := 0; i < lockout.MaxFailedAttempts; i++ {
		_, err := guard.RecordFailure(context.Background(), user, meta)
		require.NoError(t, err)
	}

	reloaded, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsLocked)
}

func TestEvaluate_ActiveLock(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	guard := lockout.NewGuard(repo, nil)
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	until := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, guard.Lock(context.Background(), user, &until))

	locked, lockedUntil, err := guard.Evaluate(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, locked)
	require.NotNil(t, lockedUntil)
	assert.WithinDuration(t, until, *lockedUntil, time.Second)
}

func TestEvaluate_ExpiredLockClearsLazily(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	guard := lockout.NewGuard(repo, nil)
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, guard.Lock(context.Background(), user, &past))

	locked, _, err := guard.Evaluate(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, locked)

	// The clear is persisted, not just in memory.
	reloaded, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsLocked)
	assert.Nil(t, reloaded.LockedUntil)
	assert.Zero(t, reloaded.FailedLoginAttempts)
}

func TestEvaluate_AdminLockNeverExpires(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	guard := lockout.NewGuard(repo, nil)
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	require.NoError(t, guard.Lock(context.Background(), user, nil))

	locked, until, err := guard.Evaluate(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Nil(t, until)

	require.NoError(t, guard.Unlock(context.Background(), user))
	locked, _, err = guard.Evaluate(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRecordSuccess_ResetsCounter(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	guard := lockout.NewGuard(repo, nil)
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	for i := 0; i < 3; i++ {
		_, err := guard.RecordFailure(context.Background(), user, meta)
		require.NoError(t, err)
	}
	require.NoError(t, guard.RecordSuccess(context.Background(), user, meta))

	reloaded, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.FailedLoginAttempts)
}

func TestRecordFailure_WritesAuditTrail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	guard := lockout.NewGuard(repo, nil)
	user := testutil.NewTestUser(t, repo, "alice@example.com")

	_, err := guard.RecordFailure(context.Background(), user, meta)
	require.NoError(t, err)
	require.NoError(t, guard.RecordSuccess(context.Background(), user, meta))

	attempts, err := repo.ListLoginAttempts(context.Background(), user.ID, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	// Newest first.
	assert.True(t, attempts[0].Success)
	assert.False(t, attempts[1].Success)
	require.NotNil(t, attempts[0].IPAddress)
	assert.Equal(t, meta.IP, *attempts[0].IPAddress)
}
