package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolshare/admin_api/internal/testutil"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/shared"
	"gorm.io/gorm"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: blocked_ips.ip_address")))
	assert.False(t, IsUniqueViolation(errors.New("no such table")))
}

func TestNormalizePage(t *testing.T) {
	page, limit := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)

	page, limit = normalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, 20, limit)

	page, limit = normalizePage(2, 50)
	assert.Equal(t, 2, page)
	assert.Equal(t, 50, limit)
}

func TestBlockedIPRowLifecycle(t *testing.T) {
	repo := NewBlockedIPRepository(testutil.OpenDB(t))
	ctx := context.Background()
	expires := epoch.Add(time.Hour)

	record := &model.BlockedIP{IPAddress: "192.0.2.10", Reason: model.BlockReasonSpam, IsActive: true, ExpiresAt: &expires, CreatedAt: epoch}
	require.NoError(t, repo.Create(ctx, record))

	dup := &model.BlockedIP{IPAddress: "192.0.2.10", Reason: model.BlockReasonAbuse, IsActive: true, CreatedAt: epoch}
	assert.True(t, IsUniqueViolation(repo.Create(ctx, dup)))

	require.NoError(t, repo.RecordAttempt(ctx, record.ID, epoch.Add(time.Minute)))
	require.NoError(t, repo.RecordAttempt(ctx, record.ID, epoch.Add(2*time.Minute)))

	ok, err := repo.Reactivate(ctx, record, epoch.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "still effective")

	n, err := repo.DeactivateExpired(ctx, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err = repo.Deactivate(ctx, record.ID, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "already inactive")

	active, err := repo.FindActiveByIP(ctx, "192.0.2.10")
	require.NoError(t, err)
	assert.Nil(t, active)

	record.Reason = model.BlockReasonAbuse
	record.ExpiresAt = nil
	ok, err = repo.Reactivate(ctx, record, epoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindActiveByIP(ctx, "192.0.2.10")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, record.ID, stored.ID)
	assert.Equal(t, model.BlockReasonAbuse, stored.Reason)
	assert.Nil(t, stored.ExpiresAt)
	assert.Zero(t, stored.AttemptCount)
}

func TestUserRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	count, err := repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	admin, err := repo.CreateAdmin(ctx, "root@example.com", "root", "correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", admin.Password)
	assert.True(t, admin.HasPermissions(model.PermissionSecurityWrite))

	found, err := repo.FindActiveByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "root", found.Username)

	byName, err := repo.GetUserByEmailOrUsername(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, byName.ID)

	_, err = repo.CreateAdmin(ctx, "root@example.com", "root2", "pw")
	assert.True(t, IsUniqueViolation(err))

	inactive := testutil.CreateUser(t, db, model.RoleAdmin, false)
	_, err = repo.FindActiveByID(ctx, inactive.ID)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = repo.FindActiveByID(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	count, err = repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
