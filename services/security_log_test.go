package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/internal/testutil"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/shared"
)

func TestRecordStoresEvent(t *testing.T) {
	db := testutil.OpenDB(t)
	clock := testutil.NewClock(testEpoch)
	svc := NewSecurityLogService(db, clock.Now)
	ctx := context.Background()

	result := svc.Record(ctx, SecurityEvent{
		EventType:   model.EventSuspiciousActivity,
		Severity:    model.SeverityCritical,
		Description: "Credential stuffing pattern",
		IPAddress:   "192.0.2.1",
		UserID:      "user-1",
		Metadata:    map[string]interface{}{"attempts": 40},
	})
	require.True(t, result.OK())
	require.NotEmpty(t, result.ID)

	entry, err := svc.repo.FindByID(ctx, result.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.SeverityCritical, entry.Severity)
	assert.Equal(t, "192.0.2.1", entry.IPAddress)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "user-1", *entry.UserID)
	assert.True(t, entry.CreatedAt.Equal(testEpoch))
	assert.False(t, entry.IsResolved)
	assert.Equal(t, json.Number("40"), entry.Metadata["attempts"])
}

func TestRecordDefaultsUnknownSeverity(t *testing.T) {
	svc := NewSecurityLogService(testutil.OpenDB(t), nil)
	ctx := context.Background()

	result := svc.Record(ctx, SecurityEvent{EventType: model.EventAdminAction, Severity: "loud"})
	require.True(t, result.OK())

	entry, err := svc.repo.FindByID(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityMedium, entry.Severity)
	assert.Nil(t, entry.UserID)
}

func TestRecordFailureIsReportedNotReturned(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewSecurityLogService(db, nil)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	before := promtestutil.ToFloat64(securityLogWritesTotal.WithLabelValues("error"))
	result := svc.Record(context.Background(), SecurityEvent{EventType: model.EventAdminAccess, Severity: model.SeverityLow})
	assert.False(t, result.OK())
	assert.Error(t, result.Err)
	assert.Empty(t, result.ID)
	assert.Equal(t, before+1, promtestutil.ToFloat64(securityLogWritesTotal.WithLabelValues("error")))
}

func TestResolve(t *testing.T) {
	db := testutil.OpenDB(t)
	clock := testutil.NewClock(testEpoch)
	svc := NewSecurityLogService(db, clock.Now)
	ctx := context.Background()

	result := svc.Record(ctx, SecurityEvent{EventType: model.EventUnauthorizedAccess, Severity: model.SeverityHigh, IPAddress: "192.0.2.2"})
	require.True(t, result.OK())

	clock.Advance(time.Minute)
	entry, err := svc.Resolve(ctx, result.ID, "admin-1", "false positive", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, entry.IsResolved)
	require.NotNil(t, entry.ResolvedBy)
	assert.Equal(t, "admin-1", *entry.ResolvedBy)
	require.NotNil(t, entry.Notes)
	assert.Equal(t, "false positive", *entry.Notes)

	stored, err := svc.repo.FindByID(ctx, result.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsResolved)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.ResolvedAt.Equal(testEpoch.Add(time.Minute)))
	assert.Equal(t, model.SeverityHigh, stored.Severity)
	assert.Equal(t, "192.0.2.2", stored.IPAddress)

	_, err = svc.Resolve(ctx, result.ID, "admin-2", "", "10.0.0.1")
	assert.ErrorIs(t, err, shared.ErrAlreadyResolved)

	_, err = svc.Resolve(ctx, "missing", "admin-1", "", "10.0.0.1")
	assert.ErrorIs(t, err, shared.ErrLogNotFound)

	count, err := svc.repo.CountByEventType(ctx, model.EventAdminAction)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListFiltersAndPages(t *testing.T) {
	db := testutil.OpenDB(t)
	clock := testutil.NewClock(testEpoch)
	svc := NewSecurityLogService(db, clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		svc.Record(ctx, SecurityEvent{EventType: model.EventAdminAccess, Severity: model.SeverityLow, IPAddress: "192.0.2.3"})
	}
	clock.Advance(time.Minute)
	last := svc.Record(ctx, SecurityEvent{EventType: model.EventIPBlocked, Severity: model.SeverityHigh, IPAddress: "192.0.2.4"})

	all, err := svc.List(ctx, dto.SecurityLogQuery{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(6), all.Total)
	require.Len(t, all.Logs, 6)
	assert.Equal(t, last.ID, all.Logs[0].ID, "newest first")

	page, err := svc.List(ctx, dto.SecurityLogQuery{EventType: string(model.EventAdminAccess), Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, page.Logs, 2)
	assert.Equal(t, 2, page.Page)

	unresolved := false
	high, err := svc.List(ctx, dto.SecurityLogQuery{Severity: string(model.SeverityHigh), Resolved: &unresolved, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), high.Total)
}
