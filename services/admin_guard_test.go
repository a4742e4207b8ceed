package services

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/internal/testutil"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/services/repositories"
	"github.com/toolshare/admin_api/shared"
)

const guardSecret = "guard-test-secret"

type guardFixture struct {
	*blocklistFixture
	jwt   *JWTService
	guard *AdminGuardService
	app   *fiber.App
}

func newGuardFixture(t *testing.T, permissions ...string) *guardFixture {
	t.Helper()

	f := newBlocklistFixture(t)
	jwtSvc := NewJWTService(guardSecret)
	guard := NewAdminGuardService(f.blocklist, jwtSvc, repositories.NewUserRepository(f.db), f.securityLog)

	app := fiber.New()
	app.Get("/api/v1/admin/tools", guard.RequirePermissions(permissions...), func(c *fiber.Ctx) error {
		user, ok := c.Locals(shared.CurrentUser).(*model.User)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(c.Locals(shared.UserID).(string) + ":" + user.Role)
	})

	return &guardFixture{blocklistFixture: f, jwt: jwtSvc, guard: guard, app: app}
}

func (f *guardFixture) token(t *testing.T, user *model.User, isAdmin bool, ttl time.Duration) string {
	t.Helper()
	token, err := f.jwt.ToJWT(user.ID, isAdmin, ttl)
	require.NoError(t, err)
	return token
}

func (f *guardFixture) do(t *testing.T, ip, authorization string) (int, shared.ErrorBody, string) {
	t.Helper()

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/admin/tools", nil)
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set(fiber.HeaderUserAgent, "guard-test")
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body shared.ErrorBody
	if resp.StatusCode != fiber.StatusOK {
		require.NoError(t, shared.JSONUnmarshal(raw, &body))
	}
	return resp.StatusCode, body, string(raw)
}

func (f *guardFixture) countEvents(t *testing.T, eventType model.SecurityEventType) int64 {
	t.Helper()
	count, err := f.logs.CountByEventType(context.Background(), eventType)
	require.NoError(t, err)
	return count
}

func TestGuardAdmitsAdmin(t *testing.T) {
	f := newGuardFixture(t, model.PermissionSecurityRead)
	admin := testutil.CreateUser(t, f.db, model.RoleAdmin, true, model.PermissionSecurityRead)

	status, _, body := f.do(t, "198.51.100.1", "Bearer "+f.token(t, admin, true, 0))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, admin.ID+":admin", body)

	logs, total, err := f.logs.List(context.Background(), repositories.SecurityLogFilter{EventType: string(model.EventAdminAccess)})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, model.SeverityLow, logs[0].Severity)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, admin.ID, *logs[0].UserID)
	assert.Equal(t, "198.51.100.1", logs[0].IPAddress)
	assert.Equal(t, "guard-test", logs[0].Metadata["user_agent"])
}

func TestGuardSuperAdminHoldsEveryPermission(t *testing.T) {
	f := newGuardFixture(t, model.PermissionSecurityWrite, model.PermissionSettingsWrite)
	root := testutil.CreateUser(t, f.db, model.RoleSuperAdmin, true)

	status, _, body := f.do(t, "198.51.100.2", "Bearer "+f.token(t, root, true, 0))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, root.ID+":super_admin", body)
}

func TestGuardRejectsNonAdmin(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.CreateUser(t, f.db, model.RoleUser, true)

	status, body, _ := f.do(t, "198.51.100.3", "Bearer "+f.token(t, user, false, 0))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Admin access required", body.Message)

	logs, total, err := f.logs.List(context.Background(), repositories.SecurityLogFilter{EventType: string(model.EventUnauthorizedAccess)})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, model.SeverityHigh, logs[0].Severity)
	assert.Equal(t, "user", logs[0].Metadata["role"])
	assert.Zero(t, f.countEvents(t, model.EventAdminAccess))
}

func TestGuardRequiresBothTokenAndRole(t *testing.T) {
	t.Run("admin claim on user account", func(t *testing.T) {
		f := newGuardFixture(t)
		user := testutil.CreateUser(t, f.db, model.RoleModerator, true)

		status, _, _ := f.do(t, "198.51.100.4", "Bearer "+f.token(t, user, true, 0))
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Equal(t, int64(1), f.countEvents(t, model.EventUnauthorizedAccess))
	})

	t.Run("admin account with non-admin token", func(t *testing.T) {
		f := newGuardFixture(t)
		admin := testutil.CreateUser(t, f.db, model.RoleAdmin, true)

		status, _, _ := f.do(t, "198.51.100.5", "Bearer "+f.token(t, admin, false, 0))
		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Equal(t, int64(1), f.countEvents(t, model.EventUnauthorizedAccess))
	})
}

func TestGuardMissingPermission(t *testing.T) {
	f := newGuardFixture(t, model.PermissionSecurityWrite)
	admin := testutil.CreateUser(t, f.db, model.RoleAdmin, true, model.PermissionSecurityRead)

	status, body, _ := f.do(t, "198.51.100.6", "Bearer "+f.token(t, admin, true, 0))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Insufficient permissions", body.Message)

	logs, _, err := f.logs.List(context.Background(), repositories.SecurityLogFilter{EventType: string(model.EventUnauthorizedAccess)})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.SeverityMedium, logs[0].Severity)
	assert.Equal(t, model.PermissionSecurityWrite, logs[0].Metadata["required_permissions"])
}

func TestGuardAuthenticationFailures(t *testing.T) {
	f := newGuardFixture(t)
	admin := testutil.CreateUser(t, f.db, model.RoleAdmin, true)
	inactive := testutil.CreateUser(t, f.db, model.RoleAdmin, false)
	other := NewJWTService("some-other-secret")
	forged, err := other.ToJWT(admin.ID, true, 0)
	require.NoError(t, err)

	cases := []struct {
		name          string
		authorization string
		message       string
	}{
		{"missing header", "", "Authentication required"},
		{"wrong scheme", "Basic " + f.token(t, admin, true, 0), "Authentication required"},
		{"garbage token", "Bearer not-a-jwt", "Invalid or expired token"},
		{"expired token", "Bearer " + f.token(t, admin, true, -time.Minute), "Invalid or expired token"},
		{"wrong signature", "Bearer " + forged, "Invalid or expired token"},
		{"inactive user", "Bearer " + f.token(t, inactive, true, 0), "User not found or inactive"},
		{"unknown user", "Bearer " + f.token(t, &model.User{ID: "ghost"}, true, 0), "User not found or inactive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body, _ := f.do(t, "198.51.100.7", tc.authorization)
			assert.Equal(t, fiber.StatusUnauthorized, status)
			assert.Equal(t, fiber.StatusUnauthorized, body.StatusCode)
			assert.Equal(t, tc.message, body.Message)
		})
	}

	assert.Zero(t, f.countEvents(t, model.EventUnauthorizedAccess))
	assert.Zero(t, f.countEvents(t, model.EventAdminAccess))
}

func TestGuardRejectsBlockedIP(t *testing.T) {
	f := newGuardFixture(t)
	admin := testutil.CreateUser(t, f.db, model.RoleAdmin, true)

	_, err := f.blocklist.Block(context.Background(), dto.BlockIPRequest{IPAddress: "198.51.100.8", Reason: "abuse"}, "admin-1", "")
	require.NoError(t, err)

	status, body, _ := f.do(t, "198.51.100.8", "Bearer "+f.token(t, admin, true, 0))
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Access denied", body.Message)
	assert.Zero(t, f.countEvents(t, model.EventAdminAccess))
}

type failingUsers struct{}

func (failingUsers) FindActiveByID(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection reset")
}

func TestGuardFailureModes(t *testing.T) {
	t.Run("gate error fails closed", func(t *testing.T) {
		gate := &stubGate{err: errors.New("store down")}
		guard := NewAdminGuardService(gate, NewJWTService(guardSecret), failingUsers{}, nil)

		app := fiber.New()
		app.Get("/x", guard.RequireAdmin(), func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/x", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("gate skipped after rate limiter", func(t *testing.T) {
		gate := &stubGate{err: errors.New("store down")}
		guard := NewAdminGuardService(gate, NewJWTService(guardSecret), failingUsers{}, nil)

		app := fiber.New()
		app.Use(func(c *fiber.Ctx) error {
			c.Locals(shared.IPGateResult, true)
			return c.Next()
		})
		app.Get("/x", guard.RequireAdmin(), func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/x", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Zero(t, gate.calls.Load())
	})

	t.Run("user lookup error", func(t *testing.T) {
		jwtSvc := NewJWTService(guardSecret)
		guard := NewAdminGuardService(&stubGate{}, jwtSvc, failingUsers{}, nil)
		token, err := jwtSvc.ToJWT("user-1", true, 0)
		require.NoError(t, err)

		app := fiber.New()
		app.Get("/x", guard.RequireAdmin(), func(c *fiber.Ctx) error { return c.SendString("ok") })

		req := httptest.NewRequest(fiber.MethodGet, "/x", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})
}
