package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/services/repositories"
	"github.com/toolshare/admin_api/shared"
)

const ADMIN_GUARD_SVC = "admin_guard_svc"

type TokenVerifier interface {
	ExtractTokenFromHeader(authHeader string) (string, error)
	Verify(token string) (*dto.VerifiedToken, error)
}

type UserLookup interface {
	FindActiveByID(ctx context.Context, id string) (*model.User, error)
}

type SecurityRecorder interface {
	Record(ctx context.Context, event SecurityEvent) RecordResult
}

// AdminGuardService gates admin routes: IP block, token, admin role,
// permissions, then an admin_access audit entry.
type AdminGuardService struct {
	appContext.DefaultService

	gate     BlockChecker
	tokens   TokenVerifier
	users    UserLookup
	auditLog SecurityRecorder
}

func NewAdminGuardService(gate BlockChecker, tokens TokenVerifier, users UserLookup, auditLog SecurityRecorder) *AdminGuardService {
	return &AdminGuardService{
		gate:     gate,
		tokens:   tokens,
		users:    users,
		auditLog: auditLog,
	}
}

func (svc *AdminGuardService) Id() string {
	return ADMIN_GUARD_SVC
}

func (svc *AdminGuardService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *AdminGuardService) Start() error {
	dbSvc := svc.Service(DATABASE_SVC).(*DatabaseService)

	svc.gate = svc.Service(BLOCKED_IP_SVC).(*BlockedIPService)
	svc.tokens = svc.Service(JWT_SVC).(*JWTService)
	svc.users = repositories.NewUserRepository(dbSvc.Db())
	svc.auditLog = svc.Service(SECURITY_LOG_SVC).(*SecurityLogService)
	return nil
}

func (svc *AdminGuardService) RequireAdmin() fiber.Handler {
	return svc.RequirePermissions()
}

// RequirePermissions admits admins holding every listed permission.
func (svc *AdminGuardService) RequirePermissions(permissions ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		ip := shared.ClientIP(c)

		// The rate limit middleware already consulted the gate for this request.
		if checked, _ := c.Locals(shared.IPGateResult).(bool); !checked {
			blocked, err := svc.gate.IsBlocked(ctx, ip)
			if err != nil {
				log.WithFields(log.Fields{"ip": ip, "error": err.Error()}).Warn("IP block check failed, denying admin request")
				return shared.ResponseError(c, shared.NewAuthorizationError(err, "Unable to verify IP status"))
			}
			if blocked {
				return shared.ResponseError(c, shared.NewIPBlockedError(ip))
			}
			c.Locals(shared.IPGateResult, true)
		}

		token, err := svc.tokens.ExtractTokenFromHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return shared.ResponseError(c, shared.NewAuthenticationError(err, "Authentication required"))
		}

		verified, err := svc.tokens.Verify(token)
		if err != nil {
			return shared.ResponseError(c, shared.NewAuthenticationError(err, "Invalid or expired token"))
		}

		user, err := svc.users.FindActiveByID(ctx, verified.Subject)
		if err != nil {
			if errors.Is(err, shared.ErrUserNotFound) {
				return shared.ResponseError(c, shared.NewAuthenticationError(err, "User not found or inactive"))
			}
			log.WithFields(log.Fields{"user_id": verified.Subject, "error": err.Error()}).Error("Failed to load user")
			return shared.ResponseError(c, shared.NewPersistenceError(err, "Unable to verify user"))
		}

		meta := map[string]interface{}{
			"path":       c.Path(),
			"method":     c.Method(),
			"user_agent": c.Get(fiber.HeaderUserAgent),
		}

		if !verified.IsAdmin || !user.IsAdmin() {
			meta["role"] = user.Role
			svc.auditLog.Record(ctx, SecurityEvent{
				EventType:   model.EventUnauthorizedAccess,
				Severity:    model.SeverityHigh,
				Description: fmt.Sprintf("Non-admin user attempted %s %s", c.Method(), c.Path()),
				IPAddress:   ip,
				UserID:      user.ID,
				Metadata:    meta,
			})
			return shared.ResponseError(c, shared.NewAuthorizationError(nil, "Admin access required"))
		}

		if len(permissions) > 0 && !user.HasPermissions(permissions...) {
			meta["required_permissions"] = strings.Join(permissions, ",")
			svc.auditLog.Record(ctx, SecurityEvent{
				EventType:   model.EventUnauthorizedAccess,
				Severity:    model.SeverityMedium,
				Description: fmt.Sprintf("Admin lacks permissions for %s %s", c.Method(), c.Path()),
				IPAddress:   ip,
				UserID:      user.ID,
				Metadata:    meta,
			})
			return shared.ResponseError(c, shared.NewAuthorizationError(nil, "Insufficient permissions"))
		}

		svc.auditLog.Record(ctx, SecurityEvent{
			EventType:   model.EventAdminAccess,
			Severity:    model.SeverityLow,
			Description: fmt.Sprintf("Admin access %s %s", c.Method(), c.Path()),
			IPAddress:   ip,
			UserID:      user.ID,
			Metadata:    meta,
		})

		c.Locals(shared.UserID, user.ID)
		c.Locals(shared.CurrentUser, user)
		return c.Next()
	}
}
