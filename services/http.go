package services

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/services/handlers"
	"github.com/toolshare/admin_api/shared"
)

type HttpService struct {
	context.DefaultService

	rateLimitSvc   *RateLimitService
	adminGuardSvc  *AdminGuardService
	securityLogSvc *SecurityLogService
	blockedIPSvc   *BlockedIPService
	monitoringSvc  *MonitoringService

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc *HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.adminGuardSvc = svc.Service(ADMIN_GUARD_SVC).(*AdminGuardService)
	svc.securityLogSvc = svc.Service(SECURITY_LOG_SVC).(*SecurityLogService)
	svc.blockedIPSvc = svc.Service(BLOCKED_IP_SVC).(*BlockedIPService)
	svc.monitoringSvc = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.app = NewApp(AppDeps{
		RateLimit:   svc.rateLimitSvc,
		AdminGuard:  svc.adminGuardSvc,
		SecurityLog: svc.securityLogSvc,
		BlockedIP:   svc.blockedIPSvc,
		Monitoring:  svc.monitoringSvc,
		AccessLog:   os.Getenv("LOG_LEVEL") == "TRACE",
	})

	log.WithField("port", svc.port).Info("HTTP server listening")
	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

type AppDeps struct {
	RateLimit   *RateLimitService
	AdminGuard  *AdminGuardService
	SecurityLog handlers.SecurityLogServiceInterface
	BlockedIP   handlers.BlockedIPServiceInterface
	Monitoring  *MonitoringService
	AccessLog   bool
}

// NewApp wires the fiber application. Every request passes the rate limit
// middleware; the security surface additionally sits behind the admin guard.
func NewApp(deps AppDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder:           shared.JSONMarshal,
		JSONDecoder:           shared.JSONUnmarshal,
		ErrorHandler:          HandleError,
		DisableStartupMessage: true,
		Immutable:             true,
	})

	app.Use(recover.New())
	if deps.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if deps.Monitoring != nil {
		app.Use(MonitoringMiddleware(deps.Monitoring))
	}

	app.Get("/ping", ping)

	app.Use(deps.RateLimit.Middleware())

	v1 := app.Group("/api/v1")
	v1.Get("/ping", ping)

	securityHandler := handlers.NewSecurityHandler(deps.SecurityLog, deps.BlockedIP, deps.RateLimit)
	guard := deps.AdminGuard

	security := v1.Group("/admin/security")
	security.Get("/logs", guard.RequirePermissions(model.PermissionSecurityRead), securityHandler.ListSecurityLogs)
	security.Patch("/logs/:id/resolve", guard.RequirePermissions(model.PermissionSecurityWrite), securityHandler.ResolveSecurityLog)
	security.Get("/blocked-ips", guard.RequirePermissions(model.PermissionSecurityRead), securityHandler.ListBlockedIPs)
	security.Get("/blocked-ips/:ip", guard.RequirePermissions(model.PermissionSecurityRead), securityHandler.GetBlockedIPStatus)
	security.Post("/blocked-ips", guard.RequirePermissions(model.PermissionSecurityWrite), securityHandler.BlockIP)
	security.Delete("/blocked-ips/:ip", guard.RequirePermissions(model.PermissionSecurityWrite), securityHandler.UnblockIP)
	security.Get("/rate-limits", guard.RequirePermissions(model.PermissionSecurityRead), securityHandler.GetRateLimitStats)
	security.Delete("/rate-limits/:ip", guard.RequirePermissions(model.PermissionSecurityWrite), securityHandler.ResetRateLimit)

	app.Use(func(c *fiber.Ctx) error {
		return shared.ResponseNotFound(c)
	})

	return app
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

// HandleError renders errors returned by handlers.
func HandleError(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	appErr := shared.ToAppError(err)
	if appErr.StatusCode >= 500 {
		log.WithFields(log.Fields{
			"path":  c.Path(),
			"code":  appErr.Code,
			"error": err.Error(),
		}).Error("Request failed")
	}

	switch appErr.StatusCode {
	case fiber.StatusTooManyRequests, fiber.StatusUnauthorized, fiber.StatusForbidden:
		return shared.ResponseError(c, appErr)
	}
	return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
}
