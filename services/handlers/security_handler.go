package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/shared"
)

type SecurityHandler struct {
	securityLogSvc SecurityLogServiceInterface
	blockedIPSvc   BlockedIPServiceInterface
	rateLimitSvc   RateLimitServiceInterface
}

func NewSecurityHandler(securityLogSvc SecurityLogServiceInterface, blockedIPSvc BlockedIPServiceInterface, rateLimitSvc RateLimitServiceInterface) *SecurityHandler {
	return &SecurityHandler{
		securityLogSvc: securityLogSvc,
		blockedIPSvc:   blockedIPSvc,
		rateLimitSvc:   rateLimitSvc,
	}
}

func actorID(c *fiber.Ctx) string {
	id, _ := c.Locals(shared.UserID).(string)
	return id
}

func pagination(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func optionalBool(c *fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, shared.NewBadRequestError(err, fmt.Sprintf("%s must be true or false", key))
	}
	return &v, nil
}

// @Summary List security logs
// @Description List security log entries, newest first
// @Tags security
// @Produce json
// @Security Bearer
// @Param event_type query string false "Event type"
// @Param severity query string false "Severity"
// @Param ip_address query string false "IP address"
// @Param user_id query string false "User ID"
// @Param resolved query bool false "Resolution state"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} shared.Response{data=dto.SecurityLogListResponse}
// @Router /api/v1/admin/security/logs [get]
func (h *SecurityHandler) ListSecurityLogs(c *fiber.Ctx) error {
	resolved, err := optionalBool(c, "resolved")
	if err != nil {
		return err
	}

	page, limit := pagination(c)
	query := dto.SecurityLogQuery{
		EventType: c.Query("event_type"),
		Severity:  c.Query("severity"),
		IPAddress: c.Query("ip_address"),
		UserID:    c.Query("user_id"),
		Resolved:  resolved,
		Page:      page,
		Limit:     limit,
	}

	if err := query.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return shared.ResponseJSON(c, http.StatusBadRequest, validationResp.Message, validationResp.Errors)
	}

	logs, err := h.securityLogSvc.List(c.UserContext(), query)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Security logs retrieved successfully", logs)
}

// @Summary Resolve security log
// @Tags security
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Security log ID"
// @Param request body dto.ResolveSecurityLogRequest true "Resolution notes"
// @Success 200 {object} shared.Response{data=model.SecurityLog}
// @Router /api/v1/admin/security/logs/{id}/resolve [patch]
func (h *SecurityHandler) ResolveSecurityLog(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Security log ID is required", nil)
	}

	var req dto.ResolveSecurityLogRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid request", err.Error())
		}
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return shared.ResponseJSON(c, http.StatusBadRequest, validationResp.Message, validationResp.Errors)
	}

	entry, err := h.securityLogSvc.Resolve(c.UserContext(), id, actorID(c), req.Notes, shared.ClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Security log resolved", entry)
}

// @Summary List blocked IPs
// @Tags security
// @Produce json
// @Security Bearer
// @Param active query bool false "Only active or inactive records"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} shared.Response{data=dto.BlockedIPListResponse}
// @Router /api/v1/admin/security/blocked-ips [get]
func (h *SecurityHandler) ListBlockedIPs(c *fiber.Ctx) error {
	active, err := optionalBool(c, "active")
	if err != nil {
		return err
	}

	page, limit := pagination(c)
	records, err := h.blockedIPSvc.List(c.UserContext(), dto.BlockedIPListQuery{
		Active: active,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Blocked IPs retrieved successfully", records)
}

// @Summary Blocked IP status
// @Description Current block state for an address. Does not count as an attempt.
// @Tags security
// @Produce json
// @Security Bearer
// @Param ip path string true "IP address"
// @Success 200 {object} shared.Response{data=dto.BlockStatusResponse}
// @Router /api/v1/admin/security/blocked-ips/{ip} [get]
func (h *SecurityHandler) GetBlockedIPStatus(c *fiber.Ctx) error {
	status, err := h.blockedIPSvc.Status(c.UserContext(), c.Params("ip"))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, status)
}

// @Summary Block IP
// @Tags security
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.BlockIPRequest true "Block request"
// @Success 201 {object} shared.Response{data=model.BlockedIP}
// @Failure 409 {object} shared.Response
// @Router /api/v1/admin/security/blocked-ips [post]
func (h *SecurityHandler) BlockIP(c *fiber.Ctx) error {
	var req dto.BlockIPRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseJSON(c, http.StatusBadRequest, "Invalid request", err.Error())
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return shared.ResponseJSON(c, http.StatusBadRequest, validationResp.Message, validationResp.Errors)
	}

	record, err := h.blockedIPSvc.Block(c.UserContext(), req, actorID(c), shared.ClientIP(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusCreated, "IP blocked successfully", record)
}

// @Summary Unblock IP
// @Tags security
// @Produce json
// @Security Bearer
// @Param ip path string true "IP address"
// @Success 200 {object} shared.Response
// @Failure 404 {object} shared.Response
// @Router /api/v1/admin/security/blocked-ips/{ip} [delete]
func (h *SecurityHandler) UnblockIP(c *fiber.Ctx) error {
	if err := h.blockedIPSvc.Unblock(c.UserContext(), c.Params("ip"), actorID(c), shared.ClientIP(c)); err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "IP unblocked successfully", nil)
}

// @Summary Rate limit statistics
// @Tags security
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.RateLimitStats}
// @Router /api/v1/admin/security/rate-limits [get]
func (h *SecurityHandler) GetRateLimitStats(c *fiber.Ctx) error {
	return shared.ResponseJSON(c, fiber.StatusOK, "Rate limit statistics", h.rateLimitSvc.Stats())
}

// @Summary Reset rate limits for IP
// @Description Drops every in-memory window held for the address
// @Tags security
// @Produce json
// @Security Bearer
// @Param ip path string true "IP address"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/security/rate-limits/{ip} [delete]
func (h *SecurityHandler) ResetRateLimit(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if !shared.ValidIP(ip) {
		return shared.ErrInvalidIP
	}
	ip = shared.CanonicalIP(ip)

	removed := h.rateLimitSvc.ResetIP(ip)
	h.securityLogSvc.RecordAdminAction(c.UserContext(), actorID(c), shared.ClientIP(c),
		fmt.Sprintf("Rate limit windows reset for %s", ip),
		map[string]interface{}{
			"action":    "reset_rate_limit",
			"target_ip": ip,
			"removed":   removed,
		})

	return shared.ResponseJSON(c, fiber.StatusOK, fmt.Sprintf("Rate limits removed for %s", ip), fiber.Map{"removed": removed})
}
