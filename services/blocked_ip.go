package services

import (
	"context"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/services/repositories"
	"github.com/toolshare/admin_api/shared"
	"gorm.io/gorm"
)

const BLOCKED_IP_SVC = "blocked_ip_svc"

// BlockedIPService is the durable block list. Expiry is applied lazily on
// every read; the hourly sweep in DatabaseService only tidies up.
type BlockedIPService struct {
	appContext.DefaultService

	repo        *repositories.BlockedIPRepository
	securityLog *SecurityLogService
	now         func() time.Time
}

func NewBlockedIPService(db *gorm.DB, securityLog *SecurityLogService, now func() time.Time) *BlockedIPService {
	svc := &BlockedIPService{}
	svc.init(db, securityLog, now)
	return svc
}

func (svc *BlockedIPService) Id() string {
	return BLOCKED_IP_SVC
}

func (svc *BlockedIPService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *BlockedIPService) Start() error {
	dbSvc := svc.Service(DATABASE_SVC).(*DatabaseService)
	securityLog := svc.Service(SECURITY_LOG_SVC).(*SecurityLogService)
	svc.init(dbSvc.Db(), securityLog, nil)
	return nil
}

func (svc *BlockedIPService) init(db *gorm.DB, securityLog *SecurityLogService, now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	svc.repo = repositories.NewBlockedIPRepository(db)
	svc.securityLog = securityLog
	svc.now = now
}

// IsBlocked reports whether ip is currently blocked. An active but expired
// record is persisted as inactive and reported as not blocked; an effective
// record has its attempt counter bumped.
func (svc *BlockedIPService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	ip = shared.CanonicalIP(ip)

	record, err := svc.repo.FindActiveByIP(ctx, ip)
	if err != nil {
		ipBlockChecksTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if record == nil {
		ipBlockChecksTotal.WithLabelValues("allowed").Inc()
		return false, nil
	}

	now := svc.now()
	if record.IsExpired(now) {
		ipBlockChecksTotal.WithLabelValues("expired").Inc()
		if _, err := svc.repo.Deactivate(ctx, record.ID, now); err != nil {
			log.WithFields(log.Fields{"ip": ip, "error": err.Error()}).Warn("Failed to persist expired IP block")
		}
		return false, nil
	}

	ipBlockChecksTotal.WithLabelValues("blocked").Inc()
	if err := svc.repo.RecordAttempt(ctx, record.ID, now); err != nil {
		log.WithFields(log.Fields{"ip": ip, "error": err.Error()}).Warn("Failed to record blocked attempt")
	}
	return true, nil
}

// Status is the read-only view used by the admin surface; it does not count
// as an attempt and does not persist expiry.
func (svc *BlockedIPService) Status(ctx context.Context, ip string) (*dto.BlockStatusResponse, error) {
	if !shared.ValidIP(ip) {
		return nil, shared.ErrInvalidIP
	}
	ip = shared.CanonicalIP(ip)

	record, err := svc.repo.FindByIP(ctx, ip)
	if err != nil {
		return nil, shared.NewPersistenceError(err, "Failed to load IP status")
	}

	return &dto.BlockStatusResponse{
		IPAddress: ip,
		Blocked:   record != nil && record.IsEffective(svc.now()),
		Record:    record,
	}, nil
}

// Block creates a durable block, or reactivates the row left by an earlier
// one. It fails with shared.ErrAlreadyBlocked while a block is in effect.
func (svc *BlockedIPService) Block(ctx context.Context, req dto.BlockIPRequest, actorID, actorIP string) (*model.BlockedIP, error) {
	if !shared.ValidIP(req.IPAddress) {
		return nil, shared.ErrInvalidIP
	}
	reason := model.BlockReason(req.Reason)
	if !reason.Valid() {
		return nil, shared.NewBadRequestError(nil, fmt.Sprintf("invalid block reason %q", req.Reason))
	}

	now := svc.now()
	expiresAt := req.Expiry(now)
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, shared.NewBadRequestError(nil, "expires_at must be in the future")
	}

	record := &model.BlockedIP{
		IPAddress:   shared.CanonicalIP(req.IPAddress),
		Reason:      reason,
		Description: req.Description,
		IsActive:    true,
		ExpiresAt:   expiresAt,
	}
	if actorID != "" {
		record.BlockedBy = &actorID
	}

	activated, err := svc.activate(ctx, record, now)
	if err != nil {
		return nil, shared.NewPersistenceError(err, "Failed to block IP")
	}
	if !activated {
		return nil, shared.ErrAlreadyBlocked
	}

	ipBlocksCreatedTotal.WithLabelValues(string(reason)).Inc()
	log.WithFields(log.Fields{
		"ip":     record.IPAddress,
		"reason": reason,
		"actor":  actorID,
	}).Info("IP blocked")

	svc.securityLog.Record(ctx, SecurityEvent{
		EventType:   model.EventAdminAction,
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("IP %s blocked: %s", record.IPAddress, reason),
		IPAddress:   actorIP,
		UserID:      actorID,
		Metadata: map[string]interface{}{
			"action":     "block_ip",
			"target_ip":  record.IPAddress,
			"reason":     string(reason),
			"expires_at": expiresAt,
		},
	})

	return record, nil
}

// AutoBlock is the escalation entry point. Losing a race against another
// creator is not an error: it returns (nil, false, nil).
func (svc *BlockedIPService) AutoBlock(ctx context.Context, ip, description string, duration time.Duration) (*model.BlockedIP, bool, error) {
	now := svc.now()
	expiresAt := now.Add(duration)

	record := &model.BlockedIP{
		IPAddress:   shared.CanonicalIP(ip),
		Reason:      model.BlockReasonAutomatedBlock,
		Description: description,
		IsActive:    true,
		ExpiresAt:   &expiresAt,
	}

	activated, err := svc.activate(ctx, record, now)
	if err != nil || !activated {
		return nil, false, err
	}

	ipBlocksCreatedTotal.WithLabelValues(string(model.BlockReasonAutomatedBlock)).Inc()
	return record, true, nil
}

// activate inserts record or reactivates the existing row for its address.
// It returns false when a block is already in effect, including when a
// concurrent creator wins on the unique index.
func (svc *BlockedIPService) activate(ctx context.Context, record *model.BlockedIP, now time.Time) (bool, error) {
	existing, err := svc.repo.FindByIP(ctx, record.IPAddress)
	if err != nil {
		return false, err
	}

	if existing != nil {
		if existing.IsEffective(now) {
			return false, nil
		}
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		record.UpdatedAt = now
		return svc.repo.Reactivate(ctx, record, now)
	}

	record.CreatedAt = now
	err = svc.repo.Create(ctx, record)
	if repositories.IsUniqueViolation(err) {
		return false, nil
	}
	return err == nil, err
}

// Unblock deactivates the active block for ip. It fails with
// shared.ErrNotBlocked when there is none, including one that already expired.
func (svc *BlockedIPService) Unblock(ctx context.Context, ip, actorID, actorIP string) error {
	if !shared.ValidIP(ip) {
		return shared.ErrInvalidIP
	}
	ip = shared.CanonicalIP(ip)

	record, err := svc.repo.FindActiveByIP(ctx, ip)
	if err != nil {
		return shared.NewPersistenceError(err, "Failed to load IP block")
	}
	if record == nil {
		return shared.ErrNotBlocked
	}

	now := svc.now()
	expired := record.IsExpired(now)
	ok, err := svc.repo.Deactivate(ctx, record.ID, now)
	if err != nil {
		return shared.NewPersistenceError(err, "Failed to unblock IP")
	}
	if !ok || expired {
		return shared.ErrNotBlocked
	}

	log.WithFields(log.Fields{"ip": ip, "actor": actorID}).Info("IP unblocked")

	svc.securityLog.Record(ctx, SecurityEvent{
		EventType:   model.EventAdminAction,
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("IP %s unblocked", ip),
		IPAddress:   actorIP,
		UserID:      actorID,
		Metadata: map[string]interface{}{
			"action":        "unblock_ip",
			"target_ip":     ip,
			"attempt_count": record.AttemptCount,
		},
	})
	return nil
}

func (svc *BlockedIPService) List(ctx context.Context, query dto.BlockedIPListQuery) (*dto.BlockedIPListResponse, error) {
	records, total, err := svc.repo.List(ctx, query.Active, query.Page, query.Limit)
	if err != nil {
		return nil, shared.NewPersistenceError(err, "Failed to list blocked IPs")
	}

	return &dto.BlockedIPListResponse{
		Records: records,
		Total:   total,
		Page:    query.Page,
		Limit:   query.Limit,
	}, nil
}

// HasActiveBlock is the escalation pre-check: it applies lazy expiry but does
// not count an attempt.
func (svc *BlockedIPService) HasActiveBlock(ctx context.Context, ip string) (bool, error) {
	record, err := svc.repo.FindActiveByIP(ctx, shared.CanonicalIP(ip))
	if err != nil || record == nil {
		return false, err
	}

	now := svc.now()
	if record.IsExpired(now) {
		_, err := svc.repo.Deactivate(ctx, record.ID, now)
		return false, err
	}
	return true, nil
}
