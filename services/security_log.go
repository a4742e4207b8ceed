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
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const SECURITY_LOG_SVC = "security_log_svc"

// SecurityEvent is what callers hand to Record. Metadata is stored verbatim.
type SecurityEvent struct {
	EventType   model.SecurityEventType
	Severity    model.Severity
	Description string
	IPAddress   string
	UserID      string
	Metadata    map[string]interface{}
}

// RecordResult reports the outcome of a best-effort audit write. Callers may
// look at it for observability but must not change control flow on it.
type RecordResult struct {
	ID  string
	Err error
}

func (r RecordResult) OK() bool {
	return r.Err == nil
}

type SecurityLogService struct {
	appContext.DefaultService

	repo *repositories.SecurityLogRepository
	now  func() time.Time

	// failure warnings are throttled so a store outage cannot flood the log
	warnLimiter *rate.Limiter
}

func NewSecurityLogService(db *gorm.DB, now func() time.Time) *SecurityLogService {
	svc := &SecurityLogService{}
	svc.init(db, now)
	return svc
}

func (svc *SecurityLogService) Id() string {
	return SECURITY_LOG_SVC
}

func (svc *SecurityLogService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *SecurityLogService) Start() error {
	dbSvc := svc.Service(DATABASE_SVC).(*DatabaseService)
	svc.init(dbSvc.Db(), nil)
	return nil
}

func (svc *SecurityLogService) init(db *gorm.DB, now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	svc.repo = repositories.NewSecurityLogRepository(db)
	svc.now = now
	svc.warnLimiter = rate.NewLimiter(rate.Every(10*time.Second), 5)
}

// Record appends an audit entry. Failures are counted and traced, never
// returned as errors.
func (svc *SecurityLogService) Record(ctx context.Context, event SecurityEvent) RecordResult {
	entry := &model.SecurityLog{
		EventType:   event.EventType,
		Severity:    event.Severity,
		Description: event.Description,
		IPAddress:   event.IPAddress,
		Metadata:    event.Metadata,
		CreatedAt:   svc.now(),
	}
	if event.UserID != "" {
		userID := event.UserID
		entry.UserID = &userID
	}
	if !entry.Severity.Valid() {
		entry.Severity = model.SeverityMedium
	}

	if err := svc.repo.Save(ctx, entry); err != nil {
		securityLogWritesTotal.WithLabelValues("error").Inc()
		if svc.warnLimiter.Allow() {
			log.WithFields(log.Fields{
				"event_type": event.EventType,
				"ip":         event.IPAddress,
				"error":      err.Error(),
			}).Warn("Failed to write security log")
		}
		return RecordResult{Err: err}
	}

	securityLogWritesTotal.WithLabelValues("ok").Inc()
	return RecordResult{ID: entry.ID}
}

func (svc *SecurityLogService) List(ctx context.Context, query dto.SecurityLogQuery) (*dto.SecurityLogListResponse, error) {
	filter := repositories.SecurityLogFilter{
		EventType: query.EventType,
		Severity:  query.Severity,
		IPAddress: query.IPAddress,
		UserID:    query.UserID,
		Resolved:  query.Resolved,
		Page:      query.Page,
		Limit:     query.Limit,
	}

	logs, total, err := svc.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.NewPersistenceError(err, "Failed to list security logs")
	}

	return &dto.SecurityLogListResponse{
		Logs:  logs,
		Total: total,
		Page:  max(query.Page, 1),
		Limit: query.Limit,
	}, nil
}

// Resolve sets the resolution fields of an entry. Nothing else on the entry
// is ever rewritten.
func (svc *SecurityLogService) Resolve(ctx context.Context, id, actorID, notes, ip string) (*model.SecurityLog, error) {
	entry, err := svc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewPersistenceError(err, "Failed to load security log")
	}
	if entry == nil {
		return nil, shared.ErrLogNotFound
	}
	if entry.IsResolved {
		return nil, shared.ErrAlreadyResolved
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	now := svc.now()
	ok, err := svc.repo.Resolve(ctx, id, actorID, notesPtr, now)
	if err != nil {
		return nil, shared.NewPersistenceError(err, "Failed to resolve security log")
	}
	if !ok {
		return nil, shared.ErrAlreadyResolved
	}

	entry.IsResolved = true
	entry.ResolvedBy = &actorID
	entry.ResolvedAt = &now
	entry.Notes = notesPtr

	svc.Record(ctx, SecurityEvent{
		EventType:   model.EventAdminAction,
		Severity:    model.SeverityLow,
		Description: fmt.Sprintf("Security log %s resolved", id),
		IPAddress:   ip,
		UserID:      actorID,
		Metadata: map[string]interface{}{
			"action": "resolve_security_log",
			"log_id": id,
		},
	})

	return entry, nil
}

// RecordAdminAction is the handler-facing shortcut for admin_action entries.
func (svc *SecurityLogService) RecordAdminAction(ctx context.Context, actorID, ip, description string, metadata map[string]interface{}) {
	svc.Record(ctx, SecurityEvent{
		EventType:   model.EventAdminAction,
		Severity:    model.SeverityMedium,
		Description: description,
		IPAddress:   ip,
		UserID:      actorID,
		Metadata:    metadata,
	})
}
