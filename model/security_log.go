package model

import (
	"time"

	"gorm.io/datatypes"
)

type SecurityEventType string

const (
	EventLoginFailed        SecurityEventType = "login_failed"
	EventRateLimitExceeded  SecurityEventType = "rate_limit_exceeded"
	EventUnauthorizedAccess SecurityEventType = "unauthorized_access"
	EventAdminAction        SecurityEventType = "admin_action"
	EventAdminAccess        SecurityEventType = "admin_access"
	EventSessionTerminated  SecurityEventType = "session_terminated"
	EventSuspiciousActivity SecurityEventType = "suspicious_activity"
	EventIPBlocked          SecurityEventType = "ip_blocked"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SecurityLog is an append-only audit entry. Only the resolution fields
// (IsResolved, ResolvedBy, ResolvedAt, Notes) are ever updated.
type SecurityLog struct {
	ID          string            `json:"id" gorm:"primaryKey;type:text;not null"`
	EventType   SecurityEventType `json:"event_type" gorm:"size:64;not null;index"`
	Severity    Severity          `json:"severity" gorm:"size:16;not null;index"`
	Description string            `json:"description" gorm:"type:text;not null"`
	IPAddress   string            `json:"ip_address" gorm:"size:45;index"`
	UserID      *string           `json:"user_id,omitempty" gorm:"size:64;index"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:json"`
	IsResolved  bool              `json:"is_resolved" gorm:"default:false;not null"`
	ResolvedBy  *string           `json:"resolved_by,omitempty" gorm:"size:64"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	Notes       *string           `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index"`
}
