package dto

import (
	"time"

	"github.com/toolshare/admin_api/model"
)

type BlockIPRequest struct {
	IPAddress       string     `json:"ip_address" validate:"required,ip"`
	Reason          string     `json:"reason" validate:"required,block_reason"`
	Description     string     `json:"description" validate:"max=1000"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" validate:"omitempty,excluded_with=DurationMinutes"`
	DurationMinutes int        `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=525600"`
}

func (r BlockIPRequest) Validate() error {
	return GetValidator().Struct(r)
}

// Expiry resolves the requested expiry relative to now. Nil means permanent.
func (r BlockIPRequest) Expiry(now time.Time) *time.Time {
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC()
		return &t
	}
	if r.DurationMinutes > 0 {
		t := now.Add(time.Duration(r.DurationMinutes) * time.Minute)
		return &t
	}
	return nil
}

type BlockedIPListQuery struct {
	Active *bool `query:"active"`
	Page   int   `query:"page" validate:"min=1"`
	Limit  int   `query:"limit" validate:"min=1,max=100"`
}

func (q BlockedIPListQuery) Validate() error {
	return GetValidator().Struct(q)
}

type BlockedIPListResponse struct {
	Records []model.BlockedIP `json:"records"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
}

type BlockStatusResponse struct {
	IPAddress string           `json:"ip_address"`
	Blocked   bool             `json:"blocked"`
	Record    *model.BlockedIP `json:"record,omitempty"`
}

type SecurityLogQuery struct {
	EventType string `query:"event_type" validate:"omitempty,max=64"`
	Severity  string `query:"severity" validate:"omitempty,severity"`
	IPAddress string `query:"ip_address" validate:"omitempty,ip"`
	UserID    string `query:"user_id" validate:"omitempty,max=64"`
	Resolved  *bool  `query:"resolved"`
	Page      int    `query:"page" validate:"min=1"`
	Limit     int    `query:"limit" validate:"min=1,max=100"`
}

func (q SecurityLogQuery) Validate() error {
	return GetValidator().Struct(q)
}

type SecurityLogListResponse struct {
	Logs  []model.SecurityLog `json:"logs"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

type ResolveSecurityLogRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (r ResolveSecurityLogRequest) Validate() error {
	return GetValidator().Struct(r)
}

type SeedAdminRequest struct {
	Email    string `validate:"required,email"`
	Username string `validate:"required,min=3,max=30,alphanum"`
	Password string `validate:"required,strong_password"`
}

func (r SeedAdminRequest) Validate() error {
	return GetValidator().Struct(r)
}
