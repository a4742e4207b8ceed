package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser       = "user"
	RoleModerator  = "moderator"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Permissions granted to admin accounts.
const (
	PermissionSecurityRead  = "security:read"
	PermissionSecurityWrite = "security:write"
	PermissionToolsWrite    = "tools:write"
	PermissionBookingsWrite = "bookings:write"
	PermissionSettingsWrite = "settings:write"
)

type User struct {
	ID          string                      `json:"id" gorm:"primaryKey;type:text;not null"`
	Email       string                      `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Username    string                      `json:"username" gorm:"uniqueIndex;size:100;not null"`
	Password    string                      `json:"-" gorm:"not null"`
	Role        string                      `json:"role" gorm:"size:20;default:user;not null"`
	Permissions datatypes.JSONSlice[string] `json:"permissions" gorm:"type:json"`
	IsActive    bool                        `json:"is_active" gorm:"default:true;not null"`
	LastLoginAt *time.Time                  `json:"last_login_at,omitempty"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time                   `json:"updated_at" gorm:"not null"`
}

// IsAdmin reports whether the account carries admin privilege.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}

// HasPermissions reports whether every required permission is granted.
// Super admins hold all permissions implicitly.
func (u *User) HasPermissions(required ...string) bool {
	if u.Role == RoleSuperAdmin {
		return true
	}
	granted := make(map[string]struct{}, len(u.Permissions))
	for _, p := range u.Permissions {
		granted[p] = struct{}{}
	}
	for _, p := range required {
		if _, ok := granted[p]; !ok {
			return false
		}
	}
	return true
}
