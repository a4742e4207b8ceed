package model

import "time"

type BlockReason string

const (
	BlockReasonSuspiciousActivity   BlockReason = "suspicious_activity"
	BlockReasonMultipleFailedLogins BlockReason = "multiple_failed_logins"
	BlockReasonSpam                 BlockReason = "spam"
	BlockReasonAbuse                BlockReason = "abuse"
	BlockReasonManualBlock          BlockReason = "manual_block"
	BlockReasonAutomatedBlock       BlockReason = "automated_block"
)

func (r BlockReason) Valid() bool {
	switch r {
	case BlockReasonSuspiciousActivity, BlockReasonMultipleFailedLogins, BlockReasonSpam,
		BlockReasonAbuse, BlockReasonManualBlock, BlockReasonAutomatedBlock:
		return true
	}
	return false
}

// BlockedIP is the durable block list entry. IPAddress is unique: a single row
// per address is reactivated on re-block, and the unique index arbitrates
// concurrent creators.
type BlockedIP struct {
	ID            string      `json:"id" gorm:"primaryKey;type:text;not null"`
	IPAddress     string      `json:"ip_address" gorm:"uniqueIndex;size:45;not null"`
	Reason        BlockReason `json:"reason" gorm:"size:32;not null"`
	Description   string      `json:"description" gorm:"type:text"`
	BlockedBy     *string     `json:"blocked_by,omitempty" gorm:"size:64"`
	IsActive      bool        `json:"is_active" gorm:"default:true;not null;index"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty" gorm:"index"`
	AttemptCount  int         `json:"attempt_count" gorm:"default:0;not null"`
	LastAttemptAt *time.Time  `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time   `json:"updated_at" gorm:"not null"`
}

// IsExpired reports whether a block with an expiry has passed it. Permanent
// blocks never expire.
func (b *BlockedIP) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// IsEffective reports whether the block currently denies traffic.
func (b *BlockedIP) IsEffective(now time.Time) bool {
	return b.IsActive && !b.IsExpired(now)
}

// AllModels lists the entities migrated at startup.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&SecurityLog{},
		&BlockedIP{},
	}
}
