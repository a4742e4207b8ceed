package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/toolshare/admin_api/model"
	"gorm.io/gorm"
)

// BlockedIPRepository persists the durable block list.
type BlockedIPRepository struct {
	BaseRepository
}

func NewBlockedIPRepository(db *gorm.DB) *BlockedIPRepository {
	return &BlockedIPRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// FindActiveByIP returns the active record for ip, or nil when there is none.
// Expiry is not evaluated here.
func (r *BlockedIPRepository) FindActiveByIP(ctx context.Context, ip string) (*model.BlockedIP, error) {
	var record model.BlockedIP
	err := r.conn(ctx).Where("ip_address = ? AND is_active = ?", ip, true).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindByIP returns the record for ip regardless of state, or nil.
func (r *BlockedIPRepository) FindByIP(ctx context.Context, ip string) (*model.BlockedIP, error) {
	var record model.BlockedIP
	err := r.conn(ctx).Where("ip_address = ?", ip).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Create inserts a new record. A concurrent creator for the same address
// surfaces as a unique violation (see IsUniqueViolation).
func (r *BlockedIPRepository) Create(ctx context.Context, record *model.BlockedIP) error {
	if record.ID == "" {
		id, _ := uuid.NewV7()
		record.ID = id.String()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	return r.conn(ctx).Create(record).Error
}

// Reactivate turns an inactive or expired row back into an active block.
// It returns false when the row is already effectively active, i.e. another
// caller won the race.
func (r *BlockedIPRepository) Reactivate(ctx context.Context, record *model.BlockedIP, now time.Time) (bool, error) {
	result := r.conn(ctx).Model(&model.BlockedIP{}).
		Where("id = ? AND (is_active = ? OR (expires_at IS NOT NULL AND expires_at <= ?))", record.ID, false, now).
		Updates(map[string]interface{}{
			"is_active":       true,
			"reason":          record.Reason,
			"description":     record.Description,
			"blocked_by":      record.BlockedBy,
			"expires_at":      record.ExpiresAt,
			"attempt_count":   0,
			"last_attempt_at": nil,
			"updated_at":      now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Deactivate marks an active row inactive. Returns false if it was already
// inactive, which keeps repeated lazy-expiry calls free of side effects.
func (r *BlockedIPRepository) Deactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.conn(ctx).Model(&model.BlockedIP{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordAttempt bumps the attempt counter atomically, only while active.
func (r *BlockedIPRepository) RecordAttempt(ctx context.Context, id string, now time.Time) error {
	return r.conn(ctx).Model(&model.BlockedIP{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"attempt_count":   gorm.Expr("attempt_count + ?", 1),
			"last_attempt_at": now,
			"updated_at":      now,
		}).Error
}

// DeactivateExpired bulk-expires rows whose expiry has passed.
func (r *BlockedIPRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.conn(ctx).Model(&model.BlockedIP{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *BlockedIPRepository) List(ctx context.Context, active *bool, page, limit int) ([]model.BlockedIP, int64, error) {
	page, limit = normalizePage(page, limit)

	query := r.conn(ctx).Model(&model.BlockedIP{})
	if active != nil {
		query = query.Where("is_active = ?", *active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []model.BlockedIP
	err := query.Order("updated_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
