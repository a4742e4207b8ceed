package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/toolshare/admin_api/model"
	"gorm.io/gorm"
)

// SecurityLogFilter narrows a security log listing. Zero values match all.
type SecurityLogFilter struct {
	EventType string
	Severity  string
	IPAddress string
	UserID    string
	Resolved  *bool
	Page      int
	Limit     int
}

// SecurityLogRepository is append-only except for the resolution columns.
type SecurityLogRepository struct {
	BaseRepository
}

func NewSecurityLogRepository(db *gorm.DB) *SecurityLogRepository {
	return &SecurityLogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (r *SecurityLogRepository) Save(ctx context.Context, entry *model.SecurityLog) error {
	if entry.ID == "" {
		id, _ := uuid.NewV7()
		entry.ID = id.String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.conn(ctx).Create(entry).Error
}

func (r *SecurityLogRepository) FindByID(ctx context.Context, id string) (*model.SecurityLog, error) {
	var entry model.SecurityLog
	err := r.conn(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Resolve sets the resolution fields of an unresolved entry. It returns false
// if the entry is missing or was already resolved.
func (r *SecurityLogRepository) Resolve(ctx context.Context, id, resolvedBy string, notes *string, now time.Time) (bool, error) {
	result := r.conn(ctx).Model(&model.SecurityLog{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]interface{}{
			"is_resolved": true,
			"resolved_by": resolvedBy,
			"resolved_at": now,
			"notes":       notes,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *SecurityLogRepository) List(ctx context.Context, filter SecurityLogFilter) ([]model.SecurityLog, int64, error) {
	page, limit := normalizePage(filter.Page, filter.Limit)

	query := r.conn(ctx).Model(&model.SecurityLog{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.IPAddress != "" {
		query = query.Where("ip_address = ?", filter.IPAddress)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Resolved != nil {
		query = query.Where("is_resolved = ?", *filter.Resolved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.SecurityLog
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r *SecurityLogRepository) CountByEventType(ctx context.Context, eventType model.SecurityEventType) (int64, error) {
	var count int64
	err := r.conn(ctx).Model(&model.SecurityLog{}).Where("event_type = ?", eventType).Count(&count).Error
	return count, err
}
