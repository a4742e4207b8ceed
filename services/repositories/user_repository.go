package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/shared"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserRepository handles user-related database operations
type UserRepository struct {
	BaseRepository
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// FindActiveByID returns shared.ErrUserNotFound for missing and inactive users.
func (ds *UserRepository) FindActiveByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	err := ds.conn(ctx).Where("id = ? AND is_active = ?", userID, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (ds *UserRepository) GetUserByEmailOrUsername(ctx context.Context, emailOrUsername string) (*model.User, error) {
	var user model.User
	if err := ds.conn(ctx).Where("email = ? OR username = ?", emailOrUsername, emailOrUsername).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAdmin stores a super admin with a bcrypt hashed password.
func (ds *UserRepository) CreateAdmin(ctx context.Context, email, username, password string) (*model.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, err
	}

	id, _ := uuid.NewV7()
	now := time.Now().UTC()
	admin := &model.User{
		ID:       id.String(),
		Email:    email,
		Username: username,
		Password: string(hashedPassword),
		Role:     model.RoleSuperAdmin,
		Permissions: []string{
			model.PermissionSecurityRead,
			model.PermissionSecurityWrite,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := ds.conn(ctx).Create(admin).Error; err != nil {
		log.WithError(err).WithField("username", username).Error("Failed to create admin user")
		return nil, err
	}
	return admin, nil
}

func (ds *UserRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := ds.conn(ctx).Model(&model.User{}).
		Where("role IN ?", []string{model.RoleAdmin, model.RoleSuperAdmin}).
		Count(&count).Error
	return count, err
}
