package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/toolshare/admin_api/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// OpenDB returns a migrated in-memory SQLite database private to the test.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Clock is a manually advanced time source.
type Clock struct {
	now atomic.Int64
}

func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.now.Store(start.UnixNano())
	return c
}

func (c *Clock) Now() time.Time {
	return time.Unix(0, c.now.Load()).UTC()
}

func (c *Clock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

// CreateUser inserts a user with the given role and permissions.
func CreateUser(t *testing.T, db *gorm.DB, role string, active bool, permissions ...string) *model.User {
	t.Helper()

	now := time.Now().UTC()
	id := uuid.NewString()
	user := &model.User{
		ID:          id,
		Email:       id + "@example.com",
		Username:    "user" + strings.ReplaceAll(id, "-", "")[:12],
		Password:    "x",
		Role:        role,
		Permissions: permissions,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !active {
		// default:true on the column swallows a false on insert
		if err := db.Model(user).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate user: %v", err)
		}
		user.IsActive = false
	}
	return user
}
