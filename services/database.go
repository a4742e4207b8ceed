package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/services/repositories"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

type DatabaseService struct {
	appContext.DefaultService
	db *gorm.DB

	driver   string
	database string

	maintenanceInterval time.Duration
	closed              chan struct{}
}

const DATABASE_SVC = "database_svc"

func (ds *DatabaseService) Id() string {
	return DATABASE_SVC
}

func (ds DatabaseService) Db() *gorm.DB {
	return ds.db
}

func (ds *DatabaseService) Configure(ctx *appContext.Context) error {
	ds.driver = strings.ToLower(os.Getenv("DB_DRIVER"))
	if ds.driver == "" {
		ds.driver = DriverPostgres
	}

	switch ds.driver {
	case DriverSqlite:
		ds.database = os.Getenv("DB_DATABASE")
		if ds.database == "" {
			ds.database = "admin_api.db"
		}
	case DriverPostgres:
		ds.database = PostgresDSNFromEnv()
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", ds.driver)
	}

	ds.maintenanceInterval = time.Hour
	return ds.DefaultService.Configure(ctx)
}

// PostgresDSNFromEnv builds a DSN from DATABASE_URL or the discrete DB_* variables.
func PostgresDSNFromEnv() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		password = "postgres"
	}
	dbname := os.Getenv("DB_NAME")
	if dbname == "" {
		dbname = "admin_api"
	}
	sslmode := os.Getenv("DB_SSLMODE")
	if sslmode == "" {
		sslmode = "disable"
	}
	timezone := os.Getenv("DB_TIMEZONE")
	if timezone == "" {
		timezone = "UTC"
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		host, user, password, dbname, port, sslmode, timezone)
}

// OpenDatabase connects with exponential backoff and migrates the schema.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	maxRetries := 10
	retryDelay := time.Second

	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to database (attempt %d/%d)...", attempt, maxRetries)

		db, err = gorm.Open(dialector, &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Error),
			TranslateError: true,
		})
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				pingErr := sqlDB.Ping()
				if pingErr == nil {
					log.Println("Successfully connected to database")
					break
				}
				err = pingErr
			} else {
				err = dbErr
			}
		}

		if attempt == maxRetries {
			log.Printf("Failed to connect to database after %d attempts: %v", maxRetries, err)
			return nil, err
		}

		log.Printf("Database connection failed: %v. Retrying in %v...", err, retryDelay)
		time.Sleep(retryDelay)

		retryDelay *= 2
		if retryDelay > 10*time.Second {
			retryDelay = 10 * time.Second
		}
	}

	if driver == DriverSqlite {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return nil, err
	}

	return db, nil
}

func (ds *DatabaseService) Start() (err error) {
	ds.db, err = OpenDatabase(ds.driver, ds.database)
	if err != nil {
		return err
	}

	if err := ds.seedInitialData(); err != nil {
		log.Printf("Failed to seed initial data: %v", err)
		return err
	}

	ds.closed = make(chan struct{})
	go ds.maintenanceLoop()

	log.WithField("driver", ds.driver).Info("Database connected and migrated successfully")
	return nil
}

func (ds *DatabaseService) Shutdown() {
	if ds.closed != nil {
		close(ds.closed)
	}
	if ds.db == nil {
		return
	}
	sqlDB, err := ds.db.DB()
	if err == nil {
		sqlDB.Close()
	}
}

func (ds *DatabaseService) maintenanceLoop() {
	ticker := time.NewTicker(ds.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ds.CleanupExpiredData(); err != nil {
				log.Printf("Failed to cleanup expired data: %v", err)
			}
		case <-ds.closed:
			return
		}
	}
}

// CleanupExpiredData bulk-deactivates expired blocks. Reads still apply lazy
// expiry on their own; this only keeps the table tidy.
func (ds *DatabaseService) CleanupExpiredData() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := repositories.NewBlockedIPRepository(ds.db).DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		return ds.HandleError(err)
	}
	if n > 0 {
		log.WithField("count", n).Info("Deactivated expired IP blocks")
	}
	return nil
}

func (ds *DatabaseService) seedInitialData() error {
	email := os.Getenv("ADMIN_BOOTSTRAP_EMAIL")
	password := os.Getenv("ADMIN_BOOTSTRAP_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	ctx := context.Background()
	users := repositories.NewUserRepository(ds.db)
	count, err := users.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username, _, _ := strings.Cut(email, "@")
	if _, err := users.CreateAdmin(ctx, email, username, password); err != nil {
		return err
	}
	log.WithField("email", email).Warn("Bootstrap admin user created; rotate its password")
	return nil
}

func (ds *DatabaseService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case repositories.IsUniqueViolation(err):
		statusCode = http.StatusConflict
		errorType = "UNIQUE_CONSTRAINT"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	case strings.Contains(err.Error(), "connection refused"):
		statusCode = http.StatusServiceUnavailable
		errorType = "DATABASE_CONNECTION_ERROR"
	default:
		statusCode = http.StatusInternalServerError
		errorType = "INTERNAL_ERROR"
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}
