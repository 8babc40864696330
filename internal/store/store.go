// Package store is the gorm-backed persistence layer. Every method takes a
// context and maps driver errors onto apperr codes.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/config"
	"calplan/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository is the full set of persistence operations. Store implements
// it; WithTx hands the callback a Repository bound to the transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(Repository) error) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindAccount(ctx context.Context, userID uuid.UUID, provider, providerAccountID string) (*models.Account, error)
	ListAccountsForUser(ctx context.Context, userID uuid.UUID, provider string) ([]models.Account, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	SaveAccount(ctx context.Context, a *models.Account) error
	UpdateAccountTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt time.Time) error
	DeleteAccountsForUser(ctx context.Context, userID uuid.UUID, provider string) (int64, error)

	GetCalendar(ctx context.Context, id uuid.UUID) (*models.CalendarSource, error)
	GetCalendarForUser(ctx context.Context, userID, id uuid.UUID) (*models.CalendarSource, error)
	FindCalendar(ctx context.Context, accountID uuid.UUID, externalID string) (*models.CalendarSource, error)
	ListCalendarsForUser(ctx context.Context, userID uuid.UUID) ([]models.CalendarSource, error)
	CreateCalendar(ctx context.Context, c *models.CalendarSource) error
	SaveCalendar(ctx context.Context, c *models.CalendarSource) error

	GetEventForUser(ctx context.Context, userID, id uuid.UUID) (*models.CachedEvent, error)
	FindEventByExternalID(ctx context.Context, calendarID uuid.UUID, externalID string) (*models.CachedEvent, error)
	ListEvents(ctx context.Context, f EventFilter) ([]models.CachedEvent, error)
	CreateEvent(ctx context.Context, e *models.CachedEvent) error
	SaveEvent(ctx context.Context, e *models.CachedEvent) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error

	CreateTaskBatch(ctx context.Context, b *models.TaskBatch) error
	GetTaskBatch(ctx context.Context, userID, id uuid.UUID) (*models.TaskBatch, error)
	ListTaskBatches(ctx context.Context, userID uuid.UUID, limit int) ([]models.TaskBatch, error)
}

// Store implements Repository on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New wraps an already opened database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Open connects to postgres when a URL or the postgres driver is
// configured and falls back to a sqlite file otherwise.
func Open(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	driver := strings.ToLower(cfg.DatabaseDriver)
	if driver == "" && cfg.DatabaseURL != "" {
		driver = "postgres"
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres", "pgx":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for postgres")
		}
		dialector = postgres.Open(cfg.DatabaseURL)
	default:
		driver = "sqlite"
		dialector = sqlite.Open(SQLiteDSN(cfg.SQLitePath))
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	log.Info("Database opened", "driver", driver)
	return db, nil
}

// sqliteOptions make a writer take the database lock when its transaction
// begins and wait up to five seconds for it, so concurrent units of work
// queue instead of failing with SQLITE_BUSY. Foreign keys are enforced.
const sqliteOptions = "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"

// SQLiteDSN returns the connection string for the sqlite file at path.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqliteOptions
	}
	return path + "?" + sqliteOptions
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.CalendarSource{},
		&models.CachedEvent{},
		&models.TaskBatch{},
		&models.TaskItem{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. Calling it again on the Repository
// passed to fn opens a savepoint, so an inner failure rolls back only the
// inner work.
func (s *Store) WithTx(ctx context.Context, fn func(Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func dbError(err error, kind string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(err, apperr.ErrConflict, kind+" already exists")
	default:
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
}
