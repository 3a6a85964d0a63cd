package database

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shiftoffer_backend/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options - параметры подключения
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
	Debug        bool
}

// sqlite поддерживает частичные индексы, mysql - нет
var sqlitePartialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_shift_per_shift ON open_shift_requests (shift_id) WHERE status = 'open'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_queue_accepted_per_shift ON queue_entries (open_shift_id) WHERE response_status = 'accepted'`,
}

// Open открывает gorm по выбранному драйверу
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	case "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	level := gormlogger.Warn
	if opts.Debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLife)
	}
	if opts.Driver == "sqlite" {
		// sqlite не переносит параллельных писателей
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate применяет схему: для postgres - SQL-миграции из migrations/,
// для остальных драйверов - AutoMigrate моделей.
func Migrate(db *gorm.DB, driver string, log *zap.Logger) error {
	if driver != "postgres" {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		if driver == "sqlite" {
			for _, stmt := range sqlitePartialIndexes {
				if err := db.Exec(stmt).Error; err != nil {
					return fmt.Errorf("partial index: %w", err)
				}
			}
		}
		log.Info("AutoMigrate completed", zap.String("driver", driver))
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	target, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migrations target: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
