package common

import (
	"embed"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/lgulliver/quarry/pkg/config"
	"github.com/lgulliver/quarry/pkg/migrate"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Migrations holds the catalog schema
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Database wraps the GORM database connection
type Database struct {
	*gorm.DB
}

// NewDatabase opens the catalog database selected by cfg.Driver
func NewDatabase(cfg *config.DatabaseConfig, verbose bool) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger: newGormLogger(verbose),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(cfg.Path)), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL()), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer; queue callers in the pool instead of
		// failing with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info().Str("driver", cfg.Driver).Msg("database connection established")
	return &Database{DB: db}, nil
}

// Migrate applies pending schema migrations
func (db *Database) Migrate() error {
	return migrate.NewMigrator(db.DB, Migrations, "migrations").Up()
}

// Rollback reverts the most recent schema migration
func (db *Database) Rollback() error {
	return migrate.NewMigrator(db.DB, Migrations, "migrations").Down()
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqliteDSN(path string) string {
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func newGormLogger(verbose bool) logger.Interface {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	return logger.New(stdlog.New(log.Logger, "", 0), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}
