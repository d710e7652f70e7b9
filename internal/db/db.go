// Package db opens the SQL database behind the parcel store and applies its
// schema.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dlrs-ng/land-registry/pkg/store"
)

// Type names a supported database dialect.
type Type string

const (
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"
	TypeMySQL    Type = "mysql"
)

// DefaultSQLiteDSN is the embedded database file used when no DSN is set.
const DefaultSQLiteDSN = "land-registry.db"

// Config holds database connection settings.
type Config struct {
	Type Type   `yaml:"type"`
	DSN  string `yaml:"dsn"`

	// MaxOpenConns bounds the connection pool. SQLite always uses one.
	MaxOpenConns int `yaml:"maxOpenConns"`

	// MigrationLock serializes schema migration across processes sharing
	// the database.
	MigrationLock bool `yaml:"migrationLock"`
}

// DefaultConfig returns an embedded SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Type:          TypeSQLite,
		DSN:           DefaultSQLiteDSN,
		MaxOpenConns:  10,
		MigrationLock: true,
	}
}

// ParseType parses a database type name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeSQLite, TypePostgres, TypeMySQL:
		return t, nil
	case "postgresql":
		return TypePostgres, nil
	default:
		return "", fmt.Errorf("unknown database type %q (expected sqlite, postgres or mysql)", s)
	}
}

// Validate checks the dialect and DSN.
func (c Config) Validate() error {
	if _, err := ParseType(string(c.Type)); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required for %s", c.Type)
	}
	return nil
}

// Connect opens a GORM connection for cfg.
func Connect(cfg Config, logLevel logger.LogLevel) (*gorm.DB, error) {
	t, err := ParseType(string(cfg.Type))
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required for %s", t)
	}

	var dialector gorm.Dialector
	switch t {
	case TypeSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case TypePostgres:
		dialector = postgres.Open(cfg.DSN)
	case TypeMySQL:
		dialector = mysql.Open(cfg.DSN)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", t, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	switch {
	case t == TypeSQLite:
		// One connection keeps ":memory:" databases shared and SQLite writes serialized.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(connMaxLifetime(t))
	return gormDB, nil
}

// connMaxLifetime is zero for SQLite: recycling the only connection of a
// ":memory:" database discards the database.
func connMaxLifetime(t Type) time.Duration {
	if t == TypeSQLite {
		return 0
	}
	return 30 * time.Minute
}

// Migrate creates or updates the parcel and audit tables. With locking
// enabled the migration runs under the database migration lock.
func Migrate(ctx context.Context, gormDB *gorm.DB, useLock bool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	migrate := func() error {
		if err := store.NewGormStore(gormDB).AutoMigrate(); err != nil {
			return err
		}
		return store.NewAuditStore(gormDB).AutoMigrate()
	}
	if !useLock {
		return migrate()
	}

	start := time.Now()
	if err := NewMigrationLocker(gormDB).WithLock(ctx, migrate); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database schema up to date",
		"dialect", gormDB.Dialector.Name(),
		"duration", time.Since(start))
	return nil
}
