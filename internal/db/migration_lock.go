package db

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "land-registry-migration"

// MigrationLocker serializes schema migrations between processes sharing a
// database.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock.
	// It blocks until the lock is acquired, then releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker appropriate for the database
// dialect. PostgreSQL uses a session advisory lock; other databases use a
// lock table, which is created immediately.
func NewMigrationLocker(gormDB *gorm.DB) MigrationLocker {
	if gormDB == nil {
		return noopMigrationLock{}
	}
	if gormDB.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{
			db:     gormDB,
			lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName))),
		}
	}
	_ = gormDB.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{
		db:            gormDB,
		maxRetries:    30,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
	}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock holds pg_advisory_lock on one pinned connection, since
// advisory locks belong to a session.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
			return fmt.Errorf("failed to acquire migration advisory lock: %w", err)
		}
		defer func() {
			_ = conn.Session(&gorm.Session{Context: context.Background()}).
				Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
		}()
		return fn()
	})
}

// migrationLockRecord is the lock row for databases without advisory locks.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id;size:64"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by;size:255"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock acquires the lock by inserting a row with a fixed
// primary key. Rows older than staleAfter are treated as left by a crashed
// holder and removed.
type tableMigrationLock struct {
	db            *gorm.DB
	maxRetries    int
	retryInterval time.Duration
	staleAfter    time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	row := migrationLockRecord{ID: migrationLockName, LockedBy: hostname}

	for attempt := 1; ; attempt++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&migrationLockRecord{})

		row.LockedAt = time.Now()
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if attempt >= l.maxRetries {
			return fmt.Errorf("failed to acquire migration lock after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	defer l.db.Where("id = ?", migrationLockName).Delete(&migrationLockRecord{})
	return fn()
}
