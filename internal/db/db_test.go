package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dlrs-ng/land-registry/pkg/store"
)

func openSQLite(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	gormDB, err := Connect(Config{Type: TypeSQLite, DSN: dsn}, logger.Silent)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gormDB
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"sqlite", TypeSQLite, false},
		{" Postgres ", TypePostgres, false},
		{"postgresql", TypePostgres, false},
		{"MYSQL", TypeMySQL, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Type: TypePostgres}.Validate())
	assert.Error(t, Config{Type: "mongo", DSN: "x"}.Validate())
}

func TestConnectRejectsMissingDSN(t *testing.T) {
	_, err := Connect(Config{Type: TypePostgres}, logger.Silent)
	assert.Error(t, err)
}

func TestConnectSQLiteUsesSingleConnection(t *testing.T) {
	gormDB := openSQLite(t, ":memory:")
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestConnMaxLifetime(t *testing.T) {
	assert.Zero(t, connMaxLifetime(TypeSQLite))
	assert.Equal(t, 30*time.Minute, connMaxLifetime(TypePostgres))
	assert.Equal(t, 30*time.Minute, connMaxLifetime(TypeMySQL))
}

func TestConnectSQLiteMemoryKeepsItsConnection(t *testing.T) {
	gormDB := openSQLite(t, ":memory:")
	require.NoError(t, Migrate(context.Background(), gormDB, false, nil))
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, sqlDB.Ping())
		assert.True(t, gormDB.Migrator().HasTable(&store.ParcelRow{}))
	}
	stats := sqlDB.Stats()
	assert.Equal(t, 1, stats.OpenConnections)
	assert.Zero(t, stats.MaxLifetimeClosed)
	assert.Zero(t, stats.MaxIdleClosed)
}

func TestMigrateCreatesTables(t *testing.T) {
	gormDB := openSQLite(t, filepath.Join(t.TempDir(), "registry.db"))

	require.NoError(t, Migrate(context.Background(), gormDB, true, nil))
	// Running again is a no-op.
	require.NoError(t, Migrate(context.Background(), gormDB, true, nil))

	m := gormDB.Migrator()
	assert.True(t, m.HasTable(&store.ParcelRow{}))
	assert.True(t, m.HasTable(&store.AuditEventRow{}))
	assert.True(t, m.HasTable(&migrationLockRecord{}))

	var held int64
	require.NoError(t, gormDB.Model(&migrationLockRecord{}).Count(&held).Error)
	assert.Zero(t, held, "lock must be released")
}

func TestMigrationLocker_NilDB(t *testing.T) {
	called := false
	err := NewMigrationLocker(nil).WithLock(context.Background(), func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestTableMigrationLock_ReleasesOnError(t *testing.T) {
	gormDB := openSQLite(t, ":memory:")
	locker := NewMigrationLocker(gormDB)

	errMigrate := errors.New("migration failed")
	err := locker.WithLock(context.Background(), func() error { return errMigrate })
	assert.ErrorIs(t, err, errMigrate)

	var held int64
	require.NoError(t, gormDB.Model(&migrationLockRecord{}).Count(&held).Error)
	assert.Zero(t, held)
}

func TestTableMigrationLock_WaitsForHolder(t *testing.T) {
	gormDB := openSQLite(t, ":memory:")
	require.NoError(t, gormDB.AutoMigrate(&migrationLockRecord{}))
	require.NoError(t, gormDB.Create(&migrationLockRecord{
		ID:       migrationLockName,
		LockedAt: time.Now(),
		LockedBy: "other-replica",
	}).Error)

	lock := &tableMigrationLock{db: gormDB, maxRetries: 3, retryInterval: 10 * time.Millisecond, staleAfter: time.Hour}
	called := false
	err := lock.WithLock(context.Background(), func() error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestTableMigrationLock_ClearsStaleLock(t *testing.T) {
	gormDB := openSQLite(t, ":memory:")
	require.NoError(t, gormDB.AutoMigrate(&migrationLockRecord{}))
	require.NoError(t, gormDB.Create(&migrationLockRecord{
		ID:       migrationLockName,
		LockedAt: time.Now().Add(-time.Hour),
		LockedBy: "crashed-replica",
	}).Error)

	lock := &tableMigrationLock{db: gormDB, maxRetries: 1, retryInterval: time.Millisecond, staleAfter: time.Minute}
	called := false
	require.NoError(t, lock.WithLock(context.Background(), func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestTableMigrationLock_HonoursContext(t *testing.T) {
	gormDB := openSQLite(t, ":memory:")
	require.NoError(t, gormDB.AutoMigrate(&migrationLockRecord{}))
	require.NoError(t, gormDB.Create(&migrationLockRecord{
		ID:       migrationLockName,
		LockedAt: time.Now(),
	}).Error)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	lock := &tableMigrationLock{db: gormDB, maxRetries: 1000, retryInterval: 5 * time.Millisecond, staleAfter: time.Hour}
	err := lock.WithLock(ctx, func() error { return nil })
	assert.Error(t, err)
}
