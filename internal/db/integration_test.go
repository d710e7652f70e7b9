//go:build integration

package db

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/dlrs-ng/land-registry/internal/testutil/containers"
	"github.com/dlrs-ng/land-registry/pkg/store"
)

func TestMigrateConcurrently(t *testing.T) {
	dialects := map[Type]func(t *testing.T) string{
		TypePostgres: containers.NewPostgres,
		TypeMySQL:    containers.NewMySQL,
	}
	for dbType, start := range dialects {
		t.Run(string(dbType), func(t *testing.T) {
			dsn := start(t)
			ctx := context.Background()

			const replicas = 3
			var wg sync.WaitGroup
			var failures atomic.Int32
			for i := 0; i < replicas; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					gormDB, err := Connect(Config{Type: dbType, DSN: dsn, MaxOpenConns: 2}, logger.Silent)
					if err != nil {
						failures.Add(1)
						return
					}
					if err := Migrate(ctx, gormDB, true, nil); err != nil {
						failures.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Zero(t, failures.Load())

			gormDB, err := Connect(Config{Type: dbType, DSN: dsn}, logger.Silent)
			require.NoError(t, err)
			assert.True(t, gormDB.Migrator().HasTable(&store.ParcelRow{}))
			assert.True(t, gormDB.Migrator().HasTable(&store.AuditEventRow{}))
		})
	}
}
