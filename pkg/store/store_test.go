package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// recordStore is the surface shared by GormStore and FileStore.
type recordStore interface {
	Create(ctx context.Context, rec parcel.Record) (*parcel.Record, error)
	Get(ctx context.Context, id parcel.ID) (*parcel.Record, error)
	FindByLandID(ctx context.Context, landID string) (*parcel.Record, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*parcel.Record, error)
	List(ctx context.Context, filter parcel.Filter) ([]parcel.Record, error)
	Update(ctx context.Context, id parcel.ID, patch parcel.Patch) (*parcel.Record, error)
	Delete(ctx context.Context, id parcel.ID, check func(parcel.Record) error) (bool, error)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	s := NewGormStore(newTestDB(t))
	require.NoError(t, s.AutoMigrate())
	return s
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data", "parcels.json"))
	require.NoError(t, err)
	return s
}

func storeImplementations() map[string]func(t *testing.T) recordStore {
	return map[string]func(t *testing.T) recordStore{
		"gorm": func(t *testing.T) recordStore { return newTestGormStore(t) },
		"file": func(t *testing.T) recordStore { return newTestFileStore(t) },
	}
}

func strPtr(s string) *string { return &s }

var baseTime = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func newRecord(landID string, created time.Time) parcel.Record {
	return parcel.Record{
		LandID:          landID,
		OwnerName:       "Ada Obi",
		NIN:             "12345678901",
		Phone:           "08030000000",
		LandDescription: "Plot 4, Minna",
		Geometry: parcel.NewPolygonGeometry([]parcel.ProjectedPoint{
			{Easting: 231000.5, Northing: 1050000},
			{Easting: 231100, Northing: 1050000},
			{Easting: 231100, Northing: 1050100},
			{Easting: 231000.5, Northing: 1050100},
		}),
		SurveyorName:    strPtr("Bola Ade"),
		SurveyorLicense: strPtr("SURCON/1"),
		Documents: parcel.Documents{
			HasSurveyPlan:    true,
			SurveyPlanNumber: strPtr("MN/123"),
		},
		Status:    parcel.StatusPending,
		Signature: "sig-" + landID,
		CreatedAt: created,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			created, err := s.Create(ctx, newRecord("NG-LAND-A-0001", baseTime))
			require.NoError(t, err)
			assert.Equal(t, parcel.ID(1), created.ID)

			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "NG-LAND-A-0001", got.LandID)
			assert.Equal(t, "Ada Obi", got.OwnerName)
			assert.Equal(t, parcel.StatusPending, got.Status)
			assert.True(t, baseTime.Equal(got.CreatedAt))
			assert.Equal(t, parcel.GeometryPolygon, got.Geometry.Kind)
			assert.Len(t, got.Geometry.Polygon, 4)
			assert.Equal(t, 231000.5, got.Geometry.Polygon[0].Easting)
			assert.Equal(t, "MN/123", *got.Documents.SurveyPlanNumber)
			assert.Nil(t, got.Fingerprint)
			assert.Nil(t, got.VerifiedAt)

			byLand, err := s.FindByLandID(ctx, "NG-LAND-A-0001")
			require.NoError(t, err)
			require.NotNil(t, byLand)
			assert.Equal(t, created.ID, byLand.ID)
		})
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			got, err := s.Get(ctx, 42)
			require.NoError(t, err)
			assert.Nil(t, got)

			got, err = s.FindByLandID(ctx, "NG-LAND-NOPE-0000")
			require.NoError(t, err)
			assert.Nil(t, got)

			got, err = s.FindByFingerprint(ctx, "deadbeef")
			require.NoError(t, err)
			assert.Nil(t, got)

			updated, err := s.Update(ctx, 42, parcel.Patch{OwnerName: strPtr("x")})
			require.NoError(t, err)
			assert.Nil(t, updated)

			deleted, err := s.Delete(ctx, 42, nil)
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestStore_DuplicateLandIDConflicts(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			_, err := s.Create(ctx, newRecord("NG-LAND-A-0001", baseTime))
			require.NoError(t, err)
			_, err = s.Create(ctx, newRecord("NG-LAND-A-0001", baseTime))
			assert.ErrorIs(t, err, parcel.ErrConflict)
		})
	}
}

func TestStore_IDsAreNeverReused(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			first, err := s.Create(ctx, newRecord("NG-LAND-A-0001", baseTime))
			require.NoError(t, err)
			second, err := s.Create(ctx, newRecord("NG-LAND-A-0002", baseTime))
			require.NoError(t, err)

			deleted, err := s.Delete(ctx, second.ID, nil)
			require.NoError(t, err)
			require.True(t, deleted)

			third, err := s.Create(ctx, newRecord("NG-LAND-A-0003", baseTime))
			require.NoError(t, err)
			assert.Equal(t, first.ID+2, third.ID)
		})
	}
}

func TestStore_ConcurrentCreatesGetContiguousIDs(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			const n = 20

			var wg sync.WaitGroup
			ids := make([]int, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					rec, err := s.Create(ctx, newRecord(fmt.Sprintf("NG-LAND-C-%04d", i), baseTime))
					errs[i] = err
					if err == nil {
						ids[i] = int(rec.ID)
					}
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				require.NoError(t, err)
			}
			sort.Ints(ids)
			for i, id := range ids {
				assert.Equal(t, i+1, id)
			}
		})
	}
}

func TestStore_ListOrderingAndFilters(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			older := newRecord("NG-LAND-L-0001", baseTime)
			same1 := newRecord("NG-LAND-L-0002", baseTime.Add(time.Hour))
			same2 := newRecord("NG-LAND-L-0003", baseTime.Add(time.Hour))
			same2.SurveyorLicense = strPtr("SURCON/2")
			for _, r := range []parcel.Record{older, same1, same2} {
				_, err := s.Create(ctx, r)
				require.NoError(t, err)
			}

			all, err := s.List(ctx, parcel.Filter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "NG-LAND-L-0003", all[0].LandID)
			assert.Equal(t, "NG-LAND-L-0002", all[1].LandID)
			assert.Equal(t, "NG-LAND-L-0001", all[2].LandID)

			byLicense, err := s.List(ctx, parcel.Filter{SurveyorLicense: "SURCON/2"})
			require.NoError(t, err)
			require.Len(t, byLicense, 1)
			assert.Equal(t, "NG-LAND-L-0003", byLicense[0].LandID)

			verified, err := s.List(ctx, parcel.Filter{Status: parcel.StatusVerified})
			require.NoError(t, err)
			assert.Empty(t, verified)
			assert.NotNil(t, verified)
		})
	}
}

func TestStore_UpdateAppliesPatch(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			created, err := s.Create(ctx, newRecord("NG-LAND-U-0001", baseTime))
			require.NoError(t, err)

			status := parcel.StatusVerified
			at := baseTime.Add(24 * time.Hour)
			updated, err := s.Update(ctx, created.ID, parcel.Patch{
				Status:      &status,
				Fingerprint: strPtr("f00d"),
				VerifiedAt:  &at,
			})
			require.NoError(t, err)
			require.NotNil(t, updated)
			assert.Equal(t, parcel.StatusVerified, updated.Status)

			got, err := s.FindByFingerprint(ctx, "f00d")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, created.ID, got.ID)
			require.NotNil(t, got.VerifiedAt)
			assert.True(t, at.Equal(*got.VerifiedAt))
			assert.Equal(t, "Ada Obi", got.OwnerName)
		})
	}
}

func TestStore_PreconditionAbortsMutation(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			errStop := errors.New("stop")

			created, err := s.Create(ctx, newRecord("NG-LAND-P-0001", baseTime))
			require.NoError(t, err)

			_, err = s.Update(ctx, created.ID, parcel.Patch{
				OwnerName:    strPtr("Mallory"),
				Precondition: func(parcel.Record) error { return errStop },
			})
			assert.ErrorIs(t, err, errStop)

			deleted, err := s.Delete(ctx, created.ID, func(parcel.Record) error { return errStop })
			assert.ErrorIs(t, err, errStop)
			assert.False(t, deleted)

			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Ada Obi", got.OwnerName)
		})
	}
}

func TestStore_ReturnedRecordsAreCopies(t *testing.T) {
	for name, open := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			created, err := s.Create(ctx, newRecord("NG-LAND-R-0001", baseTime))
			require.NoError(t, err)
			created.Geometry.Polygon[0].Easting = 1
			*created.SurveyorName = "changed"

			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, 231000.5, got.Geometry.Polygon[0].Easting)
			assert.Equal(t, "Bola Ade", *got.SurveyorName)
		})
	}
}
