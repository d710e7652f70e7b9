package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

const parcelSequence = "parcels"

// GormStore persists parcel records in a single SQL table.
//
// Mutations are serialized by an in-process writer lock and each runs in one
// transaction, so a mutation always sees the result of the previous one.
// Reads go straight to the database and see the last committed state.
type GormStore struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the parcel tables.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&ParcelRow{}); err != nil {
		return fmt.Errorf("auto-migrate parcels: %w", err)
	}
	if err := s.db.AutoMigrate(&sequenceRow{}); err != nil {
		return fmt.Errorf("auto-migrate parcel_sequences: %w", err)
	}
	return nil
}

// Create assigns the next id and inserts rec. The land id must be unused.
func (s *GormStore) Create(ctx context.Context, rec parcel.Record) (*parcel.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflict error
	var created parcel.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&ParcelRow{}).Where("land_id = ?", rec.LandID).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			conflict = fmt.Errorf("%w: land id %s already exists", parcel.ErrConflict, rec.LandID)
			return conflict
		}

		id, err := nextID(tx)
		if err != nil {
			return err
		}
		rec.ID = parcel.ID(id)
		row := rowFromRecord(rec)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		created = row.toRecord()
		return nil
	})
	if conflict != nil {
		return nil, conflict
	}
	if err != nil {
		return nil, &parcel.StoreError{Op: "create", Err: err}
	}
	return &created, nil
}

// nextID reserves the next value of the parcel sequence inside tx.
func nextID(tx *gorm.DB) (int64, error) {
	var seq sequenceRow
	err := tx.Where("name = ?", parcelSequence).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// First use: continue after whatever is already in the table.
		var maxID int64
		if err := tx.Model(&ParcelRow{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
			return 0, err
		}
		seq = sequenceRow{Name: parcelSequence, Next: maxID + 1}
		if err := tx.Create(&seq).Error; err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	id := seq.Next
	if err := tx.Model(&sequenceRow{}).Where("name = ?", parcelSequence).
		Update("next_value", id+1).Error; err != nil {
		return 0, err
	}
	return id, nil
}

// Get retrieves a record by id.
// Returns nil, nil if no record exists.
func (s *GormStore) Get(ctx context.Context, id parcel.ID) (*parcel.Record, error) {
	return s.first(ctx, "get", "id = ?", int64(id))
}

// FindByLandID retrieves a record by its land id.
// Returns nil, nil if no record exists.
func (s *GormStore) FindByLandID(ctx context.Context, landID string) (*parcel.Record, error) {
	return s.first(ctx, "find by land id", "land_id = ?", landID)
}

// FindByFingerprint retrieves a verified record by its approval fingerprint.
// Returns nil, nil if no record exists.
func (s *GormStore) FindByFingerprint(ctx context.Context, fingerprint string) (*parcel.Record, error) {
	return s.first(ctx, "find by fingerprint", "fingerprint = ?", fingerprint)
}

func (s *GormStore) first(ctx context.Context, op, query string, arg any) (*parcel.Record, error) {
	var row ParcelRow
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &parcel.StoreError{Op: op, Err: err}
	}
	rec := row.toRecord()
	return &rec, nil
}

// List returns records matching filter, newest first. Records created in
// the same instant are ordered by descending id.
func (s *GormStore) List(ctx context.Context, filter parcel.Filter) ([]parcel.Record, error) {
	query := s.db.WithContext(ctx).Model(&ParcelRow{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.SurveyorLicense != "" {
		query = query.Where("surveyor_license = ?", filter.SurveyorLicense)
	}

	var rows []ParcelRow
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, &parcel.StoreError{Op: "list", Err: err}
	}

	out := make([]parcel.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// Update merges patch into the record with the given id.
// Returns nil, nil if no record exists. An error from the patch precondition
// is returned unchanged and nothing is written.
func (s *GormStore) Update(ctx context.Context, id parcel.ID, patch parcel.Patch) (*parcel.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var checkErr error
	var updated *parcel.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ParcelRow
		if err := tx.Where("id = ?", int64(id)).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		rec := row.toRecord()
		if checkErr = patch.Check(rec); checkErr != nil {
			return checkErr
		}
		patch.ApplyTo(&rec)

		next := rowFromRecord(rec)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		out := next.toRecord()
		updated = &out
		return nil
	})
	if checkErr != nil {
		return nil, checkErr
	}
	if err != nil {
		return nil, &parcel.StoreError{Op: "update", Err: err}
	}
	return updated, nil
}

// Delete removes the record with the given id. It reports false if no record
// exists. A non-nil error from check aborts the delete and is returned unchanged.
func (s *GormStore) Delete(ctx context.Context, id parcel.ID, check func(parcel.Record) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var checkErr error
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ParcelRow
		if err := tx.Where("id = ?", int64(id)).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if check != nil {
			if checkErr = check(row.toRecord()); checkErr != nil {
				return checkErr
			}
		}
		result := tx.Where("id = ?", int64(id)).Delete(&ParcelRow{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if checkErr != nil {
		return false, checkErr
	}
	if err != nil {
		return false, &parcel.StoreError{Op: "delete", Err: err}
	}
	return deleted, nil
}
