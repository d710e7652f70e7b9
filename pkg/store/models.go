// Package store provides the parcel record stores: a GORM store for SQL
// databases, a JSON file store, and the append-only audit trail.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// decodeJSONColumn handles the string/[]byte duality of text columns across drivers.
func decodeJSONColumn(value any, dst any, name string) error {
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for %s: %T", name, value)
	}
	return json.Unmarshal(bytes, dst)
}

// GeometryColumn stores a parcel geometry as JSON text.
type GeometryColumn parcel.Geometry

// Scan implements the sql.Scanner interface for GeometryColumn.
func (g *GeometryColumn) Scan(value any) error {
	if value == nil {
		*g = GeometryColumn{}
		return nil
	}
	return decodeJSONColumn(value, (*parcel.Geometry)(g), "GeometryColumn")
}

// Value implements the driver.Valuer interface for GeometryColumn.
func (g GeometryColumn) Value() (driver.Value, error) {
	b, err := json.Marshal(parcel.Geometry(g))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// DocumentsColumn stores supporting document metadata as JSON text.
type DocumentsColumn parcel.Documents

// Scan implements the sql.Scanner interface for DocumentsColumn.
func (d *DocumentsColumn) Scan(value any) error {
	if value == nil {
		*d = DocumentsColumn{}
		return nil
	}
	return decodeJSONColumn(value, (*parcel.Documents)(d), "DocumentsColumn")
}

// Value implements the driver.Valuer interface for DocumentsColumn.
func (d DocumentsColumn) Value() (driver.Value, error) {
	b, err := json.Marshal(parcel.Documents(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// RecordColumn stores a full record snapshot as JSON text. Used by the audit trail.
type RecordColumn struct {
	Record *parcel.Record
}

// Scan implements the sql.Scanner interface for RecordColumn.
func (c *RecordColumn) Scan(value any) error {
	if value == nil {
		c.Record = nil
		return nil
	}
	var rec parcel.Record
	if err := decodeJSONColumn(value, &rec, "RecordColumn"); err != nil {
		return err
	}
	c.Record = &rec
	return nil
}

// Value implements the driver.Valuer interface for RecordColumn.
func (c RecordColumn) Value() (driver.Value, error) {
	if c.Record == nil {
		return nil, nil
	}
	b, err := json.Marshal(c.Record)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// LegacyHashColumn stores the flat-layout hash inputs of an imported record.
type LegacyHashColumn struct {
	Inputs *parcel.LegacyHashInputs
}

// Scan implements the sql.Scanner interface for LegacyHashColumn.
func (c *LegacyHashColumn) Scan(value any) error {
	if value == nil {
		c.Inputs = nil
		return nil
	}
	var in parcel.LegacyHashInputs
	if err := decodeJSONColumn(value, &in, "LegacyHashColumn"); err != nil {
		return err
	}
	c.Inputs = &in
	return nil
}

// Value implements the driver.Valuer interface for LegacyHashColumn.
func (c LegacyHashColumn) Value() (driver.Value, error) {
	if c.Inputs == nil {
		return nil, nil
	}
	b, err := json.Marshal(c.Inputs)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	return decodeJSONColumn(value, (*[]string)(s), "JSONStringSlice")
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ParcelRow is the GORM model of a parcel record.
type ParcelRow struct {
	ID              int64            `gorm:"primaryKey;column:id;autoIncrement:false"`
	LandID          string           `gorm:"column:land_id;size:64;uniqueIndex:idx_parcels_land_id;not null"`
	OwnerName       string           `gorm:"column:owner_name;not null"`
	NIN             string           `gorm:"column:nin;not null"`
	Phone           string           `gorm:"column:phone;not null"`
	LandDescription string           `gorm:"column:land_description;type:text;not null"`
	Geometry        GeometryColumn   `gorm:"column:geometry;type:text;not null"`
	SurveyorName    *string          `gorm:"column:surveyor_name"`
	SurveyorLicense *string          `gorm:"column:surveyor_license;size:128;index:idx_parcels_license"`
	Documents       DocumentsColumn  `gorm:"column:documents;type:text"`
	Status          string           `gorm:"column:status;size:16;index:idx_parcels_status_created,priority:1;not null"`
	Signature       string           `gorm:"column:signature;size:64;not null"`
	Fingerprint     *string          `gorm:"column:fingerprint;size:64;index:idx_parcels_fingerprint"`
	CreatedAt       time.Time        `gorm:"column:created_at;index:idx_parcels_status_created,priority:2;autoCreateTime:false"`
	VerifiedAt      *time.Time       `gorm:"column:verified_at"`
	LegacyHash      LegacyHashColumn `gorm:"column:legacy_hash;type:text"`
}

// TableName returns the GORM table name.
func (ParcelRow) TableName() string { return "parcels" }

// sequenceRow holds the next id to hand out. Keeping the counter in its own
// row means ids are never reused, even after the highest record is deleted.
type sequenceRow struct {
	Name string `gorm:"primaryKey;column:name;size:64"`
	Next int64  `gorm:"column:next_value;not null"`
}

func (sequenceRow) TableName() string { return "parcel_sequences" }

func rowFromRecord(r parcel.Record) ParcelRow {
	return ParcelRow{
		ID:              int64(r.ID),
		LandID:          r.LandID,
		OwnerName:       r.OwnerName,
		NIN:             r.NIN,
		Phone:           r.Phone,
		LandDescription: r.LandDescription,
		Geometry:        GeometryColumn(r.Geometry.Clone()),
		SurveyorName:    r.SurveyorName,
		SurveyorLicense: r.SurveyorLicense,
		Documents:       DocumentsColumn(r.Documents.Clone()),
		Status:          string(r.Status),
		Signature:       r.Signature,
		Fingerprint:     r.Fingerprint,
		CreatedAt:       r.CreatedAt.UTC(),
		VerifiedAt:      utcPtr(r.VerifiedAt),
		LegacyHash:      LegacyHashColumn{Inputs: r.LegacyHash.Clone()},
	}
}

func (row ParcelRow) toRecord() parcel.Record {
	return parcel.Record{
		ID:              parcel.ID(row.ID),
		LandID:          row.LandID,
		OwnerName:       row.OwnerName,
		NIN:             row.NIN,
		Phone:           row.Phone,
		LandDescription: row.LandDescription,
		Geometry:        parcel.Geometry(row.Geometry),
		SurveyorName:    row.SurveyorName,
		SurveyorLicense: row.SurveyorLicense,
		Documents:       parcel.Documents(row.Documents),
		Status:          parcel.Status(row.Status),
		Signature:       row.Signature,
		Fingerprint:     row.Fingerprint,
		CreatedAt:       row.CreatedAt.UTC(),
		VerifiedAt:      utcPtr(row.VerifiedAt),
		LegacyHash:      row.LegacyHash.Inputs,
	}.Clone()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
