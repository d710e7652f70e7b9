package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// legacyParcel is one entry of the flat parcel array written by earlier
// deployments: a single coordinate pair and the approval hash under sha256Hash.
type legacyParcel struct {
	ID              json.Number        `json:"id"`
	LandID          string             `json:"landId"`
	OwnerName       string             `json:"ownerName"`
	NIN             string             `json:"nin"`
	Phone           string             `json:"phone"`
	LandDescription string             `json:"landDescription"`
	Latitude        json.RawMessage    `json:"latitude"`
	Longitude       json.RawMessage    `json:"longitude"`
	Geometry        *parcel.Geometry   `json:"geometry"`
	SurveyorName    *string            `json:"surveyorName"`
	SurveyorLicense *string            `json:"surveyorLicense"`
	Documents       *parcel.Documents  `json:"documents"`
	Status          string             `json:"status"`
	Signature       string             `json:"signature"`
	SHA256Hash      *string            `json:"sha256Hash"`
	Fingerprint     *string            `json:"fingerprint"`
	CreatedAt       *string            `json:"createdAt"`
	VerifiedAt      *string            `json:"verifiedAt"`
}

// decodeLegacyParcels converts the flat array layout. Ids may be numbers or
// numeric strings.
func decodeLegacyParcels(data []byte) ([]parcel.Record, error) {
	var legacy []legacyParcel
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}

	out := make([]parcel.Record, 0, len(legacy))
	seen := make(map[parcel.ID]bool, len(legacy))
	for i, lp := range legacy {
		rec, err := lp.toRecord()
		if err != nil {
			return nil, fmt.Errorf("legacy parcel %d: %w", i, err)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("legacy parcel %d: duplicate id %d", i, rec.ID)
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	return out, nil
}

func (lp legacyParcel) toRecord() (parcel.Record, error) {
	id, err := parcel.ParseID(lp.ID)
	if err != nil {
		return parcel.Record{}, err
	}

	lat, hasLat, err := legacyCoordinate(lp.Latitude)
	if err != nil {
		return parcel.Record{}, fmt.Errorf("parcel %d latitude: %w", id, err)
	}
	lng, hasLng, err := legacyCoordinate(lp.Longitude)
	if err != nil {
		return parcel.Record{}, fmt.Errorf("parcel %d longitude: %w", id, err)
	}

	var geom parcel.Geometry
	flat := false
	switch {
	case lp.Geometry != nil:
		geom = lp.Geometry.Clone()
	case hasLat && hasLng:
		geom = parcel.NewPointGeometry(lat, lng)
		flat = true
	default:
		return parcel.Record{}, fmt.Errorf("parcel %d has no coordinates", id)
	}

	createdAt, err := legacyTime(lp.CreatedAt)
	if err != nil {
		return parcel.Record{}, fmt.Errorf("parcel %d createdAt: %w", id, err)
	}
	verifiedAt, err := legacyTime(lp.VerifiedAt)
	if err != nil {
		return parcel.Record{}, fmt.Errorf("parcel %d verifiedAt: %w", id, err)
	}

	status, err := parcel.ParseStatus(lp.Status)
	if err != nil {
		return parcel.Record{}, err
	}

	fingerprint := lp.Fingerprint
	if fingerprint == nil {
		fingerprint = lp.SHA256Hash
	}

	var legacyHash *parcel.LegacyHashInputs
	if flat {
		legacyHash = &parcel.LegacyHashInputs{
			Latitude:  string(lp.Latitude),
			Longitude: string(lp.Longitude),
		}
		if lp.CreatedAt != nil {
			legacyHash.CreatedAt = *lp.CreatedAt
		}
		if lp.Fingerprint == nil && lp.SHA256Hash != nil && lp.VerifiedAt != nil {
			v := *lp.VerifiedAt
			legacyHash.VerifiedAt = &v
		}
	}

	rec := parcel.Record{
		ID:              id,
		LandID:          lp.LandID,
		OwnerName:       lp.OwnerName,
		NIN:             lp.NIN,
		Phone:           lp.Phone,
		LandDescription: lp.LandDescription,
		Geometry:        geom,
		SurveyorName:    lp.SurveyorName,
		SurveyorLicense: lp.SurveyorLicense,
		Status:          status,
		Signature:       lp.Signature,
		Fingerprint:     fingerprint,
		VerifiedAt:      verifiedAt,
		LegacyHash:      legacyHash,
	}
	if lp.Documents != nil {
		rec.Documents = lp.Documents.Clone()
	}
	if createdAt != nil {
		rec.CreatedAt = *createdAt
	}
	return rec.Clone(), nil
}

// legacyCoordinate parses a coordinate that may be a number, a numeric
// string or null. It reports false when the value is absent.
func legacyCoordinate(raw json.RawMessage) (float64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var c parcel.Coordinate
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0, false, err
	}
	return float64(c), true, nil
}

func legacyTime(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
