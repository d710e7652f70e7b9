// Package parcel defines the land parcel record, its lifecycle states and
// the deterministic fingerprints computed over it.
package parcel

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a parcel record.
type Status string

const (
	// StatusPending is the initial state; the record is still editable.
	StatusPending Status = "PENDING"

	// StatusVerified is terminal; the record is immutable.
	StatusVerified Status = "VERIFIED"
)

// ParseStatus parses a status value case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusVerified:
		return StatusVerified, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// ID is the internal numeric identifier of a parcel record.
//
// Identifiers arrive as path segments, query values and JSON numbers. All of
// them are normalized through ParseID so that equality is plain integer
// equality everywhere else.
type ID int64

// ParseID normalizes a string or numeric identifier. Surrounding whitespace is
// ignored; the value must be a positive base-10 integer.
func ParseID(v any) (ID, error) {
	switch val := v.(type) {
	case ID:
		if val <= 0 {
			return 0, fmt.Errorf("invalid id %d", val)
		}
		return val, nil
	case int:
		return ParseID(ID(val))
	case int64:
		return ParseID(ID(val))
	case float64:
		if val != math.Trunc(val) || val < 1 || val >= math.MaxInt64 {
			return 0, fmt.Errorf("invalid id %v", val)
		}
		return ParseID(ID(val))
	case json.Number:
		return ParseID(string(val))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", val)
		}
		return ParseID(ID(n))
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Record is a parcel record as persisted by a store.
type Record struct {
	ID              ID         `json:"id"`
	LandID          string     `json:"landId"`
	OwnerName       string     `json:"ownerName"`
	NIN             string     `json:"nin"`
	Phone           string     `json:"phone"`
	LandDescription string     `json:"landDescription"`
	Geometry        Geometry   `json:"geometry"`
	SurveyorName    *string    `json:"surveyorName"`
	SurveyorLicense *string    `json:"surveyorLicense"`
	Documents       Documents  `json:"documents"`
	Status          Status     `json:"status"`
	Signature       string     `json:"signature"`
	Fingerprint     *string    `json:"fingerprint"`
	CreatedAt       time.Time  `json:"createdAt"`
	VerifiedAt      *time.Time `json:"verifiedAt"`

	// LegacyHash is set on records imported from the flat parcel file.
	LegacyHash *LegacyHashInputs `json:"legacyHash,omitempty"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Geometry = r.Geometry.Clone()
	out.SurveyorName = cloneString(r.SurveyorName)
	out.SurveyorLicense = cloneString(r.SurveyorLicense)
	out.Documents = r.Documents.Clone()
	out.Fingerprint = cloneString(r.Fingerprint)
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		out.VerifiedAt = &t
	}
	out.LegacyHash = r.LegacyHash.Clone()
	return out
}

// Filter selects records in List. Empty fields match everything; set fields
// are combined with AND.
type Filter struct {
	Status          Status
	SurveyorLicense string
}

// Matches reports whether the record satisfies the filter.
func (f Filter) Matches(r Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.SurveyorLicense != "" && (r.SurveyorLicense == nil || *r.SurveyorLicense != f.SurveyorLicense) {
		return false
	}
	return true
}

// PublicView is the redacted projection returned by public verification.
type PublicView struct {
	LandID      string     `json:"landId"`
	OwnerName   string     `json:"ownerName"`
	Status      Status     `json:"status"`
	Fingerprint *string    `json:"fingerprint"`
	VerifiedAt  *time.Time `json:"verifiedAt"`
}

// View projects the record onto its public fields.
func (r Record) View() PublicView {
	c := r.Clone()
	return PublicView{
		LandID:      c.LandID,
		OwnerName:   c.OwnerName,
		Status:      c.Status,
		Fingerprint: c.Fingerprint,
		VerifiedAt:  c.VerifiedAt,
	}
}

// Patch is a shallow merge applied by a store. Nil fields are left untouched.
type Patch struct {
	OwnerName       *string
	NIN             *string
	Phone           *string
	LandDescription *string
	Geometry        *Geometry
	// SurveyorName and SurveyorLicense clear the stored value when set to "".
	SurveyorName    *string
	SurveyorLicense *string
	Documents       *Documents
	Status          *Status
	Fingerprint     *string
	VerifiedAt      *time.Time

	// Precondition runs against the current record inside the store's write
	// critical section. A non-nil error aborts the update and is returned
	// to the caller unchanged.
	Precondition func(current Record) error
}

// ApplyTo merges the patch into r.
func (p Patch) ApplyTo(r *Record) {
	if p.OwnerName != nil {
		r.OwnerName = *p.OwnerName
	}
	if p.NIN != nil {
		r.NIN = *p.NIN
	}
	if p.Phone != nil {
		r.Phone = *p.Phone
	}
	if p.LandDescription != nil {
		r.LandDescription = *p.LandDescription
	}
	if p.Geometry != nil {
		r.Geometry = p.Geometry.Clone()
	}
	if p.SurveyorName != nil {
		r.SurveyorName = optionalString(*p.SurveyorName)
	}
	if p.SurveyorLicense != nil {
		r.SurveyorLicense = optionalString(*p.SurveyorLicense)
	}
	if p.Documents != nil {
		r.Documents = p.Documents.Clone()
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Fingerprint != nil {
		fp := *p.Fingerprint
		r.Fingerprint = &fp
	}
	if p.VerifiedAt != nil {
		t := *p.VerifiedAt
		r.VerifiedAt = &t
	}
}

// Check runs the precondition, if any.
func (p Patch) Check(current Record) error {
	if p.Precondition == nil {
		return nil
	}
	return p.Precondition(current)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// optionalString trims s and returns nil for an empty result.
func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
