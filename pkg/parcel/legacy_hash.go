package parcel

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// HashScheme names the payload layout a record's hashes were computed over.
type HashScheme string

const (
	// HashSchemeCanonical is the layout built by SubmissionPayload and
	// ApprovalPayload.
	HashSchemeCanonical HashScheme = "canonical"
	// HashSchemeFlatPoint is the layout of the flat parcel file: latitude and
	// longitude keys instead of a geometry object, no documents, no
	// normalization.
	HashSchemeFlatPoint HashScheme = "flat-point"
)

// LegacyHashInputs keeps the JSON tokens a record imported from the flat
// parcel file was hashed with. Coordinates are raw JSON (a number or a
// string, as the client sent it); timestamps are the stored ISO strings.
// VerifiedAt is set only when the fingerprint itself was imported.
type LegacyHashInputs struct {
	Latitude   string  `json:"latitude"`
	Longitude  string  `json:"longitude"`
	CreatedAt  string  `json:"createdAt"`
	VerifiedAt *string `json:"verifiedAt,omitempty"`
}

// Clone returns a deep copy.
func (in *LegacyHashInputs) Clone() *LegacyHashInputs {
	if in == nil {
		return nil
	}
	out := *in
	out.VerifiedAt = cloneString(in.VerifiedAt)
	return &out
}

func (r Record) signatureScheme() HashScheme {
	if r.LegacyHash != nil {
		return HashSchemeFlatPoint
	}
	return HashSchemeCanonical
}

func (r Record) fingerprintScheme() HashScheme {
	if r.LegacyHash != nil && r.LegacyHash.VerifiedAt != nil {
		return HashSchemeFlatPoint
	}
	return HashSchemeCanonical
}

// member is one key of a flat payload. An omitted member is left out of the
// object entirely, the way JSON.stringify drops undefined values.
type member struct {
	key  string
	raw  string
	omit bool
}

func flatObject(members ...member) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, m := range members {
		if m.omit {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(jsonString(m.key))
		buf.WriteByte(':')
		buf.WriteString(m.raw)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func jsonString(s string) string {
	b, _ := canonicalJSON(s)
	return string(b)
}

// flatCoordinates returns the latitude and longitude tokens for r. The
// imported token is reused while it still denotes the record's point;
// otherwise the current value is rendered, so edits change the hash.
func (r Record) flatCoordinates() (string, string) {
	if r.Geometry.Kind != GeometryPoint || r.Geometry.Point == nil {
		return "null", "null"
	}
	return flatNumber(r.LegacyHash.Latitude, r.Geometry.Point.Latitude),
		flatNumber(r.LegacyHash.Longitude, r.Geometry.Point.Longitude)
}

func flatNumber(raw string, current float64) string {
	var c Coordinate
	if raw != "" && json.Unmarshal([]byte(raw), &c) == nil && float64(c) == current {
		return raw
	}
	return strconv.FormatFloat(current, 'f', -1, 64)
}

func flatTimestamp(raw string, t time.Time) string {
	if raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil && parsed.Equal(t) {
			return jsonString(raw)
		}
	}
	return jsonString(FormatTimestamp(t))
}

// flatOptional lists the encodings an optional surveyor field may have had
// when it was hashed. A stored null came from a missing, null or empty value.
func flatOptional(key string, v *string) []member {
	if v != nil {
		return []member{{key: key, raw: jsonString(*v)}}
	}
	return []member{{key: key, omit: true}, {key: key, raw: "null"}, {key: key, raw: `""`}}
}

// flatSubmissionSignatures returns every signature r could carry under the
// flat layout, one per possible encoding of the optional surveyor fields.
func flatSubmissionSignatures(r Record) []string {
	lat, lng := r.flatCoordinates()
	createdAt := flatTimestamp(r.LegacyHash.CreatedAt, r.CreatedAt)

	var out []string
	for _, name := range flatOptional("surveyorName", r.SurveyorName) {
		for _, license := range flatOptional("surveyorLicense", r.SurveyorLicense) {
			out = append(out, digest(flatObject(
				member{key: "ownerName", raw: jsonString(r.OwnerName)},
				member{key: "nin", raw: jsonString(r.NIN)},
				member{key: "phone", raw: jsonString(r.Phone)},
				member{key: "landDescription", raw: jsonString(r.LandDescription)},
				member{key: "latitude", raw: lat},
				member{key: "longitude", raw: lng},
				name,
				license,
				member{key: "createdAt", raw: createdAt},
			)))
		}
	}
	return out
}

// flatApprovalFingerprint recomputes an imported approval hash.
func flatApprovalFingerprint(r Record, verifiedAt time.Time) string {
	lat, lng := r.flatCoordinates()
	var rawVerified string
	if r.LegacyHash.VerifiedAt != nil {
		rawVerified = *r.LegacyHash.VerifiedAt
	}
	return digest(flatObject(
		member{key: "landId", raw: jsonString(r.LandID)},
		member{key: "ownerName", raw: jsonString(r.OwnerName)},
		member{key: "nin", raw: jsonString(r.NIN)},
		member{key: "latitude", raw: lat},
		member{key: "longitude", raw: lng},
		member{key: "createdAt", raw: flatTimestamp(r.LegacyHash.CreatedAt, r.CreatedAt)},
		member{key: "verifiedAt", raw: flatTimestamp(rawVerified, verifiedAt)},
	))
}
