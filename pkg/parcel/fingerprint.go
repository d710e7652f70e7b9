package parcel

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TimestampLayout renders hashed timestamps: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t the way it enters a fingerprint payload.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// submissionPayload fixes the field set and order of the submission signature.
type submissionPayload struct {
	OwnerName       string    `json:"ownerName"`
	NIN             string    `json:"nin"`
	Phone           string    `json:"phone"`
	LandDescription string    `json:"landDescription"`
	Geometry        Geometry  `json:"geometry"`
	SurveyorName    *string   `json:"surveyorName"`
	SurveyorLicense *string   `json:"surveyorLicense"`
	Documents       Documents `json:"documents"`
	CreatedAt       string    `json:"createdAt"`
}

// approvalPayload fixes the field set and order of the approval fingerprint.
type approvalPayload struct {
	LandID     string   `json:"landId"`
	OwnerName  string   `json:"ownerName"`
	NIN        string   `json:"nin"`
	Geometry   Geometry `json:"geometry"`
	CreatedAt  string   `json:"createdAt"`
	VerifiedAt string   `json:"verifiedAt"`
}

// SubmissionPayload returns the canonical bytes hashed into the submission
// signature of r.
func SubmissionPayload(r Record) ([]byte, error) {
	docs := r.Documents.Normalize()
	docs.SurveyPlanNumber = nfcPtr(docs.SurveyPlanNumber)
	docs.DeedOfAssignmentDate = nfcPtr(docs.DeedOfAssignmentDate)
	return canonicalJSON(submissionPayload{
		OwnerName:       nfc(r.OwnerName),
		NIN:             nfc(r.NIN),
		Phone:           nfc(r.Phone),
		LandDescription: nfc(r.LandDescription),
		Geometry:        r.Geometry,
		SurveyorName:    nfcPtr(r.SurveyorName),
		SurveyorLicense: nfcPtr(r.SurveyorLicense),
		Documents:       docs,
		CreatedAt:       FormatTimestamp(r.CreatedAt),
	})
}

// ApprovalPayload returns the canonical bytes hashed into the approval
// fingerprint of r at verifiedAt.
func ApprovalPayload(r Record, verifiedAt time.Time) ([]byte, error) {
	return canonicalJSON(approvalPayload{
		LandID:     nfc(r.LandID),
		OwnerName:  nfc(r.OwnerName),
		NIN:        nfc(r.NIN),
		Geometry:   r.Geometry,
		CreatedAt:  FormatTimestamp(r.CreatedAt),
		VerifiedAt: FormatTimestamp(verifiedAt),
	})
}

// SubmissionSignature computes the signature stored on a record at creation.
// It is an integrity hash, not an authenticated signature: anyone holding the
// field values can recompute it.
func SubmissionSignature(r Record) (string, error) {
	payload, err := SubmissionPayload(r)
	if err != nil {
		return "", fmt.Errorf("submission signature: %w", err)
	}
	return digest(payload), nil
}

// ApprovalFingerprint computes the fingerprint set on a record when it is
// verified at verifiedAt.
func ApprovalFingerprint(r Record, verifiedAt time.Time) (string, error) {
	payload, err := ApprovalPayload(r, verifiedAt)
	if err != nil {
		return "", fmt.Errorf("approval fingerprint: %w", err)
	}
	return digest(payload), nil
}

// IntegrityReport compares stored hashes with freshly recomputed ones.
type IntegrityReport struct {
	LandID              string     `json:"landId"`
	Status              Status     `json:"status"`
	SignatureScheme     HashScheme `json:"signatureScheme"`
	FingerprintScheme   HashScheme `json:"fingerprintScheme"`
	Signature           string     `json:"signature"`
	ExpectedSignature   string     `json:"expectedSignature"`
	SignatureValid      bool       `json:"signatureValid"`
	Fingerprint         *string    `json:"fingerprint"`
	ExpectedFingerprint *string    `json:"expectedFingerprint"`
	FingerprintValid    *bool      `json:"fingerprintValid"`
	Consistent          bool       `json:"consistent"`
}

// CheckIntegrity recomputes both hashes of r. Consistent also covers the
// status invariant: fingerprint and verifiedAt are set iff r is VERIFIED.
// Records imported from the flat parcel file are recomputed over the flat
// layout they were originally hashed with.
func CheckIntegrity(r Record) (IntegrityReport, error) {
	rep := IntegrityReport{
		LandID:            r.LandID,
		Status:            r.Status,
		SignatureScheme:   r.signatureScheme(),
		FingerprintScheme: r.fingerprintScheme(),
		Signature:         r.Signature,
		Fingerprint:       cloneString(r.Fingerprint),
	}

	var candidates []string
	if rep.SignatureScheme == HashSchemeFlatPoint {
		candidates = flatSubmissionSignatures(r)
	} else {
		sig, err := SubmissionSignature(r)
		if err != nil {
			return IntegrityReport{}, err
		}
		candidates = []string{sig}
	}
	rep.ExpectedSignature = candidates[0]
	for _, sig := range candidates {
		if sig == r.Signature {
			rep.ExpectedSignature = sig
			rep.SignatureValid = true
			break
		}
	}

	verified := r.Status == StatusVerified
	rep.Consistent = verified == (r.Fingerprint != nil) && verified == (r.VerifiedAt != nil)

	if r.VerifiedAt != nil {
		var fp string
		if rep.FingerprintScheme == HashSchemeFlatPoint {
			fp = flatApprovalFingerprint(r, *r.VerifiedAt)
		} else {
			var err error
			if fp, err = ApprovalFingerprint(r, *r.VerifiedAt); err != nil {
				return IntegrityReport{}, err
			}
		}
		valid := r.Fingerprint != nil && *r.Fingerprint == fp
		rep.ExpectedFingerprint = &fp
		rep.FingerprintValid = &valid
	}
	return rep, nil
}

// canonicalJSON encodes v without HTML escaping and without the encoder's
// trailing newline. Struct field order fixes key order.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func nfc(s string) string {
	return norm.NFC.String(s)
}

func nfcPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := nfc(*s)
	return &v
}
