package parcel

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func flatRecord() Record {
	created := time.Date(2024, 1, 2, 3, 4, 5, 678*int(time.Millisecond), time.UTC)
	return Record{
		ID:              1,
		LandID:          "NG-LAND-LEG1-AAAA",
		OwnerName:       "Ada Obi",
		NIN:             "12345678901",
		Phone:           "0803",
		LandDescription: "Plot 1",
		Geometry:        NewPointGeometry(9.6, 6.55),
		SurveyorName:    strPtr("Bola Ade"),
		Status:          StatusPending,
		CreatedAt:       created,
		LegacyHash: &LegacyHashInputs{
			Latitude:  "9.6",
			Longitude: `"6.55"`,
			CreatedAt: "2024-01-02T03:04:05.678Z",
		},
	}
}

func TestCheckIntegrity_FlatSignatureEncodings(t *testing.T) {
	base := `{"ownerName":"Ada Obi","nin":"12345678901","phone":"0803","landDescription":"Plot 1","latitude":9.6,"longitude":"6.55","surveyorName":"Bola Ade"`
	created := `"createdAt":"2024-01-02T03:04:05.678Z"}`

	for name, payload := range map[string]string{
		"license undefined": base + `,` + created,
		"license null":      base + `,"surveyorLicense":null,` + created,
		"license empty":     base + `,"surveyorLicense":"",` + created,
	} {
		rec := flatRecord()
		rec.Signature = sha256Hex(payload)
		report, err := CheckIntegrity(rec)
		require.NoError(t, err)
		assert.True(t, report.SignatureValid, name)
		assert.Equal(t, rec.Signature, report.ExpectedSignature, name)
		assert.Nil(t, report.FingerprintValid, name)
	}
}

func TestCheckIntegrity_FlatSignatureTracksEdits(t *testing.T) {
	rec := flatRecord()
	rec.Signature = sha256Hex(`{"ownerName":"Ada Obi","nin":"12345678901","phone":"0803","landDescription":"Plot 1",` +
		`"latitude":9.6,"longitude":"6.55","surveyorName":"Bola Ade","createdAt":"2024-01-02T03:04:05.678Z"}`)

	report, err := CheckIntegrity(rec)
	require.NoError(t, err)
	require.True(t, report.SignatureValid)

	moved := rec.Clone()
	moved.Geometry = NewPointGeometry(9.61, 6.55)
	report, err = CheckIntegrity(moved)
	require.NoError(t, err)
	assert.False(t, report.SignatureValid, "a moved point must not reuse the imported token")

	reshaped := rec.Clone()
	reshaped.Geometry = testPolygon()
	report, err = CheckIntegrity(reshaped)
	require.NoError(t, err)
	assert.False(t, report.SignatureValid)
}

func TestCheckIntegrity_ApprovalAfterImportIsCanonical(t *testing.T) {
	rec := flatRecord()
	verifiedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fp, err := ApprovalFingerprint(rec, verifiedAt)
	require.NoError(t, err)

	rec.Status = StatusVerified
	rec.Fingerprint = &fp
	rec.VerifiedAt = &verifiedAt

	report, err := CheckIntegrity(rec)
	require.NoError(t, err)
	assert.Equal(t, HashSchemeFlatPoint, report.SignatureScheme)
	assert.Equal(t, HashSchemeCanonical, report.FingerprintScheme)
	require.NotNil(t, report.FingerprintValid)
	assert.True(t, *report.FingerprintValid)
}

func TestLegacyHashInputs_CloneIsDeep(t *testing.T) {
	rec := flatRecord()
	rec.LegacyHash.VerifiedAt = strPtr("2024-01-03T00:00:00.000Z")

	c := rec.Clone()
	*c.LegacyHash.VerifiedAt = "changed"
	c.LegacyHash.Latitude = "0"
	assert.Equal(t, "2024-01-03T00:00:00.000Z", *rec.LegacyHash.VerifiedAt)
	assert.Equal(t, "9.6", rec.LegacyHash.Latitude)

	var none *LegacyHashInputs
	assert.Nil(t, none.Clone())
}
