package parcel

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLandIDGenerator_Format(t *testing.T) {
	now := time.UnixMilli(1735689600000)
	g := NewLandIDGenerator("", bytes.NewReader([]byte{0, 10, 35, 36}))

	id, err := g.Next(now)
	require.NoError(t, err)

	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	assert.Equal(t, "NG-LAND-"+ts+"-0AZ0", id)
	assert.True(t, ValidLandID(id))
}

func TestLandIDGenerator_CustomPrefix(t *testing.T) {
	g := NewLandIDGenerator(" ng-fct- ", nil)
	id, err := g.Next(time.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "NG-FCT-"), id)
	assert.True(t, ValidLandID(id))
}

func TestLandIDGenerator_Distinct(t *testing.T) {
	g := NewLandIDGenerator("", nil)
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := g.Next(now)
		require.NoError(t, err)
		seen[id] = true
	}
	// 36^4 suffixes; a handful of collisions in 200 draws would be extraordinary.
	assert.Greater(t, len(seen), 190)
}

func TestLandIDGenerator_ShortRead(t *testing.T) {
	g := NewLandIDGenerator("", bytes.NewReader([]byte{1}))
	_, err := g.Next(time.Now())
	assert.Error(t, err)
}

func TestValidLandID(t *testing.T) {
	assert.False(t, ValidLandID(""))
	assert.False(t, ValidLandID("NG-LAND-abc-1234"))
	assert.False(t, ValidLandID("NG-LAND-ABC-12345"))
	assert.True(t, ValidLandID("NG-LAND-M5X2K3AB-Q1Z9"))
}
