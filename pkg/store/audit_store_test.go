package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

func newTestAuditStore(t *testing.T) *AuditStore {
	t.Helper()
	s := NewAuditStore(newTestDB(t))
	require.NoError(t, s.AutoMigrate())
	return s
}

func TestAuditStore_Record(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	after := newRecord("NG-LAND-A-0001", baseTime)
	after.ID = 1
	require.NoError(t, s.Record(ctx, parcel.Event{
		Type:     parcel.EventSubmitted,
		Actor:    "surveyor@example.com",
		ParcelID: 1,
		LandID:   after.LandID,
		After:    &after,
	}))

	events, next, err := s.History(ctx, 1, 10, "")
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, events, 1)

	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.At.IsZero())
	assert.Equal(t, parcel.EventSubmitted, e.Type)
	assert.Equal(t, "surveyor@example.com", e.Actor)
	assert.Nil(t, e.Before)
	require.NotNil(t, e.After)
	assert.Equal(t, "Ada Obi", e.After.OwnerName)
	assert.Equal(t, parcel.GeometryPolygon, e.After.Geometry.Kind)
}

func TestAuditStore_HistoryPagination(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, parcel.Event{
			Type:     parcel.EventEdited,
			Actor:    "alice",
			ParcelID: 7,
			Fields:   []string{"ownerName"},
			At:       start.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Record(ctx, parcel.Event{
		Type:     parcel.EventEdited,
		Actor:    "bob",
		ParcelID: 8,
		At:       time.Now(),
	}))

	page1, token, err := s.History(ctx, 7, 2, "")
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.NotEmpty(t, token)
	assert.True(t, page1[0].At.After(page1[1].At), "newest first")
	assert.Equal(t, []string{"ownerName"}, page1[0].Fields)

	page2, token, err := s.History(ctx, 7, 2, token)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.True(t, page1[1].At.After(page2[0].At))

	page3, token, err := s.History(ctx, 7, 2, token)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, token)
}

func TestAuditStore_InvalidPageToken(t *testing.T) {
	s := newTestAuditStore(t)
	_, _, err := s.History(context.Background(), 1, 10, "yesterday")
	assert.Error(t, err)

	// A bare timestamp is not a cursor.
	_, _, err = s.History(context.Background(), 1, 10, "2025-03-01T10:30:00Z")
	assert.Error(t, err)
}

func TestAuditStore_PageSizeClamp(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	start := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Record(ctx, parcel.Event{
			Type:     parcel.EventEdited,
			Actor:    "alice",
			ParcelID: 3,
			At:       start.Add(time.Duration(i) * time.Second),
		}))
	}

	events, token, err := s.History(ctx, 3, 0, "")
	require.NoError(t, err)
	assert.Len(t, events, defaultHistoryPageSize)
	assert.NotEmpty(t, token)
}

func TestAuditStore_HistoryPagesThroughTiedTimestamps(t *testing.T) {
	s := newTestAuditStore(t)
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, parcel.Event{
			Type:     parcel.EventEdited,
			Actor:    "alice",
			ParcelID: 1,
			At:       at,
		}))
	}

	seen := map[string]bool{}
	token := ""
	for pages := 0; pages < 10; pages++ {
		events, next, err := s.History(ctx, 1, 2, token)
		require.NoError(t, err)
		for _, e := range events {
			assert.False(t, seen[e.ID], "event %s returned twice", e.ID)
			seen[e.ID] = true
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.Len(t, seen, 5)
}
