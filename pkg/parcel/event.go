package parcel

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// EventType names a change recorded in the audit trail.
type EventType string

const (
	EventSubmitted EventType = "parcel.submitted"
	EventEdited    EventType = "parcel.edited"
	EventApproved  EventType = "parcel.approved"
	EventRemoved   EventType = "parcel.removed"
)

// Event is one entry of a parcel's audit trail. Before is nil for
// submissions, After is nil for removals.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Actor    string    `json:"actor"`
	ParcelID ID        `json:"parcelId"`
	LandID   string    `json:"landId"`
	Fields   []string  `json:"fields,omitempty"`
	Before   *Record   `json:"before,omitempty"`
	After    *Record   `json:"after,omitempty"`
	At       time.Time `json:"at"`
}

// HistoryCursor marks the last event of a history page. Events are ordered
// by (At, ID) descending, so the pair is unique even when timestamps tie.
type HistoryCursor struct {
	At time.Time
	ID string
}

var errInvalidCursor = errors.New("invalid page token")

// String encodes the cursor as an opaque URL-safe page token.
func (c HistoryCursor) String() string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseHistoryCursor decodes a page token produced by HistoryCursor.String.
func ParseHistoryCursor(token string) (HistoryCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return HistoryCursor{}, errInvalidCursor
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return HistoryCursor{}, errInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return HistoryCursor{}, errInvalidCursor
	}
	return HistoryCursor{At: t.UTC(), ID: id}, nil
}
