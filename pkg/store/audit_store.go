package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// AuditEventRow is the GORM model of one audit trail entry.
type AuditEventRow struct {
	ID        string          `gorm:"primaryKey;column:id;size:36"`
	EventType string          `gorm:"column:event_type;size:64;not null;index:idx_parcel_audit_type"`
	Actor     string          `gorm:"column:actor;size:255;not null"`
	ParcelID  int64           `gorm:"column:parcel_id;not null;index:idx_parcel_audit_parcel_time,priority:1"`
	LandID    string          `gorm:"column:land_id;size:64"`
	Fields    JSONStringSlice `gorm:"column:fields;type:text"`
	Before    RecordColumn    `gorm:"column:before_value;type:text"`
	After     RecordColumn    `gorm:"column:after_value;type:text"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;index:idx_parcel_audit_parcel_time,priority:2"`
}

// TableName returns the GORM table name.
func (AuditEventRow) TableName() string { return "parcel_audit_events" }

// AuditStore provides append-only operations for parcel audit events.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// AutoMigrate creates or updates the audit table.
func (s *AuditStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AuditEventRow{}); err != nil {
		return fmt.Errorf("auto-migrate parcel_audit_events: %w", err)
	}
	return nil
}

// Record appends an immutable audit event. A missing id or timestamp is filled in.
func (s *AuditStore) Record(ctx context.Context, event parcel.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	row := AuditEventRow{
		ID:        event.ID,
		EventType: string(event.Type),
		Actor:     event.Actor,
		ParcelID:  int64(event.ParcelID),
		LandID:    event.LandID,
		Fields:    JSONStringSlice(event.Fields),
		Before:    RecordColumn{Record: event.Before},
		After:     RecordColumn{Record: event.After},
		CreatedAt: event.At.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// History returns paginated audit events for one parcel, newest first, ties
// broken by event id. pageToken is the NextPageToken of the previous page.
func (s *AuditStore) History(ctx context.Context, id parcel.ID, pageSize int, pageToken string) ([]parcel.Event, string, error) {
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	if pageSize > maxHistoryPageSize {
		pageSize = maxHistoryPageSize
	}

	query := s.db.WithContext(ctx).
		Where("parcel_id = ?", int64(id)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pageSize + 1)
	if pageToken != "" {
		cursor, err := parcel.ParseHistoryCursor(pageToken)
		if err != nil {
			return nil, "", err
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}

	var rows []AuditEventRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("list audit events for parcel %d: %w", id, err)
	}

	var nextToken string
	if len(rows) > pageSize {
		last := rows[pageSize-1]
		nextToken = parcel.HistoryCursor{At: last.CreatedAt, ID: last.ID}.String()
		rows = rows[:pageSize]
	}

	events := make([]parcel.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, parcel.Event{
			ID:       row.ID,
			Type:     parcel.EventType(row.EventType),
			Actor:    row.Actor,
			ParcelID: parcel.ID(row.ParcelID),
			LandID:   row.LandID,
			Fields:   []string(row.Fields),
			Before:   row.Before.Record,
			After:    row.After.Record,
			At:       row.CreatedAt.UTC(),
		})
	}
	return events, nextToken, nil
}
