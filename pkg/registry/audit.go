package registry

import (
	"context"
	"log/slog"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// AuditLog records lifecycle events and serves a parcel's history.
type AuditLog interface {
	Record(ctx context.Context, event parcel.Event) error
	History(ctx context.Context, id parcel.ID, pageSize int, pageToken string) ([]parcel.Event, string, error)
}

// LogAuditLog writes events to a structured logger only. It keeps no
// history; used with the file store, which has no audit table.
type LogAuditLog struct {
	logger *slog.Logger
}

// NewLogAuditLog creates a LogAuditLog.
func NewLogAuditLog(logger *slog.Logger) *LogAuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditLog{logger: logger}
}

// Record logs the event. Record snapshots are omitted.
func (l *LogAuditLog) Record(_ context.Context, event parcel.Event) error {
	l.logger.Info("parcel audit event",
		"type", event.Type,
		"actor", event.Actor,
		"parcelId", event.ParcelID,
		"landId", event.LandID,
		"fields", event.Fields)
	return nil
}

// History always returns an empty page.
func (l *LogAuditLog) History(context.Context, parcel.ID, int, string) ([]parcel.Event, string, error) {
	return []parcel.Event{}, "", nil
}
