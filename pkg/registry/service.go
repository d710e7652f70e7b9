// Package registry implements the parcel lifecycle: submission, editing and
// removal while PENDING, the one-way approval to VERIFIED, and the public
// verification lookup.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dlrs-ng/land-registry/pkg/metrics"
	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// maxLandIDAttempts bounds regeneration when a fresh land id is already taken.
const maxLandIDAttempts = 3

// Store persists parcel records. Get, FindByLandID, FindByFingerprint and
// Update return nil, nil when no record matches.
type Store interface {
	Create(ctx context.Context, rec parcel.Record) (*parcel.Record, error)
	Get(ctx context.Context, id parcel.ID) (*parcel.Record, error)
	FindByLandID(ctx context.Context, landID string) (*parcel.Record, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*parcel.Record, error)
	List(ctx context.Context, filter parcel.Filter) ([]parcel.Record, error)
	Update(ctx context.Context, id parcel.ID, patch parcel.Patch) (*parcel.Record, error)
	Delete(ctx context.Context, id parcel.ID, check func(parcel.Record) error) (bool, error)
}

// ViewCache holds public views of VERIFIED records.
type ViewCache interface {
	Get(ctx context.Context, key string) (*parcel.PublicView, bool)
	Set(ctx context.Context, key string, view parcel.PublicView)
}

// Service is the lifecycle controller in front of a Store.
type Service struct {
	store   Store
	machine *parcel.LifecycleMachine
	audit   AuditLog
	cache   ViewCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	landIDs *parcel.LandIDGenerator
	schema  parcel.GeometryKind
	now     func() time.Time
}

// NewService creates a Service. Without options it accepts polygon
// geometry, audits to the default logger and caches nothing.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		machine: parcel.NewLifecycleMachine(),
		logger:  slog.Default(),
		landIDs: parcel.NewLandIDGenerator(parcel.DefaultLandIDPrefix, nil),
		schema:  parcel.GeometryPolygon,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = NewLogAuditLog(s.logger)
	}
	return s
}

// GeometrySchema returns the geometry variant accepted by Submit and Edit.
func (s *Service) GeometrySchema() parcel.GeometryKind {
	return s.schema
}

// Submit validates sub and stores it as a new PENDING record.
func (s *Service) Submit(ctx context.Context, sub parcel.Submission) (*parcel.Record, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("submit", start)

	rec, err := sub.Draft(s.schema)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = s.timestamp()
	rec.Signature, err = parcel.SubmissionSignature(rec)
	if err != nil {
		return nil, fmt.Errorf("compute submission signature: %w", err)
	}

	var created *parcel.Record
	for attempt := 1; ; attempt++ {
		rec.LandID, err = s.landIDs.Next(rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("generate land id: %w", err)
		}
		created, err = s.store.Create(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, parcel.ErrConflict) || attempt == maxLandIDAttempts {
			return nil, err
		}
		s.logger.Warn("land id collision, regenerating", "landId", rec.LandID, "attempt", attempt)
	}

	s.metrics.IncrementSubmitted()
	s.record(ctx, parcel.Event{
		Type:     parcel.EventSubmitted,
		ParcelID: created.ID,
		LandID:   created.LandID,
		After:    clonePtr(created),
	})
	s.logger.Info("parcel submitted", "id", created.ID, "landId", created.LandID)
	return created, nil
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id parcel.ID) (*parcel.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, parcel.ErrNotFound
	}
	return rec, nil
}

// List returns records matching filter, newest first.
func (s *Service) List(ctx context.Context, filter parcel.Filter) ([]parcel.Record, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("list", start)
	return s.store.List(ctx, filter)
}

// Edit applies the mutable fields of e to a PENDING record.
func (s *Service) Edit(ctx context.Context, id parcel.ID, e parcel.Edit) (*parcel.Record, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("edit", start)

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.machine.Mutable(current.Status) {
		s.metrics.IncrementStateConflict("immutable")
		return nil, parcel.ErrImmutableRecord
	}

	patch, fields, err := e.Patch(*current, s.schema)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return current, nil
	}
	patch.Precondition = s.requireMutable

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, parcel.ErrImmutableRecord) {
			s.metrics.IncrementStateConflict("immutable")
		}
		return nil, err
	}
	if updated == nil {
		return nil, parcel.ErrNotFound
	}

	s.record(ctx, parcel.Event{
		Type:     parcel.EventEdited,
		ParcelID: updated.ID,
		LandID:   updated.LandID,
		Fields:   fields,
		Before:   current,
		After:    clonePtr(updated),
	})
	s.logger.Info("parcel edited", "id", updated.ID, "fields", fields)
	return updated, nil
}

// Remove deletes a PENDING record.
func (s *Service) Remove(ctx context.Context, id parcel.ID) error {
	start := time.Now()
	defer s.metrics.ObserveOperation("remove", start)

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.machine.Mutable(current.Status) {
		s.metrics.IncrementStateConflict("immutable")
		return parcel.ErrImmutableRecord
	}

	deleted, err := s.store.Delete(ctx, id, s.requireMutable)
	if err != nil {
		if errors.Is(err, parcel.ErrImmutableRecord) {
			s.metrics.IncrementStateConflict("immutable")
		}
		return err
	}
	if !deleted {
		return parcel.ErrNotFound
	}

	s.record(ctx, parcel.Event{
		Type:     parcel.EventRemoved,
		ParcelID: current.ID,
		LandID:   current.LandID,
		Before:   current,
	})
	s.logger.Info("parcel removed", "id", current.ID, "landId", current.LandID)
	return nil
}

// Approve moves a PENDING record to VERIFIED and stamps its fingerprint.
// If the record changes between the read and the transition the approval
// fails with ErrConflict.
func (s *Service) Approve(ctx context.Context, id parcel.ID) (*parcel.Record, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("approve", start)

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.machine.ValidateTransition(current.Status, parcel.StatusVerified); err != nil {
		s.countTransitionConflict(err)
		return nil, err
	}

	verifiedAt := s.timestamp()
	fingerprint, err := parcel.ApprovalFingerprint(*current, verifiedAt)
	if err != nil {
		return nil, fmt.Errorf("compute approval fingerprint: %w", err)
	}

	status := parcel.StatusVerified
	patch := parcel.Patch{
		Status:      &status,
		Fingerprint: &fingerprint,
		VerifiedAt:  &verifiedAt,
		Precondition: func(latest parcel.Record) error {
			if err := s.machine.ValidateTransition(latest.Status, status); err != nil {
				return err
			}
			again, err := parcel.ApprovalFingerprint(latest, verifiedAt)
			if err != nil {
				return err
			}
			if again != fingerprint {
				return fmt.Errorf("%w: parcel %d changed during approval", parcel.ErrConflict, id)
			}
			return nil
		},
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		s.countTransitionConflict(err)
		return nil, err
	}
	if updated == nil {
		return nil, parcel.ErrNotFound
	}

	s.metrics.IncrementApproved()
	s.record(ctx, parcel.Event{
		Type:     parcel.EventApproved,
		ParcelID: updated.ID,
		LandID:   updated.LandID,
		Fields:   []string{"fingerprint", "status", "verifiedAt"},
		Before:   current,
		After:    clonePtr(updated),
	})
	s.logger.Info("parcel approved", "id", updated.ID, "landId", updated.LandID, "fingerprint", fingerprint)
	return updated, nil
}

// Integrity recomputes the stored hashes of a record.
func (s *Service) Integrity(ctx context.Context, id parcel.ID) (*parcel.IntegrityReport, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := parcel.CheckIntegrity(*rec)
	if err != nil {
		return nil, fmt.Errorf("check integrity: %w", err)
	}
	return &report, nil
}

// History returns a page of the audit trail for a parcel, newest first.
// Removed parcels keep their history.
func (s *Service) History(ctx context.Context, id parcel.ID, pageSize int, pageToken string) ([]parcel.Event, string, error) {
	events, next, err := s.audit.History(ctx, id, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}
	if len(events) == 0 && pageToken == "" {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, "", err
		}
	}
	return events, next, nil
}

// requireMutable is the store-side precondition for edits and removals.
func (s *Service) requireMutable(latest parcel.Record) error {
	if !s.machine.Mutable(latest.Status) {
		return parcel.ErrImmutableRecord
	}
	return nil
}

func (s *Service) countTransitionConflict(err error) {
	switch {
	case errors.Is(err, parcel.ErrAlreadyVerified):
		s.metrics.IncrementStateConflict("already_verified")
	case errors.Is(err, parcel.ErrConflict):
		s.metrics.IncrementStateConflict("concurrent_change")
	}
}

// record appends an audit event. Audit failures are logged, never returned:
// the state change has already been committed.
func (s *Service) record(ctx context.Context, event parcel.Event) {
	event.Actor = ActorFromContext(ctx)
	if event.At.IsZero() {
		event.At = s.now().UTC()
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event", "type", event.Type, "parcelId", event.ParcelID, "error", err)
	}
}

// timestamp returns the current time at the millisecond precision used in
// fingerprint payloads.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func clonePtr(r *parcel.Record) *parcel.Record {
	c := r.Clone()
	return &c
}
