package registry

import (
	"context"
	"strings"
	"time"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

const (
	landIDKeyPrefix      = "land:"
	fingerprintKeyPrefix = "fp:"
)

// Verify looks up a record by land id or approval fingerprint and returns
// its redacted public view. The land id wins when both are given.
// VERIFIED views never change and may be served from the view cache.
func (s *Service) Verify(ctx context.Context, landID, fingerprint string) (*parcel.PublicView, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("verify", start)

	landID = strings.TrimSpace(landID)
	fingerprint = strings.ToLower(strings.TrimSpace(fingerprint))

	var value, key, kind string
	var lookup func(context.Context, string) (*parcel.Record, error)
	switch {
	case landID != "":
		value, key, kind, lookup = landID, landIDKeyPrefix+landID, "land_id", s.store.FindByLandID
	case fingerprint != "":
		value, key, kind, lookup = fingerprint, fingerprintKeyPrefix+fingerprint, "fingerprint", s.store.FindByFingerprint
	default:
		return nil, parcel.ErrBadRequest
	}

	if s.cache != nil {
		if view, ok := s.cache.Get(ctx, key); ok {
			s.metrics.IncrementViewCacheHit()
			s.metrics.IncrementVerifyLookup(kind, "found")
			return view, nil
		}
	}

	rec, err := lookup(ctx, value)
	if err != nil {
		s.metrics.IncrementVerifyLookup(kind, "error")
		return nil, err
	}
	if rec == nil {
		s.metrics.IncrementVerifyLookup(kind, "not_found")
		return nil, parcel.ErrNotFound
	}
	s.metrics.IncrementVerifyLookup(kind, "found")

	view := rec.View()
	if s.cache != nil && rec.Status == parcel.StatusVerified {
		s.cache.Set(ctx, landIDKeyPrefix+rec.LandID, view)
		if rec.Fingerprint != nil {
			s.cache.Set(ctx, fingerprintKeyPrefix+*rec.Fingerprint, view)
		}
	}
	return &view, nil
}
