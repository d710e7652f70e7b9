package registry

import (
	"log/slog"
	"time"

	"github.com/dlrs-ng/land-registry/pkg/metrics"
	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit sets where lifecycle events are recorded.
func WithAudit(a AuditLog) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithViewCache enables caching of verified public views.
func WithViewCache(c ViewCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGeometrySchema selects the geometry variant accepted by submissions.
func WithGeometrySchema(kind parcel.GeometryKind) Option {
	return func(s *Service) {
		if kind != "" {
			s.schema = kind
		}
	}
}

// WithLandIDGenerator replaces the land id generator.
func WithLandIDGenerator(g *parcel.LandIDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.landIDs = g
		}
	}
}
