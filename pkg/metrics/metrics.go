// Package metrics exposes Prometheus instrumentation for the registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the parcel lifecycle and verification lookups.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Parcels submitted and approved
	Submitted prometheus.Counter
	Approved  prometheus.Counter

	// Operations rejected because of the record's state, by reason
	StateConflicts *prometheus.CounterVec

	// Public lookups by key kind and outcome
	VerifyLookups *prometheus.CounterVec

	// Public view cache hits
	ViewCacheHits prometheus.Counter

	// Service operation latency by operation
	OperationLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "land_registry_parcels_submitted_total",
			Help: "Total parcels submitted for verification",
		}),

		Approved: factory.NewCounter(prometheus.CounterOpts{
			Name: "land_registry_parcels_approved_total",
			Help: "Total parcels approved and fingerprinted",
		}),

		StateConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_state_conflicts_total",
			Help: "Operations rejected because of the parcel's lifecycle state",
		}, []string{"reason"}), // reason: "already_verified", "immutable", "concurrent_change"

		VerifyLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "land_registry_verify_lookups_total",
			Help: "Public verification lookups by key and outcome",
		}, []string{"key", "outcome"}), // key: "land_id", "fingerprint"; outcome: "found", "not_found", "error"

		ViewCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "land_registry_view_cache_hits_total",
			Help: "Verification lookups served from the public view cache",
		}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "land_registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// IncrementSubmitted records a new submission.
func (m *Metrics) IncrementSubmitted() {
	if m != nil {
		m.Submitted.Inc()
	}
}

// IncrementApproved records an approval.
func (m *Metrics) IncrementApproved() {
	if m != nil {
		m.Approved.Inc()
	}
}

// IncrementStateConflict records an operation rejected by the lifecycle.
func (m *Metrics) IncrementStateConflict(reason string) {
	if m != nil {
		m.StateConflicts.WithLabelValues(reason).Inc()
	}
}

// IncrementVerifyLookup records a public lookup.
func (m *Metrics) IncrementVerifyLookup(key, outcome string) {
	if m != nil {
		m.VerifyLookups.WithLabelValues(key, outcome).Inc()
	}
}

// IncrementViewCacheHit records a lookup answered from the cache.
func (m *Metrics) IncrementViewCacheHit() {
	if m != nil {
		m.ViewCacheHits.Inc()
	}
}

// ObserveOperation records the time elapsed since start for op.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
