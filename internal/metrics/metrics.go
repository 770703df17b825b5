// Package metrics defines the Prometheus instruments exposed by the
// storage core. Instruments are registered against an injected
// Registerer rather than the global default, keeping components
// independently testable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters updated by the upload service and the
// lifecycle manager.
type Metrics struct {
	// ValidationTotal counts upload validations by result ("accepted" or
	// the violated rule).
	ValidationTotal *prometheus.CounterVec

	// CleanupDeleted counts objects deleted per cleanup mode. Dry runs
	// do not increment it.
	CleanupDeleted *prometheus.CounterVec

	// CleanupErrors counts per-object failures during cleanup scans.
	CleanupErrors *prometheus.CounterVec

	// RotationTotal counts key-rotation attempts by result.
	RotationTotal *prometheus.CounterVec
}

// New registers the instruments with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ValidationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_validation_total",
			Help: "Upload validations by result.",
		}, []string{"result"}),
		CleanupDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_cleanup_deleted_total",
			Help: "Objects deleted by cleanup scans, per mode.",
		}, []string{"mode"}),
		CleanupErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_cleanup_errors_total",
			Help: "Per-object failures during cleanup scans, per mode.",
		}, []string{"mode"}),
		RotationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptvault_key_rotation_total",
			Help: "Encryption key rotation attempts by result.",
		}, []string{"result"}),
	}
}

// NewNop returns instruments bound to a throwaway registry, for callers
// that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
