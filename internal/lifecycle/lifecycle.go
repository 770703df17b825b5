// Package lifecycle implements the batched cleanup scans over a storage
// backend: orphan detection, retention expiration, account deletion, and
// bulk encryption key rotation.
//
// Scans are advisory batch jobs driven by an external scheduler. They
// page through listings via continuation tokens, check for cancellation
// between pages, and treat per-object failures as partial success: the
// scan always completes and returns its report.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/receiptvault/internal/logging"
	"github.com/dmitrijs2005/receiptvault/internal/metrics"
	"github.com/dmitrijs2005/receiptvault/internal/pathsafe"
	"github.com/dmitrijs2005/receiptvault/internal/references"
	"github.com/dmitrijs2005/receiptvault/internal/storage"
)

// Mode identifies a cleanup scan type.
type Mode string

const (
	ModeOrphaned Mode = "orphaned"
	ModeExpired  Mode = "expired"
	ModeUser     Mode = "user"
)

const (
	// DefaultGracePeriod is the minimum object age before orphan
	// deletion. It is the sole mitigation for the race between a fresh
	// upload and its reference being committed.
	DefaultGracePeriod = 24 * time.Hour

	// DefaultRetentionDays is the unconditional expiration age.
	DefaultRetentionDays = 365
)

// Report is the outcome of one scan invocation. Not persisted.
type Report struct {
	Mode   Mode
	DryRun bool
	// Marked is how many objects qualified for deletion.
	Marked int
	// Deleted is the number of deletions performed; under dry-run it is
	// the would-delete count and equals Marked.
	Deleted int
	// BytesReclaimed sums the sizes of deleted (or would-be deleted)
	// objects.
	BytesReclaimed int64
	// Candidates lists the affected keys, for dry-run inspection.
	Candidates []string
	// Errors records per-object failures. A non-empty slice with
	// Deleted < Marked is partial success, not a hard abort.
	Errors []string
}

// Config carries the scan parameters. Passed in at construction rather
// than read from ambient globals so the manager stays testable.
type Config struct {
	GracePeriod   time.Duration
	RetentionDays int
	BatchSize     int
	// ExcludeReferenced makes the expiration scan skip objects that
	// still have an active reference. Off by default: the historical
	// behavior deletes referenced-but-old objects too.
	ExcludeReferenced bool
}

// Manager runs cleanup scans against one backend and the external
// record store.
type Manager struct {
	backend storage.Backend
	refs    references.Store
	cfg     Config
	log     logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewManager(backend storage.Backend, refs references.Store, cfg Config, log logging.Logger, m *metrics.Metrics) *Manager {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultPageSize
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Manager{
		backend: backend,
		refs:    refs,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// CleanOrphaned deletes objects with no active reference that are older
// than the grace period. The reference check is a containment match
// against stored reference paths, consulted per object.
func (m *Manager) CleanOrphaned(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{Mode: ModeOrphaned, DryRun: dryRun}
	graceCutoff := m.now().Add(-m.cfg.GracePeriod)

	err := m.scan(ctx, pathsafe.RootPrefix, func(obj storage.ObjectInfo) {
		if obj.LastModified.After(graceCutoff) {
			return
		}
		referenced, err := m.refs.HasActiveReferenceContaining(ctx, obj.Key)
		if err != nil {
			// Unsure means keep: never delete on a record-store failure.
			report.Errors = append(report.Errors, fmt.Sprintf("%s: reference check: %v", obj.Key, err))
			m.metrics.CleanupErrors.WithLabelValues(string(ModeOrphaned)).Inc()
			return
		}
		if referenced {
			return
		}
		m.mark(ctx, report, obj)
	})
	m.logReport(ctx, report)
	return report, err
}

// CleanExpired deletes every object older than the retention window.
// The historical behavior does not consult the reference store, so an
// actively referenced object past retention is deleted too; set
// Config.ExcludeReferenced to opt out of that.
func (m *Manager) CleanExpired(ctx context.Context, retentionDays int, dryRun bool) (*Report, error) {
	if retentionDays <= 0 {
		retentionDays = m.cfg.RetentionDays
	}
	report := &Report{Mode: ModeExpired, DryRun: dryRun}
	cutoff := m.now().AddDate(0, 0, -retentionDays)

	err := m.scan(ctx, pathsafe.RootPrefix, func(obj storage.ObjectInfo) {
		if !obj.LastModified.Before(cutoff) {
			return
		}
		if m.cfg.ExcludeReferenced {
			referenced, err := m.refs.HasActiveReferenceContaining(ctx, obj.Key)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: reference check: %v", obj.Key, err))
				m.metrics.CleanupErrors.WithLabelValues(string(ModeExpired)).Inc()
				return
			}
			if referenced {
				return
			}
		}
		m.mark(ctx, report, obj)
	})
	m.logReport(ctx, report)
	return report, err
}

// CleanUser deletes every object in the user's namespace,
// unconditionally. After a non-dry-run pass with at least one deletion
// the emptied namespace directory is removed where the backend supports
// it; that removal is best-effort and failures are only logged.
func (m *Manager) CleanUser(ctx context.Context, userID int64, dryRun bool) (*Report, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("lifecycle: user id must be positive")
	}
	report := &Report{Mode: ModeUser, DryRun: dryRun}
	prefix := pathsafe.OwnerPrefix(userID)

	err := m.scan(ctx, prefix, func(obj storage.ObjectInfo) {
		m.mark(ctx, report, obj)
	})

	if err == nil && !dryRun && report.Deleted > 0 {
		if nc, ok := m.backend.(storage.NamespaceCleaner); ok {
			if rmErr := nc.RemoveNamespace(ctx, prefix); rmErr != nil {
				m.log.Warn(ctx, "namespace cleanup skipped", "prefix", prefix, "error", rmErr)
			}
		}
	}
	m.logReport(ctx, report)
	return report, err
}

// RotationReport is the outcome of a bulk key rotation.
type RotationReport struct {
	Rotated int
	Failed  int
	Errors  []string
}

// RotateKeys re-wraps every object under receipts/ from oldKeyID to
// newKeyID. A single object failure does not halt the bulk operation.
func (m *Manager) RotateKeys(ctx context.Context, oldKeyID, newKeyID string) (*RotationReport, error) {
	rotator, ok := m.backend.(storage.Rotator)
	if !ok {
		return nil, fmt.Errorf("lifecycle: backend does not support key rotation")
	}
	report := &RotationReport{}
	err := m.scan(ctx, pathsafe.RootPrefix, func(obj storage.ObjectInfo) {
		if err := rotator.RotateEncryptionKey(ctx, obj.Key, oldKeyID, newKeyID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", obj.Key, err))
			m.metrics.RotationTotal.WithLabelValues("failed").Inc()
			m.log.Error(ctx, "key rotation failed", "key", obj.Key, "error", err)
			return
		}
		report.Rotated++
		m.metrics.RotationTotal.WithLabelValues("rotated").Inc()
	})
	m.log.Info(ctx, "key rotation finished",
		"rotated", report.Rotated, "failed", report.Failed)
	return report, err
}

// scan pages through prefix, invoking visit per object. Cancellation is
// checked between pages; prior pages' work stays committed, which keeps
// an aborted scan resumable.
func (m *Manager) scan(ctx context.Context, prefix string, visit func(storage.ObjectInfo)) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := m.backend.ListPrefix(ctx, prefix, token, m.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			visit(obj)
		}
		if page.NextToken == "" {
			return nil
		}
		token = page.NextToken
	}
}

// mark records obj as a deletion candidate and deletes it unless the
// report is a dry run. Delete failures are recorded and skipped; the
// scan moves on.
func (m *Manager) mark(ctx context.Context, report *Report, obj storage.ObjectInfo) {
	report.Marked++
	report.Candidates = append(report.Candidates, obj.Key)
	if report.DryRun {
		report.Deleted++
		report.BytesReclaimed += obj.Size
		return
	}
	if err := m.backend.Delete(ctx, obj.Key); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", obj.Key, err))
		m.metrics.CleanupErrors.WithLabelValues(string(report.Mode)).Inc()
		m.log.Error(ctx, "delete failed", "mode", report.Mode, "key", obj.Key, "error", err)
		return
	}
	report.Deleted++
	report.BytesReclaimed += obj.Size
	m.metrics.CleanupDeleted.WithLabelValues(string(report.Mode)).Inc()
}

func (m *Manager) logReport(ctx context.Context, report *Report) {
	m.log.Info(ctx, "cleanup scan finished",
		"mode", report.Mode,
		"dry_run", report.DryRun,
		"marked", report.Marked,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
	)
}
