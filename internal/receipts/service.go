// Package receipts is the interface this core exposes to the invoking
// web/API layer: validated uploads into a storage backend and
// access-controlled read URLs.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/receiptvault/internal/common"
	"github.com/dmitrijs2005/receiptvault/internal/logging"
	"github.com/dmitrijs2005/receiptvault/internal/metrics"
	"github.com/dmitrijs2005/receiptvault/internal/pathsafe"
	"github.com/dmitrijs2005/receiptvault/internal/references"
	"github.com/dmitrijs2005/receiptvault/internal/storage"
	"github.com/dmitrijs2005/receiptvault/internal/validation"
)

// Service wires the validator, the path builder, the access controller
// and a storage backend into the upload and read-URL operations.
type Service struct {
	backend   storage.Backend
	access    *AccessController
	validator *validation.Validator
	log       logging.Logger
	metrics   *metrics.Metrics
}

func NewService(backend storage.Backend, refs references.Store, validator *validation.Validator, log logging.Logger, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		backend:   backend,
		access:    NewAccessController(refs),
		validator: validator,
		log:       log,
		metrics:   m,
	}
}

// ValidateAndSave checks the upload and, if it passes, stores it under a
// fresh tokenized key in the owner's namespace. Validation failures are
// returned as *validation.Error and never reach the backend; backend
// failures carry common.ErrStorage.
func (s *Service) ValidateAndSave(ctx context.Context, ownerID int64, filename, declaredType string, size int64, r io.ReadSeeker) (string, error) {
	if err := s.validator.Validate(ctx, filename, declaredType, size, r); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			s.metrics.ValidationTotal.WithLabelValues(verr.Rule).Inc()
			s.log.Warn(ctx, "upload rejected", "owner", ownerID, "filename", filename, "rule", verr.Rule)
		}
		return "", err
	}
	s.metrics.ValidationTotal.WithLabelValues("accepted").Inc()

	// Validation consumed a read cursor; rewind before handing the
	// stream to the backend.
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload stream: %w", err)
	}

	key, err := pathsafe.BuildObjectKey(ownerID, filename)
	if err != nil {
		return "", err
	}
	finalKey, err := s.backend.Save(ctx, key, r, size, declaredType)
	if err != nil {
		return "", err
	}
	s.log.Info(ctx, "receipt stored", "owner", ownerID, "key", finalKey, "size", size)
	return finalKey, nil
}

// IssueReadURL returns a read URL for key after the access check. On
// denial it returns common.ErrPermissionDenied and never touches the
// backend's URL path; a dead or empty URL is never silently returned.
func (s *Service) IssueReadURL(ctx context.Context, key string, p Principal, ttl time.Duration) (string, error) {
	ok, err := s.access.CanAccess(ctx, key, p)
	if err != nil {
		return "", fmt.Errorf("access check for %q: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: principal %d may not read %q", common.ErrPermissionDenied, p.ID, key)
	}
	return s.backend.IssueURL(ctx, key, ttl)
}
