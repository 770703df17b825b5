// Package storage defines the backend contract for persisting receipt
// objects, shared listing types, and the key-availability fallback used
// when callers save under pre-chosen keys.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/receiptvault/internal/common"
	"github.com/dmitrijs2005/receiptvault/internal/pathsafe"
)

// DefaultPageSize bounds a single listing request.
const DefaultPageSize = 1000

// ObjectInfo is backend-native metadata for one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	// SSEKMSKeyID identifies the server-side encryption key on remote
	// backends; empty on local storage.
	SSEKMSKeyID string
}

// ListPage is one page of a prefix listing. NextToken is an opaque
// continuation cursor; empty means the listing is exhausted.
type ListPage struct {
	Objects   []ObjectInfo
	NextToken string
}

// Backend persists receipt objects. All calls are synchronous and
// blocking; remote implementations must honor ctx cancellation.
//
// Validation happens upstream: content reaching Save is already checked.
// I/O failures are wrapped with common.ErrStorage so callers can
// distinguish infrastructure failure from bad input.
type Backend interface {
	// Save writes content under key and returns the final key, which may
	// differ when the requested key was taken (see AvailableKey).
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// IssueURL returns a read URL for key. Remote backends return a
	// signed, time-bounded URL; the local backend returns a static path
	// and ignores ttl.
	IssueURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// ListPrefix returns one page of objects under prefix, resuming from
	// pageToken. pageSize <= 0 falls back to DefaultPageSize.
	ListPrefix(ctx context.Context, prefix, pageToken string, pageSize int) (*ListPage, error)
}

// NamespaceCleaner is implemented by backends that can remove an emptied
// owner namespace after a user-deletion sweep. Best-effort.
type NamespaceCleaner interface {
	RemoveNamespace(ctx context.Context, prefix string) error
}

// Rotator is implemented by backends supporting encryption key rotation
// via an in-place copy-to-self that re-wraps the object under a new key,
// content unchanged.
type Rotator interface {
	RotateEncryptionKey(ctx context.Context, key, oldKeyID, newKeyID string) error
}

// WrapErr tags a backend I/O failure with common.ErrStorage while
// preserving the underlying error chain.
func WrapErr(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, common.ErrStorage, err)
}

// AvailableKey resolves a pre-chosen key to a free one. If key is taken
// it appends a timestamp suffix before the extension and checks
// availability once more; a second collision within the same second is
// accepted as residual risk rather than retried further.
func AvailableKey(ctx context.Context, b Backend, key string, now time.Time) (string, error) {
	taken, err := b.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !taken {
		return key, nil
	}
	base, ext := pathsafe.SplitExt(key)
	candidate := fmt.Sprintf("%s_%s%s", base, now.UTC().Format("20060102_150405"), ext)
	if _, err := b.Exists(ctx, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}
