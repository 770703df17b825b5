// Package references reads the external record store (the transactions
// database) that is the sole source of truth for whether a stored
// receipt is still needed. This core never writes references.
package references

import "context"

// Store is the read-only query surface consumed by the access controller
// and the lifecycle manager.
type Store interface {
	// FindActiveReferencesByOwner returns the stored receipt paths of
	// every active reference belonging to ownerID.
	FindActiveReferencesByOwner(ctx context.Context, ownerID int64) ([]string, error)

	// HasActiveReferenceContaining reports whether any active reference
	// path contains fragment as a substring.
	HasActiveReferenceContaining(ctx context.Context, fragment string) (bool, error)
}
