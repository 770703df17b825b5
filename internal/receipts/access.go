package receipts

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/receiptvault/internal/pathsafe"
	"github.com/dmitrijs2005/receiptvault/internal/references"
)

// Principal is an authenticated caller. Authentication itself happens in
// the web layer; this core only receives the resulting identity.
type Principal struct {
	ID int64
}

// AccessController decides whether a principal may read an object key.
type AccessController struct {
	refs references.Store
}

func NewAccessController(refs references.Store) *AccessController {
	return &AccessController{refs: refs}
}

// CanAccess grants access only when both hold: the key lives in the
// principal's own namespace, and the record store has an active
// reference of the principal whose path equals or contains the key.
func (a *AccessController) CanAccess(ctx context.Context, key string, p Principal) (bool, error) {
	if !strings.HasPrefix(key, pathsafe.OwnerPrefix(p.ID)) {
		return false, nil
	}
	paths, err := a.refs.FindActiveReferencesByOwner(ctx, p.ID)
	if err != nil {
		return false, err
	}
	for _, path := range paths {
		if path == key || strings.Contains(path, key) {
			return true, nil
		}
	}
	return false, nil
}
