package references

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/receiptvault/internal/dbx"
)

// PostgresStore implements Store over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresStore struct {
	db dbx.DBTX
}

// NewPostgresStore constructs a store bound to the given DBTX.
func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindActiveReferencesByOwner returns the receipt paths of all active
// transactions owned by ownerID. Transactions without an attachment are
// skipped.
func (s *PostgresStore) FindActiveReferencesByOwner(ctx context.Context, ownerID int64) ([]string, error) {
	query := `
		SELECT receipt_path FROM transactions
		WHERE user_id = $1 AND is_active AND receipt_path <> ''
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select references: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

// HasActiveReferenceContaining reports whether any active reference path
// contains fragment. This is deliberately a substring match, not an
// exact lookup: stored paths may carry URL or root prefixes around the
// object key. One key being a substring of another would produce a false
// positive; the token in generated keys makes that improbable.
func (s *PostgresStore) HasActiveReferenceContaining(ctx context.Context, fragment string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE is_active AND receipt_path LIKE '%' || $1 || '%'
		)
	`
	var found bool
	if err := s.db.QueryRowContext(ctx, query, fragment).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return found, nil
}
