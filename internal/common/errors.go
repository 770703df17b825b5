// Package common defines shared sentinel errors used across the storage
// core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository/backend-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrStorage marks backend I/O failures. Distinct from validation
	// errors so callers can tell bad input from infrastructure failure;
	// safe to retry at the caller's discretion.
	ErrStorage = errors.New("storage error")

	// Access-control errors.
	ErrPermissionDenied = errors.New("permission denied")

	// Path construction errors.
	ErrUnsafePath = errors.New("unsafe path")
)
