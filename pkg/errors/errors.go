// Package errors holds the sentinel errors shared by the storage, service
// and API layers. Packages wrap them to add context; the API maps them to
// status codes.
package errors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrEmptyKey    = errors.New("empty key")
	ErrInvalidData = errors.New("invalid data type")
	ErrMalformed   = errors.New("malformed entity")
	// ErrConflict reports a request that is valid but clashes with the
	// current state of a run.
	ErrConflict = errors.New("conflicts with current state")
)
