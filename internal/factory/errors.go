package factory

import "errors"

var (
	// ErrNotInitialized is returned by repository accessors before
	// Initialize has run, or after Cleanup.
	ErrNotInitialized = errors.New("storage not initialized")

	// ErrNotImplemented is returned when the active engine does not
	// support the requested repository. Direct citation-record access
	// exists only on the relational engine.
	ErrNotImplemented = errors.New("not supported by the active storage engine")

	// ErrBusy is returned when an exclusive storage operation (engine
	// switch, migration) is already in progress.
	ErrBusy = errors.New("storage operation already in progress")
)
