package repository

import "errors"

// Error taxonomy shared by every repository operation. Storage-engine
// errors never cross the repository boundary: each variant translates
// its driver errors into one of these sentinels (wrapped with an
// operation-specific message) or a plain wrapped failure.
var (
	// ErrNotFound indicates an operation targeted a specific entity
	// that does not exist. Update and Delete report absence via their
	// return values instead.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate indicates a uniqueness constraint was violated:
	// a DOI, or a (source, target) citation pair.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrInvalid indicates malformed input caught before it reached
	// storage.
	ErrInvalid = errors.New("invalid input")
)
