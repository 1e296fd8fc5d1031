package storage

import "errors"

var (
	// ErrDuplicateFingerprint indicates a curated record with the same
	// fingerprint already exists. The database's unique constraint is the
	// dedup enforcement point, so concurrent inserts of the same content
	// surface as this error rather than as a second record.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)
