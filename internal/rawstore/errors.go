package rawstore

import "errors"

var (
	// ErrNotFound indicates the key does not exist in the raw store.
	ErrNotFound = errors.New("raw object not found")

	// ErrUnavailable indicates the raw store could not be reached.
	ErrUnavailable = errors.New("raw store unavailable")
)
