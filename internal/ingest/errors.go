package ingest

import (
	"errors"
	"fmt"
)

// ErrUnknownSource marks an ingest request for a source id that is not in
// the registry.
var ErrUnknownSource = errors.New("unknown source")

// PublishError marks an item whose raw write committed but whose queue
// publish failed. The item is lost to the queue, not to the system: the raw
// copy stays recoverable through manual reprocessing.
type PublishError struct {
	ItemID string
	RawRef string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish item %s (raw %s): %v", e.ItemID, e.RawRef, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
