package process

import "fmt"

// ProcessingError wraps a failure while processing one queue message. The
// caller decides whether to retry via queue redelivery.
type ProcessingError struct {
	MessageID string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process message %s: %v", e.MessageID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
