package router

import "fmt"

// FormatError reports a payload or topic that could not be decoded
// according to the grammar (spec.md §7's MessageFormatError). The session
// layer wraps these as HandlerError before logging and continuing.
type FormatError struct {
	Topic  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("message format error on %s: %s", e.Topic, e.Reason)
}
