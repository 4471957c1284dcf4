package chat

import "errors"

// Failure kinds surfaced by the chat core. Callers match them with errors.Is;
// the returned errors carry context such as the room or member involved.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidFrame     = errors.New("invalid frame")
)
