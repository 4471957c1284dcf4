package chathub

import "errors"

var (
	// ErrSessionClosed is returned by Send once the session has been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned when a slow client cannot keep up; the
	// session is closed and will be unregistered by its own disconnect.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Session is one live connection, scoped to exactly one room for its lifetime.
// It abstracts the underlying transport so the hub and the registry can be
// driven by WebSocket connections and test doubles alike.
type Session interface {
	// ID returns a process-unique identifier of the connection.
	ID() string
	// Identity returns the authenticated member identity of the connection.
	Identity() string
	// RoomID returns the room the session was opened for.
	RoomID() uint

	// Send queues payload for delivery. It must not block and must not touch
	// the registry.
	Send(payload []byte) error
	// Close shuts the connection down. It is safe to call more than once.
	Close()
}
