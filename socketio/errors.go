package socketio

import "errors"

var (
	// ErrUnknownPacketType is returned when a packet type code is outside of the protocol range.
	ErrUnknownPacketType = errors.New("socketio: unknown packet type")
	// ErrMalformedFrame is returned when a multi-packet frame has a broken length prefix.
	ErrMalformedFrame = errors.New("socketio: malformed frame")
	// ErrUnknownTransport is returned for transports this server does not speak.
	ErrUnknownTransport = errors.New("socketio: unknown transport")
	// ErrSessionNotFound is returned when a session id is not (or no longer) registered.
	ErrSessionNotFound = errors.New("socketio: session not found")
	// ErrConnClosed is returned when writing to a connection that is already closed.
	ErrConnClosed = errors.New("socketio: connection closed")
	// ErrInvalidOptions is returned by Options.Validate.
	ErrInvalidOptions = errors.New("socketio: invalid options")
)
