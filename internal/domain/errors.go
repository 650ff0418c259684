package domain

import "errors"

// Sentinel errors for the realtime layer. Callers check them with errors.Is.
var (
	// ErrRoomNotFound is returned when a request path does not name a valid room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrMalformedFrame is returned when a frame is not JSON or matches no known schema.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrStateNotFound is returned by state backends when nothing is attached under a key.
	ErrStateNotFound = errors.New("connection state not found")
	// ErrRoomClosed is returned when an operation targets a registry that has been shut down.
	ErrRoomClosed = errors.New("room registry closed")
)
