package hub

// Socket is the Room's view of one client connection.
type Socket interface {
	// ID returns the connection id, unique for the life of the process.
	ID() string
	// Send queues data for delivery without blocking. It returns false when
	// the frame was dropped.
	Send(data []byte) bool
	// Close terminates the connection with a human-readable reason.
	Close(reason string)
}

// LeaveReason records why a connection left its room.
type LeaveReason string

const (
	LeaveClosed   LeaveReason = "closed"
	LeaveError    LeaveReason = "error"
	LeaveShutdown LeaveReason = "shutdown"
)
