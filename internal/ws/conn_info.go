package ws

import "time"

// ConnInfo describes the transport side of a connection. UserID is the
// authenticated user, empty when auth is disabled.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
