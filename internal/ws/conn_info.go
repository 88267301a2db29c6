package ws

import "time"

// ConnInfo describes one physical backend connection.
type ConnInfo struct {
	ConnID      string
	UserID      string
	URL         string
	Attempt     int
	ConnectedAt time.Time
}
