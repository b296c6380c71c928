// Package dto provides the fleet manager's data transfer objects: the
// client/manager domain model and the notification payload schemas
// published to the configured delivery backends.
package dto

import "time"

// ClientStatus is the liveness state of a remote client as reported on its
// out/status topic.
type ClientStatus int

const (
	// StatusUnknown is the status of a client that has never reported.
	StatusUnknown ClientStatus = iota
	// StatusOnline means the client last reported "online".
	StatusOnline
	// StatusOffline means the client last reported "offline".
	StatusOffline
)

// String renders the wire representation of a ClientStatus.
func (s ClientStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// ParseClientStatus decodes the wire payload of a client out/status message.
func ParseClientStatus(s string) (ClientStatus, bool) {
	switch s {
	case "online":
		return StatusOnline, true
	case "offline":
		return StatusOffline, true
	default:
		return StatusUnknown, false
	}
}

// ClientInfo is the in-memory record tracked per remote client, created
// lazily on first observation and never destroyed within a session.
type ClientInfo struct {
	ID     string
	Status ClientStatus

	Heartbeat    int64 // last reported epoch seconds
	HasHeartbeat bool

	Hardware string

	MonitoredGPIO []string

	BufferTotalDroppedItem int64
	HasDroppedItem         bool

	GPIO map[string]int

	LastSeenAt time.Time
}

// NewClientInfo creates a ClientInfo with status unknown and all counters
// zeroed, per spec.md §3's lifecycle rule.
func NewClientInfo(id string) *ClientInfo {
	return &ClientInfo{
		ID:     id,
		Status: StatusUnknown,
		GPIO:   make(map[string]int),
	}
}
