package dto

import "time"

// ManagerInfo is the manager's own identity for one run of the process.
type ManagerInfo struct {
	ClientID  string
	StartedAt time.Time
}
