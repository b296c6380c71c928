package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Notification is the tagged-sum-type contract for every manager event that
// can be fanned out to a delivery backend (spec.md §3, §6.4). Kind returns a
// stable discriminant used for per-event recipient-list lookups
// (notify_<event>_recipients); MarshalJSON renders the fixed payload schema
// for that variant. Every field of a variant's schema is always rendered,
// zero values included; none of them is ever null.
type Notification interface {
	Kind() string
	json.Marshaler
}

// ManagerStarting is emitted once, at process start.
type ManagerStarting struct {
	ID        string
	StartedAt time.Time
}

func (ManagerStarting) Kind() string { return "manager_starting" }

func (n ManagerStarting) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string    `json:"id"`
		StartedAt time.Time `json:"started_at"`
	}{n.ID, n.StartedAt})
}

// ManagerExiting is emitted once, just before the process exits.
type ManagerExiting struct {
	ID          string
	RunDuration time.Duration
}

func (ManagerExiting) Kind() string { return "manager_exiting" }

func (n ManagerExiting) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string `json:"id"`
		RunDuration string `json:"run_duration"`
	}{n.ID, formatISO8601Duration(n.RunDuration)})
}

// MqttStillConnecting is emitted periodically while the session sits in
// Connecting/Backoff.
type MqttStillConnecting struct {
	ID             string
	Server         string
	ElapsedSeconds float64
}

func (MqttStillConnecting) Kind() string { return "mqtt_still_connecting" }

func (n MqttStillConnecting) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string  `json:"id"`
		Server         string  `json:"server"`
		ElapsedSeconds float64 `json:"elapsed_seconds"`
	}{n.ID, n.Server, n.ElapsedSeconds})
}

// MqttConnected is emitted on successful CONNACK.
type MqttConnected struct {
	ID     string
	Server string
}

func (MqttConnected) Kind() string { return "mqtt_connected" }

func (n MqttConnected) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID     string `json:"id"`
		Server string `json:"server"`
	}{n.ID, n.Server})
}

// MqttDisconnected is emitted whenever a previously-established session
// drops, per spec.md §7.
type MqttDisconnected struct {
	ID     string
	Server string
}

func (MqttDisconnected) Kind() string { return "mqtt_disconnected" }

func (n MqttDisconnected) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID     string `json:"id"`
		Server string `json:"server"`
	}{n.ID, n.Server})
}

// ClientHeartbeatSkewed is emitted when a client heartbeat's reported epoch
// seconds diverges from the manager's wall clock by more than the
// configured max skew.
type ClientHeartbeatSkewed struct {
	Client  string
	Skew    time.Duration
	MaxSkew time.Duration
}

func (ClientHeartbeatSkewed) Kind() string { return "client_heartbeat_skewed" }

func (n ClientHeartbeatSkewed) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Client  string  `json:"client"`
		Skew    float64 `json:"skew"`
		MaxSkew float64 `json:"max_skew"`
	}{n.Client, n.Skew.Seconds(), n.MaxSkew.Seconds()})
}

// ClientHeartbeatMissed is emitted on the fresh-to-stale watchdog transition.
type ClientHeartbeatMissed struct {
	Client         string
	ElapsedSeconds float64
}

func (ClientHeartbeatMissed) Kind() string { return "client_heartbeat_missed" }

func (n ClientHeartbeatMissed) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Client         string  `json:"client"`
		ElapsedSeconds float64 `json:"elapsed_seconds"`
	}{n.Client, n.ElapsedSeconds})
}

// ClientDroppedItems is emitted when buffer_total_dropped_item increases.
type ClientDroppedItems struct {
	Client string
}

func (ClientDroppedItems) Kind() string { return "client_dropped_items" }

func (n ClientDroppedItems) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Client string `json:"client"`
	}{n.Client})
}

// ClientStatusChange is emitted on an online/offline status transition.
type ClientStatusChange struct {
	Client string
}

func (ClientStatusChange) Kind() string { return "client_status_change" }

func (n ClientStatusChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Client string `json:"client"`
	}{n.Client})
}

// ClientGpioChange is emitted on a GPIO level transition.
type ClientGpioChange struct {
	Client    string
	GPIOName  string
	GPIOIsSet bool
}

func (ClientGpioChange) Kind() string { return "client_gpio_change" }

func (n ClientGpioChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Client    string `json:"client"`
		GPIOName  string `json:"gpio_name"`
		GPIOIsSet bool   `json:"gpio_is_set"`
	}{n.Client, n.GPIOName, n.GPIOIsSet})
}

// formatISO8601Duration renders d in the ISO-8601 "PT...H...M...S" form used
// by ManagerExiting.run_duration.
func formatISO8601Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int64(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	out := "PT"
	if hours > 0 {
		out += fmt.Sprintf("%dH", hours)
	}
	if minutes > 0 {
		out += fmt.Sprintf("%dM", minutes)
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		out += fmt.Sprintf("%dS", seconds)
	}
	return out
}
