// Package constants holds the fleet manager's fixed MQTT topic grammar
// tokens and its one typed event-bus topic.
package constants

import (
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
)

const (
	// SegManager is the top-level "manager" topic segment.
	SegManager = "manager"
	// SegManagerStatus is the manager's "status" category segment.
	SegManagerStatus = "status"
	// SegClient is the top-level "client" topic segment.
	SegClient = "client"
	// SegClientOut is the outbound-from-client direction segment.
	SegClientOut = "out"
	// SegClientIn is the inbound-to-client direction segment (reserved).
	SegClientIn = "in"

	// CatStatus is the client status category.
	CatStatus = "status"
	// CatHeartbeat is the client heartbeat category.
	CatHeartbeat = "heartbeat"
	// CatBufferTotalDroppedItem is the dropped-buffer-item counter category.
	CatBufferTotalDroppedItem = "buffer_total_dropped_item"
	// CatMonitoredGPIO is the monitored-GPIO-name-list category.
	CatMonitoredGPIO = "monitored_gpio"
	// CatGPIO is the per-GPIO-name level category.
	CatGPIO = "gpio"

	// StatusOnline is the wire payload for an online status message.
	StatusOnline = "online"
	// StatusOffline is the wire payload for an offline status message.
	StatusOffline = "offline"
)

// TopicNotification is the typed event-bus topic the router publishes
// dto.Notification values on; notify.Sink subscribes to fan them out.
var TopicNotification = domain.NewTopic[dto.Notification]("notification")
