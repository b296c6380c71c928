// Package router implements the MessageRouter (spec.md §4.C): it decodes
// inbound MQTT messages via topiccodec, applies them to the ClientRegistry,
// and publishes the resulting dto.Notification values onto the event bus.
//
// Grounded on original_source/brain/src/gcn_manager/brain.py's
// ClientMessageHandler / ManagerMessageHandler class hierarchy. The Python
// original's `dropped += 1  # fixme: debug` bug in handle_buffer_dropped is
// deliberately not reproduced here, and handle_monitored_gpio is fully
// implemented rather than left as the original's NOT IMPLEMENTED stub.
package router

import (
	"strconv"
	"strings"
	"time"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/logger"
	"github.com/nipil/gcn-manager/daemon/services/registry"
	"github.com/nipil/gcn-manager/daemon/services/topiccodec"
)

// Publisher is the slice of MqttSession the router needs: the ability to
// clear a retained topic when a peer manager reports itself offline.
type Publisher interface {
	ClearTopic(topic string, qos byte) error
}

// Router is the MessageRouter.
type Router struct {
	app      string
	selfID   string
	registry *registry.Registry
	hub      *domain.EventBus
	maxSkew  time.Duration
	now      func() time.Time
}

// New creates a Router publishing onto hub and mutating registry. selfID is
// this manager's own client id, used to ignore the broker's echo of our own
// retained manager-status message (spec.md §4.C step 2).
func New(app, selfID string, reg *registry.Registry, hub *domain.EventBus, maxSkew time.Duration) *Router {
	return &Router{app: app, selfID: selfID, registry: reg, hub: hub, maxSkew: maxSkew, now: time.Now}
}

// Route decodes topic/payload and applies it, publishing zero or more
// notifications. A FormatError (including an unknown client category) is
// returned to the caller, which wraps it as a HandlerError and logs it;
// Route never panics and never blocks a subsequent message.
func (r *Router) Route(topic string, payload []byte, pub Publisher) error {
	parsed := topiccodec.Parse(r.app, topic)

	switch p := parsed.(type) {
	case topiccodec.ClientOut:
		r.registry.GetOrCreate(p.ClientID)
		r.registry.Touch(p.ClientID, r.now())
		return r.handleClientOut(p, payload)
	case topiccodec.ClientIn:
		logger.Warning("dropping inbound client message on reserved topic %s", topic)
		return nil
	case topiccodec.ManagerStatus:
		return r.handleManagerStatus(p, topic, payload, pub)
	default:
		return &FormatError{Topic: topic, Reason: "unrecognized topic"}
	}
}

func (r *Router) handleClientOut(p topiccodec.ClientOut, payload []byte) error {
	switch p.Category {
	case constants.CatStatus:
		return r.handleStatus(p.ClientID, payload)
	case constants.CatHeartbeat:
		return r.handleHeartbeat(p.ClientID, payload)
	case constants.CatBufferTotalDroppedItem:
		return r.handleDropped(p.ClientID, payload)
	case constants.CatMonitoredGPIO:
		return r.handleMonitoredGPIO(p.ClientID, payload)
	case constants.CatGPIO:
		return r.handleGPIO(p.ClientID, p.Rest, payload)
	default:
		return &FormatError{Topic: p.ClientID, Reason: "unknown client category " + p.Category}
	}
}

func (r *Router) handleStatus(clientID string, payload []byte) error {
	status, ok := dto.ParseClientStatus(strings.TrimSpace(string(payload)))
	if !ok {
		return &FormatError{Topic: clientID, Reason: "invalid status payload"}
	}
	res := r.registry.UpdateStatus(clientID, status)
	if res.Changed {
		domain.Publish(r.hub, constants.TopicNotification, dto.Notification(dto.ClientStatusChange{Client: clientID}))
	}
	return nil
}

func (r *Router) handleHeartbeat(clientID string, payload []byte) error {
	value, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 10, 64)
	if err != nil {
		return &FormatError{Topic: clientID, Reason: "invalid heartbeat payload"}
	}
	now := r.now()
	logger.Debug("Got heartbeat %d for %s", value, clientID)
	res := r.registry.UpdateHeartbeat(clientID, value, now, r.maxSkew)
	if res.Skewed {
		domain.Publish(r.hub, constants.TopicNotification, dto.Notification(dto.ClientHeartbeatSkewed{
			Client:  clientID,
			Skew:    res.Skew,
			MaxSkew: r.maxSkew,
		}))
	}
	return nil
}

func (r *Router) handleDropped(clientID string, payload []byte) error {
	value, err := strconv.ParseInt(strings.TrimSpace(string(payload)), 10, 64)
	if err != nil {
		return &FormatError{Topic: clientID, Reason: "invalid buffer_total_dropped_item payload"}
	}
	res := r.registry.UpdateDropped(clientID, value)
	if res.Increased {
		domain.Publish(r.hub, constants.TopicNotification, dto.Notification(dto.ClientDroppedItems{Client: clientID}))
	}
	return nil
}

// handleMonitoredGPIO stores the comma-separated list of GPIO names a
// client reports it watches. The original brain.py left this unimplemented
// (`NOT IMPLEMENTED`); spec.md §4.C requires it be handled.
func (r *Router) handleMonitoredGPIO(clientID string, payload []byte) error {
	text := strings.TrimSpace(string(payload))
	var names []string
	if text != "" {
		for _, name := range strings.Split(text, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	r.registry.UpdateMonitoredGPIO(clientID, names)
	return nil
}

func (r *Router) handleGPIO(clientID string, rest []string, payload []byte) error {
	if len(rest) != 1 || rest[0] == "" {
		return &FormatError{Topic: clientID, Reason: "gpio topic missing name"}
	}
	name := rest[0]
	level, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return &FormatError{Topic: clientID, Reason: "invalid gpio level payload"}
	}
	res := r.registry.UpdateGPIO(clientID, name, level)
	if res.Changed {
		domain.Publish(r.hub, constants.TopicNotification, dto.Notification(dto.ClientGpioChange{
			Client:    clientID,
			GPIOName:  name,
			GPIOIsSet: level != 0,
		}))
	}
	return nil
}

func (r *Router) handleManagerStatus(p topiccodec.ManagerStatus, topic string, payload []byte, pub Publisher) error {
	if p.ManagerID == r.selfID {
		logger.Debug("Ignoring echo of our own manager status on %s", topic)
		return nil
	}
	if len(payload) == 0 {
		logger.Debug("Empty manager status message for %s, ignoring cleanup", p.ManagerID)
		return nil
	}
	status := strings.TrimSpace(string(payload))
	switch status {
	case constants.StatusOnline:
		logger.Info("Manager %s detected online", p.ManagerID)
		return nil
	case constants.StatusOffline:
		logger.Info("Manager %s detected offline, clearing its status", p.ManagerID)
		return pub.ClearTopic(topic, 1)
	default:
		return &FormatError{Topic: topic, Reason: "unknown manager status " + status}
	}
}
