// Package mqttsession owns one MQTT connection lifecycle (spec.md §4.D):
// connect, publish presence, subscribe, pump inbound messages to the
// router, drain, disconnect. A Supervisor constructs a fresh Session for
// every outer reconnect cycle and runs it to completion.
//
// Grounded on the teacher's daemon/services/mqtt/client.go (paho option
// setup, connect-with-context, handleConnect/handleDisconnect shape) and
// on original_source/brain/src/gcn_manager/mqtt.py's MqttApp (last-will
// setup, publish/clear_topic, start/stop lifecycle), generalized from a
// single always-on broker connection into the full retrying state machine
// spec.md §4.D requires.
package mqttsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/logger"
	"github.com/nipil/gcn-manager/daemon/services/router"
	"github.com/nipil/gcn-manager/daemon/services/topiccodec"
)

// Session is the MqttSession.
type Session struct {
	app             string
	managerClientID string
	managerTopic    string
	cfg             domain.Config
	router          *router.Router
	hub             *domain.EventBus

	mu         sync.Mutex
	state      State
	subscribed map[string]struct{}
	broker     string

	tracker *tracker
	client  pahomqtt.Client
	wg      sync.WaitGroup
}

// New creates a Session. The router, registry it wraps, and event bus are
// owned by the Supervisor and shared across reconnects, per spec.md §3's
// "a reconnect reuses the registry".
func New(cfg domain.Config, app, managerClientID string, rtr *router.Router, hub *domain.EventBus) *Session {
	return &Session{
		app:             app,
		managerClientID: managerClientID,
		managerTopic:    topiccodec.ComposeManagerStatus(app, managerClientID),
		cfg:             cfg,
		router:          rtr,
		hub:             hub,
		subscribed:      make(map[string]struct{}),
		tracker:         newTracker(),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the session through Connecting (retrying with backoff) to
// Connected, then blocks until ctx is cancelled (clean shutdown) or the
// broker connection is unexpectedly lost, finally reaching Closed or
// Failed. It returns ErrShutdownRequested on a clean shutdown, nil on an
// unexpected disconnect (the Supervisor decides whether to reconnect), or
// a *TlsError/*ProtocolError/*ConfigurationError on a fatal failure.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnecting)

	tlsConfig, err := buildTLSConfig(s.cfg)
	if err != nil {
		s.setState(StateFailed)
		return err
	}

	s.broker = buildBrokerURL(s.cfg, tlsConfig != nil)

	disconnected := make(chan error, 1)
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.broker)
	opts.SetClientID(s.managerClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(s.cfg.MQTTConnectTimeout)
	opts.SetKeepAlive(s.cfg.MQTTKeepAlive)
	if s.cfg.MQTTUsername != "" {
		opts.SetUsername(s.cfg.MQTTUsername)
	}
	if s.cfg.MQTTPassword != "" {
		opts.SetPassword(s.cfg.MQTTPassword)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	opts.SetWill(s.managerTopic, constants.StatusOffline, 1, true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		select {
		case disconnected <- err:
		default:
		}
	})

	s.client = pahomqtt.NewClient(opts)

	connectStart := time.Now()
	watchdogStop := make(chan struct{})
	go s.stillConnectingWatchdog(connectStart, watchdogStop)

	if err := s.connectWithBackoff(ctx); err != nil {
		close(watchdogStop)
		if err == ErrShutdownRequested {
			s.setState(StateClosed)
		} else {
			s.setState(StateFailed)
		}
		return err
	}
	close(watchdogStop)

	s.setState(StateConnected)
	logger.Success("MQTT: connected to %s", s.broker)
	domain.Publish(s.hub, constants.TopicNotification, dto.Notification(dto.MqttConnected{
		ID: s.managerClientID, Server: s.broker,
	}))

	if err := s.publishManagerStatus(true); err != nil {
		logger.Warning("MQTT: failed to publish online status: %v", err)
	}
	if err := s.Subscribe(topiccodec.SubscriptionManagerStatus(s.app), 1); err != nil {
		logger.Warning("MQTT: failed to subscribe to manager status: %v", err)
	}
	if err := s.Subscribe(topiccodec.SubscriptionClient(s.app), 1); err != nil {
		logger.Warning("MQTT: failed to subscribe to client topics: %v", err)
	}

	select {
	case <-ctx.Done():
		return s.drain()
	case err := <-disconnected:
		logger.Warning("MQTT: unexpected disconnect: %v", err)
		s.setState(StateClosed)
		domain.Publish(s.hub, constants.TopicNotification, dto.Notification(dto.MqttDisconnected{
			ID: s.managerClientID, Server: s.broker,
		}))
		return nil
	}
}

// connectWithBackoff issues Connect() attempts until one succeeds, ctx is
// cancelled, or a fatal (TLS/protocol) error occurs.
func (s *Session) connectWithBackoff(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ErrShutdownRequested
		default:
		}

		token := s.client.Connect()
		var attemptErr error
		if !token.WaitTimeout(s.cfg.MQTTConnectTimeout + time.Second) {
			attemptErr = context.DeadlineExceeded
		} else {
			attemptErr = token.Error()
		}
		if attemptErr == nil {
			return nil
		}

		classified := classifyConnectError(attemptErr)
		switch classified.(type) {
		case *TlsError, *ProtocolError:
			return classified
		}

		s.setState(StateBackoff)
		delay := nextBackoff(attempt)
		attempt++
		logger.Warning("MQTT: connect attempt %d failed: %v, retrying in %s", attempt, attemptErr, delay)

		select {
		case <-ctx.Done():
			return ErrShutdownRequested
		case <-time.After(delay):
		}
		s.setState(StateConnecting)
	}
}

// drain implements Connected -> Draining -> Disconnecting -> Closed on a
// clean shutdown request.
func (s *Session) drain() error {
	s.setState(StateDraining)

	s.mu.Lock()
	topics := make([]string, 0, len(s.subscribed))
	for t := range s.subscribed {
		topics = append(topics, t)
	}
	s.mu.Unlock()
	for _, t := range topics {
		if err := s.Unsubscribe(t); err != nil {
			logger.Warning("MQTT: unsubscribe from %s during drain: %v", t, err)
		}
	}

	if err := s.publishManagerStatus(false); err != nil {
		logger.Warning("MQTT: failed to publish offline status during drain: %v", err)
	}

	s.wg.Wait() // no more writers pending

	s.setState(StateDisconnecting)
	s.client.Disconnect(250)
	s.setState(StateClosed)

	domain.Publish(s.hub, constants.TopicNotification, dto.Notification(dto.MqttDisconnected{
		ID: s.managerClientID, Server: s.broker,
	}))
	return ErrShutdownRequested
}

// Subscribe registers topic with the broker and wires its messages to the
// router. Idempotent: subscribing an already-subscribed topic is a no-op.
func (s *Session) Subscribe(topic string, qos byte) error {
	s.mu.Lock()
	if _, ok := s.subscribed[topic]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	id, corr := s.tracker.track(topic)
	token := s.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	token.Wait()
	s.tracker.ack(id)
	if err := token.Error(); err != nil {
		logger.Warning("MQTT: subscribe to %s failed (corr %s): %v", topic, corr, err)
		return err
	}

	s.mu.Lock()
	s.subscribed[topic] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes topic. Attempting to unsubscribe a topic that is not
// currently subscribed fails fast, per spec.md §4.D.
func (s *Session) Unsubscribe(topic string) error {
	s.mu.Lock()
	_, ok := s.subscribed[topic]
	if ok {
		delete(s.subscribed, topic)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unsubscribe: topic %s is not subscribed", topic)
	}

	id, corr := s.tracker.track(topic)
	token := s.client.Unsubscribe(topic)
	token.Wait()
	s.tracker.ack(id)
	if err := token.Error(); err != nil {
		logger.Warning("MQTT: unsubscribe from %s failed (corr %s): %v", topic, corr, err)
		return err
	}
	return nil
}

// Publish fire-and-forgets payload to topic: the call returns immediately
// and any ack failure is logged, never raised, per spec.md §4.D.
func (s *Session) Publish(topic string, payload []byte, qos byte, retain bool) {
	id, corr := s.tracker.track(topic)
	token := s.client.Publish(topic, qos, retain, payload)
	go func() {
		token.Wait()
		s.tracker.ack(id)
		if err := token.Error(); err != nil {
			logger.Warning("MQTT: publish to %s failed (corr %s): %v", topic, corr, err)
		}
	}()
}

// ClearTopic implements router.Publisher: it removes a retained message by
// publishing an empty payload with retain=true, waiting for the ack so the
// router's caller can log a failure if the broker rejects it.
func (s *Session) ClearTopic(topic string, qos byte) error {
	id, corr := s.tracker.track(topic)
	token := s.client.Publish(topic, qos, true, []byte{})
	token.Wait()
	s.tracker.ack(id)
	if err := token.Error(); err != nil {
		logger.Warning("MQTT: clear_topic %s failed (corr %s): %v", topic, corr, err)
		return err
	}
	return nil
}

// publishManagerStatus synchronously publishes this manager's retained
// status, waiting for the broker ack before returning (mirroring the
// original's info.wait_for_publish() before a clean disconnect).
func (s *Session) publishManagerStatus(online bool) error {
	payload := constants.StatusOffline
	if online {
		payload = constants.StatusOnline
	}
	id, corr := s.tracker.track(s.managerTopic)
	token := s.client.Publish(s.managerTopic, 1, true, payload)
	token.Wait()
	s.tracker.ack(id)
	if err := token.Error(); err != nil {
		logger.Warning("MQTT: publish manager status %s failed (corr %s): %v", payload, corr, err)
		return err
	}
	return nil
}

// handleMessage spawns a handler task for one inbound message. The
// session's wg is used to drain outstanding handlers on shutdown instead of
// the spec's idle_loop_sleep poll-and-reap loop: Go's WaitGroup gives the
// same "wait for short-lived outstanding work, no timeout" contract without
// manual bookkeeping.
func (s *Session) handleMessage(topic string, payload []byte) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.router.Route(topic, payload, s); err != nil {
			logger.Warning("%v", &HandlerError{Topic: topic, Err: err})
		}
	}()
}

// stillConnectingWatchdog emits MqttStillConnecting on the configured
// interval while the session is in Connecting or Backoff.
func (s *Session) stillConnectingWatchdog(start time.Time, stop chan struct{}) {
	if s.cfg.MQTTStillConnectingSecs <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.MQTTStillConnectingSecs)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			switch s.State() {
			case StateConnecting, StateBackoff:
				domain.Publish(s.hub, constants.TopicNotification, dto.Notification(dto.MqttStillConnecting{
					ID:             s.managerClientID,
					Server:         s.broker,
					ElapsedSeconds: time.Since(start).Seconds(),
				}))
			default:
				return
			}
		}
	}
}

// buildBrokerURL composes the paho broker URI from the configured
// transport and host/port, selecting a TLS-flavored scheme when tlsConfig
// is set.
func buildBrokerURL(cfg domain.Config, hasTLS bool) string {
	switch cfg.MQTTTransport {
	case "unix":
		return "unix://" + cfg.MQTTHost
	case "websocket":
		if hasTLS {
			return fmt.Sprintf("wss://%s:%d", cfg.MQTTHost, cfg.MQTTPort)
		}
		return fmt.Sprintf("ws://%s:%d", cfg.MQTTHost, cfg.MQTTPort)
	default:
		if hasTLS {
			return fmt.Sprintf("ssl://%s:%d", cfg.MQTTHost, cfg.MQTTPort)
		}
		return fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort)
	}
}
