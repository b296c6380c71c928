// Package supervisor implements the Supervisor (spec.md §4.E): the
// top-level loop that assigns the manager its session identity, installs
// signal handling, runs the heartbeat watchdog and notification fan-out,
// and restarts MqttSession across reconnects until shutdown.
//
// Grounded on the teacher's daemon/services/orchestrator.go (signal.
// NotifyContext-driven shutdown, sync.WaitGroup-joined background tasks,
// ordered startup/shutdown of long-running services), generalized from a
// fixed set of Unraid collectors/servers to the registry/session/sink
// triad this domain needs.
package supervisor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"syscall"
	"time"

	"os/signal"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/logger"
	"github.com/nipil/gcn-manager/daemon/services/mqttsession"
	"github.com/nipil/gcn-manager/daemon/services/notify"
	"github.com/nipil/gcn-manager/daemon/services/registry"
	"github.com/nipil/gcn-manager/daemon/services/router"
)

// Supervisor is the top-level fleet manager process loop.
type Supervisor struct {
	cfg      domain.Config
	registry *registry.Registry
	hub      *domain.EventBus
	sink     *notify.Sink

	sessionMu sync.Mutex
	session   *mqttsession.Session
}

// New creates a Supervisor over the given shared registry, event bus, and
// notification sink. The registry and hub persist across reconnects, per
// spec.md §3's "a reconnect reuses the registry".
func New(cfg domain.Config, reg *registry.Registry, hub *domain.EventBus, sink *notify.Sink) *Supervisor {
	return &Supervisor{cfg: cfg, registry: reg, hub: hub, sink: sink}
}

// Run assigns a session client id, emits ManagerStarting, runs the
// reconnect loop against a fresh MqttSession each cycle, and emits
// ManagerExiting before returning. It blocks until ctx is cancelled, a
// signal is received, or a fatal session error occurs.
func (s *Supervisor) Run(ctx context.Context) error {
	startedAt := time.Now()
	clientID := "manager_" + randomHex(s.cfg.MQTTClientIDRandomBytes)

	// Handed to the sink directly: its bus subscription does not exist yet,
	// and the bus drops messages that have no subscriber.
	s.sink.Emit(dto.ManagerStarting{ID: clientID, StartedAt: startedAt})

	runCtx, cancel := context.WithCancel(ctx)
	sigCtx, stop := signal.NotifyContext(runCtx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); s.sink.Run(sigCtx, s.hub) }()
	go func() { defer wg.Done(); s.watchHeartbeats(sigCtx) }()
	go func() { defer wg.Done(); s.watchRegistrySize(sigCtx) }()
	go func() { defer wg.Done(); countNotifications(sigCtx, s.hub) }()
	wg.Add(1)
	go func() { defer wg.Done(); s.watchSessionState(sigCtx) }()
	s.startMetricsServer(sigCtx, &wg)

	rtr := router.New(s.cfg.App, clientID, s.registry, s.hub, s.cfg.ClientHeartbeatMaxSkew)

	var finalErr error
runLoop:
	for {
		session := mqttsession.New(s.cfg, s.cfg.App, clientID, rtr, s.hub)
		s.sessionMu.Lock()
		s.session = session
		s.sessionMu.Unlock()
		err := session.Run(sigCtx)

		switch {
		case errors.Is(err, mqttsession.ErrShutdownRequested):
			break runLoop
		case err == nil:
			// Unexpected disconnect: reconnect unless shutting down or disabled.
			if sigCtx.Err() != nil || !s.cfg.MQTTReconnect {
				break runLoop
			}
			logger.Warning("MQTT session disconnected unexpectedly, reconnecting")
			continue
		default:
			logger.Error("MQTT session ended fatally: %v", err)
			finalErr = err
			break runLoop
		}
	}

	stop()
	cancel()
	wg.Wait()

	// The sink has already unsubscribed from the bus, so hand it over directly.
	s.sink.Emit(dto.ManagerExiting{ID: clientID, RunDuration: time.Since(startedAt)})

	return finalErr
}

// watchHeartbeats periodically scans the registry for clients whose last
// message predates the configured watchdog threshold, emitting
// ClientHeartbeatMissed once per fresh-to-stale transition (spec.md §4.C).
func (s *Supervisor) watchHeartbeats(ctx context.Context) {
	if s.cfg.IdleLoopSleep <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.IdleLoopSleep)
	defer ticker.Stop()

	notified := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			stale := s.registry.ScanHeartbeats(now, s.cfg.ClientHeartbeatWatchdog)
			staleSet := make(map[string]bool, len(stale))
			for _, id := range stale {
				staleSet[id] = true
				if notified[id] {
					continue
				}
				notified[id] = true
				elapsed := s.cfg.ClientHeartbeatWatchdog.Seconds()
				if snap := s.registry.Snapshot(id); snap != nil && !snap.LastSeenAt.IsZero() {
					elapsed = now.Sub(snap.LastSeenAt).Seconds()
				}
				domain.Publish(s.hub, constants.TopicNotification, dto.Notification(dto.ClientHeartbeatMissed{
					Client: id, ElapsedSeconds: elapsed,
				}))
			}
			for id := range notified {
				if !staleSet[id] {
					delete(notified, id)
				}
			}
		}
	}
}

// watchSessionState periodically republishes the active session's state as
// the fleet_manager_session_state gauge, for whichever Session the
// reconnect loop currently holds.
func (s *Supervisor) watchSessionState(ctx context.Context) {
	if s.cfg.IdleLoopSleep <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.IdleLoopSleep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessionMu.Lock()
			sess := s.session
			s.sessionMu.Unlock()
			if sess != nil {
				sessionState.Set(float64(sess.State()))
			}
		}
	}
}

// randomHex returns n random bytes hex-encoded, used for the manager's
// session client id. crypto/rand is used here (rather than the tracker's
// google/uuid) because this id is externally visible on the wire and
// spec.md §4.E calls for "random_hex(N)" sized by configuration, not a
// fixed-width UUID.
func randomHex(n int) string {
	if n <= 0 {
		n = 8
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		logger.Fatal("failed to read random bytes for client id: %v", err)
	}
	return hex.EncodeToString(buf)
}
