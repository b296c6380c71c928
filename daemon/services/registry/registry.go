// Package registry implements the in-memory ClientRegistry (spec.md §4.B):
// a flat map of remote client records with compare-then-assign change
// detection that drives the router's notifications.
//
// Grounded on original_source/brain/src/gcn_manager/brain.py's
// Brain._ensure_client / ClientMessageHandler.handle_* methods, and on the
// teacher's watchdog.Runner status map (daemon/services/watchdog/runner.go)
// for the "compare wasHealthy/transitioned" shape reused here for status
// and GPIO transitions.
package registry

import (
	"sync"
	"time"

	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/logger"
)

// StatusResult reports the outcome of updating a client's status.
type StatusResult struct {
	Changed bool
	Old     dto.ClientStatus
	New     dto.ClientStatus
}

// HeartbeatResult reports whether a received heartbeat was within the
// configured skew tolerance.
type HeartbeatResult struct {
	Skewed bool
	Skew   time.Duration
}

// DroppedResult reports the outcome of updating a client's dropped-item
// counter.
type DroppedResult struct {
	Increased bool
	Old       int64
	New       int64
}

// GPIOResult reports the outcome of updating one GPIO level.
type GPIOResult struct {
	Changed bool
	Old     int
	New     int
}

// Registry is the ClientRegistry: an in-memory map of dto.ClientInfo keyed
// by client id, safe for concurrent use. Entries are created lazily and
// never removed within a session (spec.md §3 lifecycle).
type Registry struct {
	mu      sync.Mutex
	clients map[string]*dto.ClientInfo
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{clients: make(map[string]*dto.ClientInfo)}
}

// GetOrCreate returns the client record for id, creating it with
// status=unknown and zeroed counters on first observation.
func (r *Registry) GetOrCreate(id string) *dto.ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[id]; ok {
		return c
	}
	logger.Info("First time seeing client %s", id)
	c := dto.NewClientInfo(id)
	r.clients[id] = c
	return c
}

// Touch records that a message was just received from the client,
// satisfying spec.md §8's last_seen_at monotonicity property. It must be
// called for every message routed to a client, regardless of outcome.
func (r *Registry) Touch(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		c.LastSeenAt = now
	}
}

// UpdateStatus compares and assigns the client's status, returning whether
// it changed.
func (r *Registry) UpdateStatus(id string, newStatus dto.ClientStatus) StatusResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients[id]
	old := c.Status
	if old == newStatus {
		return StatusResult{Changed: false, Old: old, New: newStatus}
	}
	logger.Info("Client %s status change: %s -> %s", id, old, newStatus)
	c.Status = newStatus
	return StatusResult{Changed: true, Old: old, New: newStatus}
}

// UpdateHeartbeat stores the client's reported heartbeat and reports
// whether it was skewed relative to now by more than maxSkew.
func (r *Registry) UpdateHeartbeat(id string, reported int64, now time.Time, maxSkew time.Duration) HeartbeatResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients[id]
	c.Heartbeat = reported
	c.HasHeartbeat = true

	skew := now.Sub(time.Unix(reported, 0))
	if skew < 0 {
		skew = -skew
	}
	return HeartbeatResult{Skewed: skew > maxSkew, Skew: skew}
}

// UpdateDropped compares and assigns the client's dropped-item counter,
// reporting whether it strictly increased. Spec.md §8: a value equal to the
// stored one is a no-op; a decrease is accepted (stored) but not reported
// as an increase.
func (r *Registry) UpdateDropped(id string, value int64) DroppedResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients[id]
	old := c.BufferTotalDroppedItem
	hadValue := c.HasDroppedItem
	increased := hadValue && value > old

	if !hadValue || value != old {
		logger.Info("Client %s buffer_total_dropped_item change: %d -> %d", id, old, value)
	}
	c.BufferTotalDroppedItem = value
	c.HasDroppedItem = true

	return DroppedResult{Increased: increased, Old: old, New: value}
}

// UpdateMonitoredGPIO stores the ordered list of GPIO names the client
// reports it is watching.
func (r *Registry) UpdateMonitoredGPIO(id string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id].MonitoredGPIO = names
}

// UpdateGPIO compares and assigns one GPIO's level, reporting whether it
// changed.
func (r *Registry) UpdateGPIO(id, name string, level int) GPIOResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.clients[id]
	old, existed := c.GPIO[name]
	if existed && old == level {
		return GPIOResult{Changed: false, Old: old, New: level}
	}
	c.GPIO[name] = level
	return GPIOResult{Changed: true, Old: old, New: level}
}

// ScanHeartbeats returns the ids of every known client whose last message
// was received more than watchdog ago, per spec.md §4.B.
func (r *Registry) ScanHeartbeats(now time.Time, watchdog time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, c := range r.clients {
		if c.LastSeenAt.IsZero() {
			continue
		}
		if now.Sub(c.LastSeenAt) > watchdog {
			stale = append(stale, id)
		}
	}
	return stale
}

// Snapshot returns a copy of the client record for id, or nil if unknown.
// Intended for tests and diagnostics; never returns the live pointer.
func (r *Registry) Snapshot(id string) *dto.ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	cp := *c
	cp.GPIO = make(map[string]int, len(c.GPIO))
	for k, v := range c.GPIO {
		cp.GPIO[k] = v
	}
	cp.MonitoredGPIO = append([]string(nil), c.MonitoredGPIO...)
	return &cp
}

// Len returns the number of known clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
