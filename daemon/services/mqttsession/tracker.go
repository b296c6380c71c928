package mqttsession

import (
	"sync"

	"github.com/google/uuid"
)

// trackedEntry is one TrackedMessageId record (spec.md §3): the topic an
// in-flight publish/subscribe/unsubscribe was issued for, plus a diagnostic
// correlation id used only in logging.
type trackedEntry struct {
	Topic         string
	CorrelationID uuid.UUID
}

// tracker is the session-owned TrackedMessageId map. Entries are inserted
// when a call is issued and removed once its ack is observed, correlating
// broker acks back to the application-level call that produced them.
//
// paho's Token already resolves the broker-assigned message id internally;
// this tracker exists purely for the manager's own diagnostics, so ids are
// assigned locally rather than read back out of paho's token machinery.
type tracker struct {
	mu      sync.Mutex
	nextID  uint16
	entries map[uint16]trackedEntry
}

func newTracker() *tracker {
	return &tracker{entries: make(map[uint16]trackedEntry)}
}

// track allocates the next id, records topic against it, and returns both
// the id and a fresh correlation uuid for logging.
func (t *tracker) track(topic string) (uint16, uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	corr := uuid.New()
	t.entries[id] = trackedEntry{Topic: topic, CorrelationID: corr}
	return id, corr
}

// resolve looks up the entry for id without removing it.
func (t *tracker) resolve(id uint16) (trackedEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

// ack removes the entry for id, as observed on the broker's ack.
func (t *tracker) ack(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len reports the number of in-flight tracked entries.
func (t *tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
