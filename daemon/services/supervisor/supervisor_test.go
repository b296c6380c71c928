package supervisor

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/services/notify"
	"github.com/nipil/gcn-manager/daemon/services/registry"
)

func TestRandomHex_LengthAndDecodable(t *testing.T) {
	got := randomHex(8)
	if len(got) != 16 {
		t.Fatalf("len(randomHex(8)) = %d, want 16 hex chars", len(got))
	}
	if _, err := hex.DecodeString(got); err != nil {
		t.Errorf("randomHex output is not valid hex: %v", err)
	}
}

func TestRandomHex_DefaultsWhenNonPositive(t *testing.T) {
	if got := randomHex(0); len(got) != 16 {
		t.Errorf("randomHex(0) should default to 8 bytes, got len %d", len(got))
	}
}

func TestWatchHeartbeats_NotifiesOncePerTransition(t *testing.T) {
	hub := domain.NewEventBus(8)
	reg := registry.New()
	cfg := domain.DefaultConfig()
	cfg.IdleLoopSleep = 10 * time.Millisecond
	cfg.ClientHeartbeatWatchdog = 20 * time.Millisecond
	s := New(cfg, reg, hub, notify.New(cfg))

	reg.GetOrCreate("c1")
	reg.Touch("c1", time.Now().Add(-time.Hour)) // already stale

	ch := hub.SubTopics(constants.TopicNotification)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.watchHeartbeats(ctx)

	select {
	case msg := <-ch:
		n, ok := msg.(dto.Notification)
		if !ok {
			t.Fatalf("expected dto.Notification, got %T", msg)
		}
		missed, ok := n.(dto.ClientHeartbeatMissed)
		if !ok || missed.Client != "c1" {
			t.Fatalf("got %#v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ClientHeartbeatMissed")
	}

	// A second tick with the client still stale must not emit again.
	select {
	case msg := <-ch:
		t.Fatalf("expected no second notification for the same stale transition, got %#v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
