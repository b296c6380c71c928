package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/services/notify"
	"github.com/nipil/gcn-manager/daemon/services/registry"
)

func TestWatchRegistrySize_UpdatesGauge(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.IdleLoopSleep = 10 * time.Millisecond
	reg := registry.New()
	reg.GetOrCreate("c1")
	reg.GetOrCreate("c2")

	s := New(cfg, reg, domain.NewEventBus(4), notify.New(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.watchRegistrySize(ctx)

	deadline := time.After(time.Second)
	for testutil.ToFloat64(knownClients) != 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for known-clients gauge to reach 2")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCountNotifications_IncrementsCounter(t *testing.T) {
	hub := domain.NewEventBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := testutil.ToFloat64(notificationsTotal)
	go countNotifications(ctx, hub)

	deadline := time.After(time.Second)
	for testutil.ToFloat64(notificationsTotal) <= before {
		// countNotifications subscribes asynchronously and the bus drops
		// messages that have no subscriber yet, so keep publishing.
		domain.Publish(hub, constants.TopicNotification, dto.Notification(dto.ClientStatusChange{Client: "c1"}))
		select {
		case <-deadline:
			t.Fatal("timed out waiting for notificationsTotal to increment")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
