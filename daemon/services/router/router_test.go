package router

import (
	"strconv"
	"testing"
	"time"

	"github.com/nipil/gcn-manager/daemon/constants"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/dto"
	"github.com/nipil/gcn-manager/daemon/services/registry"
)

type fakePublisher struct {
	cleared []string
}

func (f *fakePublisher) ClearTopic(topic string, qos byte) error {
	f.cleared = append(f.cleared, topic)
	return nil
}

func newTestRouter() (*Router, *domain.EventBus, chan any) {
	hub := domain.NewEventBus(16)
	ch := hub.SubTopics(constants.TopicNotification)
	r := New("app", "self-mgr", registry.New(), hub, 5*time.Second)
	return r, hub, ch
}

func recvNotification(t *testing.T, ch chan any) dto.Notification {
	t.Helper()
	select {
	case msg := <-ch:
		n, ok := msg.(dto.Notification)
		if !ok {
			t.Fatalf("expected dto.Notification, got %T", msg)
		}
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestRoute_StatusChangeEmitsNotification(t *testing.T) {
	r, _, ch := newTestRouter()

	if err := r.Route("app/client/c1/out/status", []byte("online"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	n := recvNotification(t, ch)
	sc, ok := n.(dto.ClientStatusChange)
	if !ok || sc.Client != "c1" {
		t.Errorf("got %#v", n)
	}
}

func TestRoute_StatusNoopDoesNotEmit(t *testing.T) {
	r, _, ch := newTestRouter()
	if err := r.Route("app/client/c1/out/status", []byte("online"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	<-ch

	if err := r.Route("app/client/c1/out/status", []byte("online"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	select {
	case msg := <-ch:
		t.Fatalf("expected no notification on repeated status, got %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoute_HeartbeatSkewedEmitsNotification(t *testing.T) {
	r, _, ch := newTestRouter()
	stale := time.Now().Add(-time.Hour).Unix()

	payload := strconv.FormatInt(stale, 10)
	if err := r.Route("app/client/c1/out/heartbeat", []byte(payload), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	n := recvNotification(t, ch)
	if _, ok := n.(dto.ClientHeartbeatSkewed); !ok {
		t.Errorf("got %#v", n)
	}
}

func TestRoute_DroppedIncreaseEmitsNotification(t *testing.T) {
	r, _, ch := newTestRouter()

	if err := r.Route("app/client/c1/out/buffer_total_dropped_item", []byte("0"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	select {
	case msg := <-ch:
		t.Fatalf("first observation of zero should not notify, got %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if err := r.Route("app/client/c1/out/buffer_total_dropped_item", []byte("4"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	n := recvNotification(t, ch)
	dropped, ok := n.(dto.ClientDroppedItems)
	if !ok || dropped.Client != "c1" {
		t.Errorf("got %#v", n)
	}
}

func TestRoute_GpioChangeEmitsNotification(t *testing.T) {
	r, _, ch := newTestRouter()

	if err := r.Route("app/client/c1/out/gpio/button", []byte("1"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	n := recvNotification(t, ch)
	gc, ok := n.(dto.ClientGpioChange)
	if !ok || gc.GPIOName != "button" || !gc.GPIOIsSet {
		t.Errorf("got %#v", n)
	}
}

func TestRoute_MonitoredGpioStoresNames(t *testing.T) {
	r, reg, _ := newTestRouter()
	_ = reg

	if err := r.Route("app/client/c1/out/monitored_gpio", []byte("button, led"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	snap := r.registry.Snapshot("c1")
	if len(snap.MonitoredGPIO) != 2 || snap.MonitoredGPIO[0] != "button" || snap.MonitoredGPIO[1] != "led" {
		t.Errorf("MonitoredGPIO = %v", snap.MonitoredGPIO)
	}
}

func TestRoute_ManagerStatusOfflineClearsTopic(t *testing.T) {
	r, _, _ := newTestRouter()
	pub := &fakePublisher{}

	topic := "app/manager/status/mgr1"
	if err := r.Route(topic, []byte("offline"), pub); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(pub.cleared) != 1 || pub.cleared[0] != topic {
		t.Errorf("ClearTopic not called as expected, got %v", pub.cleared)
	}
}

func TestRoute_ManagerStatusOnlineDoesNotClear(t *testing.T) {
	r, _, _ := newTestRouter()
	pub := &fakePublisher{}

	if err := r.Route("app/manager/status/mgr1", []byte("online"), pub); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(pub.cleared) != 0 {
		t.Errorf("expected no ClearTopic call, got %v", pub.cleared)
	}
}

func TestRoute_FirstMessageSetsLastSeenAt(t *testing.T) {
	r, reg, _ := newTestRouter()
	_ = reg

	if err := r.Route("app/client/c1/out/status", []byte("online"), nil); err != nil {
		t.Fatalf("Route: %v", err)
	}
	snap := r.registry.Snapshot("c1")
	if snap == nil || snap.LastSeenAt.IsZero() {
		t.Fatalf("expected LastSeenAt to be set on first message, got %#v", snap)
	}
}

func TestRoute_ManagerStatusEchoOfSelfIsIgnored(t *testing.T) {
	r, _, _ := newTestRouter()
	pub := &fakePublisher{}

	topic := "app/manager/status/self-mgr"
	if err := r.Route(topic, []byte("offline"), pub); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(pub.cleared) != 0 {
		t.Errorf("echo of our own manager status should not trigger ClearTopic, got %v", pub.cleared)
	}
}

func TestRoute_UnknownTopicIsFormatError(t *testing.T) {
	r, _, _ := newTestRouter()
	err := r.Route("other/app/x", []byte("x"), nil)
	if _, ok := err.(*FormatError); !ok {
		t.Errorf("expected *FormatError, got %T (%v)", err, err)
	}
}

func TestRoute_ClientInIsLoggedAndDropped(t *testing.T) {
	r, _, _ := newTestRouter()
	if err := r.Route("app/client/c1/in/whatever", []byte("x"), nil); err != nil {
		t.Errorf("reserved in-bound topics should be dropped without error, got %v", err)
	}
}
