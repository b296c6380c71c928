package topiccodec

import "testing"

func TestParse_ManagerStatus(t *testing.T) {
	p := Parse("app", "app/manager/status/mgr1")
	ms, ok := p.(ManagerStatus)
	if !ok {
		t.Fatalf("expected ManagerStatus, got %T", p)
	}
	if ms.ManagerID != "mgr1" {
		t.Errorf("ManagerID = %q, want %q", ms.ManagerID, "mgr1")
	}
}

func TestParse_ClientOut(t *testing.T) {
	p := Parse("app", "app/client/c1/out/status")
	co, ok := p.(ClientOut)
	if !ok {
		t.Fatalf("expected ClientOut, got %T", p)
	}
	if co.ClientID != "c1" || co.Category != "status" {
		t.Errorf("got %+v", co)
	}
}

func TestParse_ClientOutGPIO(t *testing.T) {
	p := Parse("app", "app/client/c1/out/gpio/button")
	co, ok := p.(ClientOut)
	if !ok {
		t.Fatalf("expected ClientOut, got %T", p)
	}
	if co.Category != "gpio" || len(co.Rest) != 1 || co.Rest[0] != "button" {
		t.Errorf("got %+v", co)
	}
}

func TestParse_ClientIn(t *testing.T) {
	p := Parse("app", "app/client/c1/in/something")
	if _, ok := p.(ClientIn); !ok {
		t.Fatalf("expected ClientIn, got %T", p)
	}
}

func TestParse_Unknown(t *testing.T) {
	cases := []string{
		"",
		"other/manager/status/m1",
		"app",
		"app/bogus",
		"app/manager/bogus/m1",
		"app/client/c1",
		"app/client/c1/sideways",
	}
	for _, topic := range cases {
		if _, ok := Parse("app", topic).(Unknown); !ok {
			t.Errorf("Parse(%q) expected Unknown", topic)
		}
	}
}

func TestComposeManagerStatus_RoundTrip(t *testing.T) {
	topic := ComposeManagerStatus("app", "mgr42")
	p := Parse("app", topic)
	ms, ok := p.(ManagerStatus)
	if !ok {
		t.Fatalf("expected ManagerStatus, got %T", p)
	}
	if ms.ManagerID != "mgr42" {
		t.Errorf("ManagerID = %q, want %q", ms.ManagerID, "mgr42")
	}
}

func TestSubscriptions(t *testing.T) {
	if got := SubscriptionManagerStatus("app"); got != "app/manager/status/#" {
		t.Errorf("SubscriptionManagerStatus = %q", got)
	}
	if got := SubscriptionClient("app"); got != "app/client/#" {
		t.Errorf("SubscriptionClient = %q", got)
	}
	if !Matches(SubscriptionManagerStatus("app"), "app/manager/status/mgr1") {
		t.Errorf("manager status subscription should match a concrete manager status topic")
	}
	if !Matches(SubscriptionClient("app"), "app/client/c1/out/status") {
		t.Errorf("client subscription should match a concrete client topic")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		sub, topic string
		want       bool
	}{
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/d/c", false},
		{"a/+/c", "a/c", false},
		{"a/#", "a", true},
		{"a/#", "a/b", true},
		{"a/#", "a/b/c", true},
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
	}
	for _, tc := range cases {
		if got := Matches(tc.sub, tc.topic); got != tc.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tc.sub, tc.topic, got, tc.want)
		}
	}
}
