package mqttsession

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nipil/gcn-manager/daemon/domain"
)

func TestNextBackoff_WithinBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		for i := 0; i < 20; i++ {
			d := nextBackoff(attempt)
			if d < 0 || d > backoffCap {
				t.Fatalf("attempt %d: backoff %s out of [0, %s]", attempt, d, backoffCap)
			}
		}
	}
}

func TestNextBackoff_GrowsThenCaps(t *testing.T) {
	// At attempt 0 the ceiling is base; by a few attempts in it should have
	// saturated at the cap. Sample many draws and check the max converges
	// upward as attempt increases.
	var maxAt0, maxAt5 time.Duration
	for i := 0; i < 200; i++ {
		if d := nextBackoff(0); d > maxAt0 {
			maxAt0 = d
		}
		if d := nextBackoff(5); d > maxAt5 {
			maxAt5 = d
		}
	}
	if maxAt5 <= maxAt0 {
		t.Errorf("expected later attempts to sample a wider range: maxAt0=%s maxAt5=%s", maxAt0, maxAt5)
	}
	if maxAt5 > backoffCap {
		t.Errorf("maxAt5 = %s exceeds cap %s", maxAt5, backoffCap)
	}
}

func TestClassifyConnectError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want any
	}{
		{"net error", &net.DNSError{Err: "no such host", Name: "broker", IsNotFound: true}, &TransientNetworkError{}},
		{"refused text", errors.New("dial tcp: connection refused"), &TransientNetworkError{}},
		{"tls text", errors.New("tls: handshake failure"), &TlsError{}},
		{"certificate text", errors.New("x509: certificate signed by unknown authority"), &TlsError{}},
		{"other", errors.New("not authorized"), &ProtocolError{}},
	}
	for _, tc := range cases {
		got := classifyConnectError(tc.err)
		switch tc.want.(type) {
		case *TransientNetworkError:
			if _, ok := got.(*TransientNetworkError); !ok {
				t.Errorf("%s: got %T, want *TransientNetworkError", tc.name, got)
			}
		case *TlsError:
			if _, ok := got.(*TlsError); !ok {
				t.Errorf("%s: got %T, want *TlsError", tc.name, got)
			}
		case *ProtocolError:
			if _, ok := got.(*ProtocolError); !ok {
				t.Errorf("%s: got %T, want *ProtocolError", tc.name, got)
			}
		}
	}
}

func TestTracker_TrackResolveAck(t *testing.T) {
	tr := newTracker()
	id, corr := tr.track("app/client/c1/out/status")
	entry, ok := tr.resolve(id)
	if !ok || entry.Topic != "app/client/c1/out/status" || entry.CorrelationID != corr {
		t.Fatalf("resolve after track = %+v, %v", entry, ok)
	}
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
	tr.ack(id)
	if _, ok := tr.resolve(id); ok {
		t.Errorf("expected entry to be gone after ack")
	}
	if tr.Len() != 0 {
		t.Errorf("Len after ack = %d, want 0", tr.Len())
	}
}

func TestBuildBrokerURL(t *testing.T) {
	cfg := domain.Config{MQTTHost: "broker.local", MQTTPort: 1883, MQTTTransport: "tcp"}
	if got := buildBrokerURL(cfg, false); got != "tcp://broker.local:1883" {
		t.Errorf("got %q", got)
	}
	if got := buildBrokerURL(cfg, true); got != "ssl://broker.local:1883" {
		t.Errorf("got %q", got)
	}

	cfg.MQTTTransport = "websocket"
	if got := buildBrokerURL(cfg, false); got != "ws://broker.local:1883" {
		t.Errorf("got %q", got)
	}
	if got := buildBrokerURL(cfg, true); got != "wss://broker.local:1883" {
		t.Errorf("got %q", got)
	}

	cfg.MQTTTransport = "unix"
	cfg.MQTTHost = "/var/run/mqtt.sock"
	if got := buildBrokerURL(cfg, false); got != "unix:///var/run/mqtt.sock" {
		t.Errorf("got %q", got)
	}
}

func TestBuildTLSConfig_NoneRequested(t *testing.T) {
	cfg := domain.Config{}
	tc, err := buildTLSConfig(cfg)
	if err != nil || tc != nil {
		t.Fatalf("got %v, %v, want nil, nil", tc, err)
	}
}

func TestBuildTLSConfig_UnknownVersionIsConfigurationError(t *testing.T) {
	cfg := domain.Config{MQTTTLSMinVersion: "0.9"}
	_, err := buildTLSConfig(cfg)
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("got %T (%v), want *ConfigurationError", err, err)
	}
}

func TestBuildTLSConfig_UnknownCipherIsConfigurationError(t *testing.T) {
	cfg := domain.Config{MQTTTLSCiphers: "NOT_A_REAL_CIPHER"}
	_, err := buildTLSConfig(cfg)
	if _, ok := err.(*ConfigurationError); !ok {
		t.Fatalf("got %T (%v), want *ConfigurationError", err, err)
	}
}

func TestBuildTLSConfig_ValidVersion(t *testing.T) {
	cfg := domain.Config{MQTTTLSMinVersion: "1.2", MQTTTLSMaxVersion: "1.3"}
	tc, err := buildTLSConfig(cfg)
	if err != nil || tc == nil {
		t.Fatalf("got %v, %v", tc, err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:          "idle",
		StateConnecting:    "connecting",
		StateBackoff:       "backoff",
		StateConnected:     "connected",
		StateDraining:      "draining",
		StateDisconnecting: "disconnecting",
		StateClosed:        "closed",
		StateFailed:        "failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
