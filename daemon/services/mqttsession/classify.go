package mqttsession

import (
	"context"
	"errors"
	"net"
	"strings"
)

// classifyConnectError maps a raw error from a connect attempt (the paho
// token's Error(), or a wait timeout) onto the taxonomy in
// spec.md §7. Network-ish failures are TransientNetworkError (retry in
// Backoff); certificate/handshake failures are TlsError (Failed, no
// retry); anything else is treated as a ProtocolError (Failed, no retry).
func classifyConnectError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientNetworkError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientNetworkError{Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "tls"), strings.Contains(msg, "x509"), strings.Contains(msg, "certificate"):
		return &TlsError{Err: err}
	case strings.Contains(msg, "refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"),
		strings.Contains(msg, "network is unreachable"):
		return &TransientNetworkError{Err: err}
	default:
		return &ProtocolError{Message: err.Error()}
	}
}
