package mqttsession

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/nipil/gcn-manager/daemon/domain"
)

var tlsVersionByName = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// buildTLSConfig translates the mqtt_tls_* configuration keys into a
// *tls.Config, or returns a *ConfigurationError if a version name or cipher
// name is not recognized. A nil, nil result means no TLS configuration was
// requested and the session connects in plaintext.
//
// This validation happens once at startup rather than per connection
// attempt: cipher/version typos are a ConfigurationError (spec.md §7, exit
// 2), distinct from a TlsError discovered during a live handshake
// (certificate validation failure against the broker), which is instead
// surfaced per-attempt by classifyConnectError.
func buildTLSConfig(cfg domain.Config) (*tls.Config, error) {
	if cfg.MQTTTLSMinVersion == "" && cfg.MQTTTLSMaxVersion == "" && cfg.MQTTTLSCiphers == "" {
		return nil, nil
	}

	tc := &tls.Config{}

	if cfg.MQTTTLSMinVersion != "" {
		v, ok := tlsVersionByName[cfg.MQTTTLSMinVersion]
		if !ok {
			return nil, &ConfigurationError{Message: "unknown mqtt_tls_min_version " + cfg.MQTTTLSMinVersion}
		}
		tc.MinVersion = v
	}
	if cfg.MQTTTLSMaxVersion != "" {
		v, ok := tlsVersionByName[cfg.MQTTTLSMaxVersion]
		if !ok {
			return nil, &ConfigurationError{Message: "unknown mqtt_tls_max_version " + cfg.MQTTTLSMaxVersion}
		}
		tc.MaxVersion = v
	}

	if cfg.MQTTTLSCiphers != "" {
		byName := make(map[string]uint16)
		for _, suite := range tls.CipherSuites() {
			byName[suite.Name] = suite.ID
		}
		for _, suite := range tls.InsecureCipherSuites() {
			byName[suite.Name] = suite.ID
		}
		for _, name := range strings.Split(cfg.MQTTTLSCiphers, ":") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			id, ok := byName[name]
			if !ok {
				return nil, &ConfigurationError{Message: fmt.Sprintf("unknown mqtt_tls_ciphers entry %q", name)}
			}
			tc.CipherSuites = append(tc.CipherSuites, id)
		}
	}

	return tc, nil
}
