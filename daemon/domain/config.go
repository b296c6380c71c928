package domain

import "time"

// Config is the flat runtime configuration for the fleet manager, assembled
// by main.go from CLI flags, environment variables, and an optional config
// file, in that order of precedence (highest first).
type Config struct {
	App string `json:"app"` // topic namespace prefix shared by manager and clients

	MQTTHost                string        `json:"mqtt_host"`
	MQTTPort                int           `json:"mqtt_port"`
	MQTTUsername            string        `json:"mqtt_username,omitempty"`
	MQTTPassword            string        `json:"-"`
	MQTTKeepAlive           time.Duration `json:"mqtt_keep_alive"`
	MQTTConnectTimeout      time.Duration `json:"mqtt_connect_timeout"`
	MQTTReconnect           bool          `json:"mqtt_reconnect"`
	MQTTStillConnectingSecs time.Duration `json:"mqtt_still_connecting_alert"`
	MQTTTransport           string        `json:"mqtt_transport"` // tcp | websocket | unix
	MQTTTLSMinVersion       string        `json:"mqtt_tls_min_version,omitempty"`
	MQTTTLSMaxVersion       string        `json:"mqtt_tls_max_version,omitempty"`
	MQTTTLSCiphers          string        `json:"mqtt_tls_ciphers,omitempty"`
	MQTTSockSendBufferBytes int           `json:"mqtt_socket_send_buffer_size"`
	MQTTClientIDRandomBytes int           `json:"mqtt_client_id_random_bytes"`

	IdleLoopSleep time.Duration `json:"idle_loop_sleep"`

	ClientHeartbeatMaxSkew  time.Duration `json:"client_heartbeat_max_skew"`
	ClientHeartbeatWatchdog time.Duration `json:"client_heartbeat_watchdog"`

	EnableEmailNotifications      bool `json:"enable_email_notifications"`
	EnableSMSNotifications       bool `json:"enable_sms_notifications"`
	EnableMicroblogNotifications bool `json:"enable_microblog_notifications"`

	// Each Notify*Recipients map takes an event name (e.g.
	// "client_status_change") to a CSV recipient list for that event; there
	// is one map per backend.
	NotifyEmailRecipients     map[string]string `json:"-"`
	NotifySMSRecipients       map[string]string `json:"-"`
	NotifyMicroblogRecipients map[string]string `json:"-"`

	SMTPURL      string `json:"-"` // shoutrrr smtp:// URL template (credentials filled in)
	SMSURL       string `json:"-"` // shoutrrr generic/webhook URL template for the SMS backend
	MicroblogURL string `json:"-"` // shoutrrr URL template for the microblog backend

	// MetricsAddr, if non-empty, mounts a Prometheus /metrics endpoint.
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// ConfigFile is the path an optional on-disk config file was loaded
	// from, if any, used to support hot-reload of recipient lists.
	ConfigFile string `json:"-"`
}

// DefaultConfig returns configuration defaults matching spec.md §6.3.
func DefaultConfig() Config {
	return Config{
		App:                     "gcn",
		MQTTPort:                1883,
		MQTTKeepAlive:           60 * time.Second,
		MQTTConnectTimeout:      10 * time.Second,
		MQTTReconnect:           true,
		MQTTStillConnectingSecs: 30 * time.Second,
		MQTTTransport:           "tcp",
		MQTTSockSendBufferBytes: 0,
		MQTTClientIDRandomBytes: 8,
		IdleLoopSleep:           1 * time.Second,
		ClientHeartbeatMaxSkew:  10 * time.Second,
		ClientHeartbeatWatchdog: 5 * time.Minute,
		NotifyEmailRecipients:         map[string]string{},
		NotifySMSRecipients:           map[string]string{},
		NotifyMicroblogRecipients:     map[string]string{},
	}
}
