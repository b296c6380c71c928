package domain

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the standard location for the manager's config file.
const DefaultConfigPath = "/etc/gcn-manager/config.yml"

// FileConfig represents the optional YAML configuration file. Values set
// here serve as defaults that CLI flags and environment variables override.
type FileConfig struct {
	App *string `yaml:"app,omitempty"`

	MQTT *FileConfigMQTT `yaml:"mqtt,omitempty"`

	IdleLoopSleep           *int `yaml:"idle_loop_sleep,omitempty"`
	ClientHeartbeatMaxSkew  *int `yaml:"client_heartbeat_max_skew,omitempty"`
	ClientHeartbeatWatchdog *int `yaml:"client_heartbeat_watchdog,omitempty"`

	Notifications *FileConfigNotifications `yaml:"notifications,omitempty"`

	MetricsAddr *string `yaml:"metrics_addr,omitempty"`
}

// FileConfigMQTT holds MQTT-specific settings from the config file.
type FileConfigMQTT struct {
	Host               *string `yaml:"host,omitempty"`
	Port               *int    `yaml:"port,omitempty"`
	Username           *string `yaml:"username,omitempty"`
	Password           *string `yaml:"password,omitempty"`
	KeepAlive          *int    `yaml:"keep_alive,omitempty"`
	ConnectTimeout     *int    `yaml:"connect_timeout,omitempty"`
	Reconnect          *bool   `yaml:"reconnect,omitempty"`
	StillConnectingSec *int    `yaml:"still_connecting_alert,omitempty"`
	Transport          *string `yaml:"transport,omitempty"`
	TLSMinVersion      *string `yaml:"tls_min_version,omitempty"`
	TLSMaxVersion      *string `yaml:"tls_max_version,omitempty"`
	TLSCiphers         *string `yaml:"tls_ciphers,omitempty"`
	SockSendBufferSize *int    `yaml:"socket_send_buffer_size,omitempty"`
	ClientIDRandomByte *int    `yaml:"client_id_random_bytes,omitempty"`
}

// FileConfigNotifications holds the hot-reloadable notification settings:
// backend toggles and per-event recipient lists. These are the only config
// keys the running manager reloads without a reconnect — see SPEC_FULL.md
// §11.1.
type FileConfigNotifications struct {
	EnableEmail     *bool `yaml:"enable_email,omitempty"`
	EnableSMS       *bool `yaml:"enable_sms,omitempty"`
	EnableMicroblog *bool `yaml:"enable_microblog,omitempty"`

	EmailRecipients     map[string]string `yaml:"email_recipients,omitempty"`
	SMSRecipients       map[string]string `yaml:"sms_recipients,omitempty"`
	MicroblogRecipients map[string]string `yaml:"microblog_recipients,omitempty"`

	SMTPURL      *string `yaml:"smtp_url,omitempty"`
	SMSURL       *string `yaml:"sms_url,omitempty"`
	MicroblogURL *string `yaml:"microblog_url,omitempty"`
}

// LoadConfigFile reads and parses a YAML config file. It returns a nil
// FileConfig without error if path does not exist.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // trusted operator-supplied path, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyNotifications merges the file config's notification section into cfg,
// overwriting only the fields present in the file. Used both at startup and
// on every hot-reload tick.
func (fc *FileConfigNotifications) ApplyNotifications(cfg *Config) {
	if fc == nil {
		return
	}
	if fc.EnableEmail != nil {
		cfg.EnableEmailNotifications = *fc.EnableEmail
	}
	if fc.EnableSMS != nil {
		cfg.EnableSMSNotifications = *fc.EnableSMS
	}
	if fc.EnableMicroblog != nil {
		cfg.EnableMicroblogNotifications = *fc.EnableMicroblog
	}
	if fc.EmailRecipients != nil {
		cfg.NotifyEmailRecipients = fc.EmailRecipients
	}
	if fc.SMSRecipients != nil {
		cfg.NotifySMSRecipients = fc.SMSRecipients
	}
	if fc.MicroblogRecipients != nil {
		cfg.NotifyMicroblogRecipients = fc.MicroblogRecipients
	}
	if fc.SMTPURL != nil {
		cfg.SMTPURL = *fc.SMTPURL
	}
	if fc.SMSURL != nil {
		cfg.SMSURL = *fc.SMSURL
	}
	if fc.MicroblogURL != nil {
		cfg.MicroblogURL = *fc.MicroblogURL
	}
}

// WatchNotifications watches path for writes and invokes reload with the
// freshly parsed FileConfig.Notifications section whenever the file
// changes. It runs until stop is closed. The returned error only reports a
// failure to set up the watcher; errors the watcher reports afterwards, and
// reloads whose file cannot be read or parsed, are silently skipped.
func WatchNotifications(path string, stop <-chan struct{}, reload func(*FileConfigNotifications)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching config file %s: %w", path, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				fc, err := LoadConfigFile(path)
				if err != nil || fc == nil {
					continue
				}
				reload(fc.Notifications)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}
