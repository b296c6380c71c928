// Package main is the entry point for the MQTT fleet manager.
package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nipil/gcn-manager/daemon/cmd"
	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/logger"
)

// Version is the application version, set at build time via ldflags.
var Version = "dev"

var cli struct {
	LogsDir  string `default:"/var/log" help:"directory to store logs"`
	Debug    bool   `default:"false" help:"enable debug mode with stdout logging"`
	LogLevel string `default:"info" help:"log level: debug, info, warning, error"`

	ConfigFile string `default:"/etc/gcn-manager/config.yml" env:"GCN_CONFIG_FILE" help:"path to the optional YAML config file"`

	App string `default:"gcn" env:"GCN_APP" help:"topic namespace prefix shared by manager and clients"`

	MQTTHost                string        `default:"" env:"GCN_MQTT_HOST" help:"MQTT broker hostname or IP"`
	MQTTPort                int           `default:"1883" env:"GCN_MQTT_PORT" help:"MQTT broker port"`
	MQTTUsername            string        `default:"" env:"GCN_MQTT_USERNAME" help:"MQTT username"`
	MQTTPassword            string        `default:"" env:"GCN_MQTT_PASSWORD" help:"MQTT password"`
	MQTTKeepAlive           time.Duration `default:"60s" env:"GCN_MQTT_KEEPALIVE" help:"MQTT keepalive interval"`
	MQTTConnectTimeout      time.Duration `default:"10s" env:"GCN_MQTT_CONNECT_TIMEOUT" help:"MQTT connect timeout"`
	MQTTReconnect           bool          `default:"true" env:"GCN_MQTT_RECONNECT" help:"reconnect automatically after an unexpected disconnect"`
	MQTTStillConnectingSecs time.Duration `default:"30s" env:"GCN_MQTT_STILL_CONNECTING_ALERT" help:"alert threshold while stuck in Connecting"`
	MQTTTransport           string        `default:"tcp" env:"GCN_MQTT_TRANSPORT" help:"tcp | websocket | unix"`
	MQTTTLSMinVersion       string        `default:"" env:"GCN_MQTT_TLS_MIN_VERSION" help:"minimum TLS version (1.0-1.3)"`
	MQTTTLSMaxVersion       string        `default:"" env:"GCN_MQTT_TLS_MAX_VERSION" help:"maximum TLS version (1.0-1.3)"`
	MQTTTLSCiphers          string        `default:"" env:"GCN_MQTT_TLS_CIPHERS" help:"colon-separated TLS cipher suite names"`
	MQTTSockSendBufferBytes int           `default:"0" env:"GCN_MQTT_SOCK_SEND_BUFFER_BYTES" help:"requested socket send buffer size"`
	MQTTClientIDRandomBytes int           `default:"8" env:"GCN_MQTT_CLIENT_ID_RANDOM_BYTES" help:"random bytes appended to the manager client id"`

	IdleLoopSleep time.Duration `default:"1s" env:"GCN_IDLE_LOOP_SLEEP" help:"pacing interval for the heartbeat watchdog and registry-size gauge"`

	ClientHeartbeatMaxSkew  time.Duration `default:"10s" env:"GCN_CLIENT_HEARTBEAT_MAX_SKEW" help:"allowed heartbeat clock skew before ClientHeartbeatSkewed fires"`
	ClientHeartbeatWatchdog time.Duration `default:"5m" env:"GCN_CLIENT_HEARTBEAT_WATCHDOG" help:"time since last message before a client is considered stale"`

	MetricsAddr string `default:"" env:"GCN_METRICS_ADDR" help:"if set, mount a Prometheus /metrics endpoint on this address"`

	Boot cmd.Boot `cmd:"" default:"1" help:"start the fleet manager"`
}

// cleanupOldLogs removes every rotated log file (baseName-*.log) found in
// logsDir at startup, whichever version wrote it.
// lumberjack's MaxBackups only prevents new backups; it doesn't clean up
// existing ones left over from before the setting was changed.
func cleanupOldLogs(logsDir, baseName string) {
	pattern := filepath.Join(logsDir, baseName+"-*.log")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, f := range files {
		_ = os.Remove(f)
	}
}

func main() {
	kctx := kong.Parse(&cli)

	fileCfg, err := domain.LoadConfigFile(cli.ConfigFile)
	if err != nil {
		log.Printf("WARNING: failed to load config file: %v", err)
	}
	applyFileConfig(fileCfg)

	switch strings.ToLower(cli.LogLevel) {
	case "debug":
		logger.SetLevel(logger.LevelDebug)
	case "info":
		logger.SetLevel(logger.LevelInfo)
	case "warning", "warn":
		logger.SetLevel(logger.LevelWarning)
	case "error":
		logger.SetLevel(logger.LevelError)
	default:
		logger.SetLevel(logger.LevelInfo)
	}

	if cli.Debug {
		log.SetOutput(os.Stdout)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		logger.SetLevel(logger.LevelDebug)
		log.Println("Debug mode enabled - logging to stdout")
	} else {
		cleanupOldLogs(cli.LogsDir, "gcn-manager")

		fileLogger := &lumberjack.Logger{
			Filename:   filepath.Join(cli.LogsDir, "gcn-manager.log"),
			MaxSize:    5,     // 5 MB max file size
			MaxBackups: 1,     // keep only 1 backup file
			MaxAge:     1,     // delete backups older than 1 day
			Compress:   false,
		}
		multiWriter := io.MultiWriter(fileLogger, os.Stdout)
		log.SetOutput(multiWriter)
	}

	log.Printf("Starting gcn-manager v%s (log level: %s)", Version, cli.LogLevel)

	cfg := domain.DefaultConfig()
	cfg.App = cli.App
	cfg.MQTTHost = cli.MQTTHost
	cfg.MQTTPort = cli.MQTTPort
	cfg.MQTTUsername = cli.MQTTUsername
	cfg.MQTTPassword = cli.MQTTPassword
	cfg.MQTTKeepAlive = cli.MQTTKeepAlive
	cfg.MQTTConnectTimeout = cli.MQTTConnectTimeout
	cfg.MQTTReconnect = cli.MQTTReconnect
	cfg.MQTTStillConnectingSecs = cli.MQTTStillConnectingSecs
	cfg.MQTTTransport = cli.MQTTTransport
	cfg.MQTTTLSMinVersion = cli.MQTTTLSMinVersion
	cfg.MQTTTLSMaxVersion = cli.MQTTTLSMaxVersion
	cfg.MQTTTLSCiphers = cli.MQTTTLSCiphers
	cfg.MQTTSockSendBufferBytes = cli.MQTTSockSendBufferBytes
	cfg.MQTTClientIDRandomBytes = cli.MQTTClientIDRandomBytes
	cfg.IdleLoopSleep = cli.IdleLoopSleep
	cfg.ClientHeartbeatMaxSkew = cli.ClientHeartbeatMaxSkew
	cfg.ClientHeartbeatWatchdog = cli.ClientHeartbeatWatchdog
	cfg.MetricsAddr = cli.MetricsAddr
	cfg.ConfigFile = cli.ConfigFile

	if fileCfg != nil {
		fileCfg.Notifications.ApplyNotifications(&cfg)
	}

	appCtx := domain.NewContext(cfg)

	runErr := kctx.Run(appCtx)
	os.Exit(exitCode(runErr))
}

// exitCode maps a Boot.Run error to spec.md §6.5's exit-code table: 0 on
// clean shutdown, 2 on any fatal application error (configuration, TLS, or
// protocol failure all terminate the supervisor the same way).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	log.Printf("FATAL: %v", err)
	return 2
}

// applyFileConfig merges config file values into the CLI struct. Kong
// resolves each field to a CLI flag, an env var, or its declared struct-tag
// default, in that order, before this runs — so a field still holding its
// struct-tag default value was not explicitly set via flag or env. Only
// such untouched fields are overwritten by the file value, which preserves
// the documented precedence: CLI flag > env var > config file > struct
// default. (One narrow exception: a flag/env value that happens to equal
// the struct-tag default is indistinguishable from "left at default" and
// can still be overridden by the file — config-layering precision beyond
// this is out of scope per spec.md §1.)
func applyFileConfig(cfg *domain.FileConfig) {
	if cfg == nil {
		return
	}
	defaults := domain.DefaultConfig()

	setStr := func(dst *string, src *string, def string) {
		if src != nil && *dst == def {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *int, def time.Duration) {
		if src != nil && *dst == def {
			*dst = time.Duration(*src) * time.Second
		}
	}

	setStr(&cli.App, cfg.App, defaults.App)
	setDuration(&cli.IdleLoopSleep, cfg.IdleLoopSleep, defaults.IdleLoopSleep)
	setDuration(&cli.ClientHeartbeatMaxSkew, cfg.ClientHeartbeatMaxSkew, defaults.ClientHeartbeatMaxSkew)
	setDuration(&cli.ClientHeartbeatWatchdog, cfg.ClientHeartbeatWatchdog, defaults.ClientHeartbeatWatchdog)
	setStr(&cli.MetricsAddr, cfg.MetricsAddr, defaults.MetricsAddr)

	if m := cfg.MQTT; m != nil {
		setStr(&cli.MQTTHost, m.Host, defaults.MQTTHost)
		if m.Port != nil && cli.MQTTPort == defaults.MQTTPort {
			cli.MQTTPort = *m.Port
		}
		setStr(&cli.MQTTUsername, m.Username, defaults.MQTTUsername)
		setStr(&cli.MQTTPassword, m.Password, defaults.MQTTPassword)
		setDuration(&cli.MQTTKeepAlive, m.KeepAlive, defaults.MQTTKeepAlive)
		setDuration(&cli.MQTTConnectTimeout, m.ConnectTimeout, defaults.MQTTConnectTimeout)
		if m.Reconnect != nil && cli.MQTTReconnect == defaults.MQTTReconnect {
			cli.MQTTReconnect = *m.Reconnect
		}
		setDuration(&cli.MQTTStillConnectingSecs, m.StillConnectingSec, defaults.MQTTStillConnectingSecs)
		setStr(&cli.MQTTTransport, m.Transport, defaults.MQTTTransport)
		setStr(&cli.MQTTTLSMinVersion, m.TLSMinVersion, defaults.MQTTTLSMinVersion)
		setStr(&cli.MQTTTLSMaxVersion, m.TLSMaxVersion, defaults.MQTTTLSMaxVersion)
		setStr(&cli.MQTTTLSCiphers, m.TLSCiphers, defaults.MQTTTLSCiphers)
		if m.SockSendBufferSize != nil && cli.MQTTSockSendBufferBytes == defaults.MQTTSockSendBufferBytes {
			cli.MQTTSockSendBufferBytes = *m.SockSendBufferSize
		}
		if m.ClientIDRandomByte != nil && cli.MQTTClientIDRandomBytes == defaults.MQTTClientIDRandomBytes {
			cli.MQTTClientIDRandomBytes = *m.ClientIDRandomByte
		}
	}
}
