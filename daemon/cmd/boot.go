// Package cmd provides command implementations for the fleet manager CLI.
package cmd

import (
	"context"

	"github.com/nipil/gcn-manager/daemon/domain"
	"github.com/nipil/gcn-manager/daemon/logger"
	"github.com/nipil/gcn-manager/daemon/services/notify"
	"github.com/nipil/gcn-manager/daemon/services/registry"
	"github.com/nipil/gcn-manager/daemon/services/supervisor"
)

// Boot starts the fleet manager's Supervisor and blocks until it exits.
// Signal-driven shutdown (SIGHUP/SIGINT/SIGTERM) is installed by the
// Supervisor itself, per spec.md §4.E.
type Boot struct{}

// Run builds the registry and notification sink from appCtx, wires the
// optional config-file hot-reload of notification settings, and hands the
// pair to a fresh Supervisor.
func (b *Boot) Run(appCtx *domain.Context) error {
	reg := registry.New()
	sink := notify.New(appCtx.Config)

	if appCtx.Config.ConfigFile != "" {
		stopWatch := make(chan struct{})
		defer close(stopWatch)

		reload := func(fc *domain.FileConfigNotifications) {
			cfg := appCtx.Config
			fc.ApplyNotifications(&cfg)
			sink.ReloadNotifications(cfg)
		}
		if err := domain.WatchNotifications(appCtx.Config.ConfigFile, stopWatch, reload); err != nil {
			logger.Warning("Boot: notification hot-reload disabled: %v", err)
		}
	}

	sup := supervisor.New(appCtx.Config, reg, appCtx.Hub, sink)
	return sup.Run(context.Background())
}
