package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ccrelay/ccrelay/internal/daemon"
	"github.com/ccrelay/ccrelay/internal/daemon/components"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Aliases: []string{"serve"},
	Short:   "Start the relay in background daemon mode",
	Long:    `Starts the relay as a long-running service using component lifecycle orchestration. It exposes the hook API, provider webhooks, and a health endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		stateComp := components.NewStateStoreComponent(cfg)
		sessionsComp := components.NewSessionsComponent(cfg)
		channelsComp := components.NewChannelsComponent(cfg, stateComp, sessionsComp)
		maintenanceComp := components.NewMaintenanceComponent(cfg, sessionsComp, channelsComp)
		httpComp := components.NewHTTPServerComponent(daemonMgr, cfg, stateComp, sessionsComp, channelsComp)

		daemonMgr.AddComponent(stateComp)
		daemonMgr.AddComponent(sessionsComp)
		daemonMgr.AddComponent(channelsComp)
		daemonMgr.AddComponent(maintenanceComp)
		daemonMgr.AddComponent(httpComp)

		slog.Info("ccrelay daemon starting up...", "port", cfg.Server.Port)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("ccrelay daemon stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("ccrelay daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
