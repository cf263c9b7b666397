// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/relinkd/internal/config"
	"github.com/ManuGH/relinkd/internal/daemon"
	"github.com/ManuGH/relinkd/internal/health"
	"github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/version"
)

var (
	serveListen   string
	serveLogLevel string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the relinkd daemon",
		Long: `Run the supervisor and its HTTP API until interrupted.

The configuration file is watched and reloaded on change or SIGHUP.
Reconnection timings and the log level apply without a restart.`,
		Example: `  relinkd serve --config /etc/relinkd/config.yaml
  relinkd serve --listen 0.0.0.0:7420 --log-level debug`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "override api.listenAddr")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "override logLevel (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if serveLogLevel != "" {
		cfg.LogLevel = serveLogLevel
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "relinkd", Version: version.Version})
	logger := log.WithComponent("main")
	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("config", loader.Path()).
		Msg("starting relinkd")

	ctx, stop := daemon.WaitForShutdown(cmd.Context())
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	app, _, err := daemon.Bootstrap(ctx, config.NewConfigHolder(cfg, loader), daemon.Options{ListenAddr: serveListen})
	if err != nil {
		return err
	}
	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.Info().Str(log.FieldEvent, "shutdown").Msg("relinkd stopped")
	return nil
}
