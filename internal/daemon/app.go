// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/relinkd/internal/config"
	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

// Controller is the supervisor surface the daemon drives directly.
type Controller interface {
	Connect(ctx context.Context, target *gateway.Device) (supervisor.Summary, error)
	UpdateTimings(t supervisor.Timings)
}

// App owns the long-lived runtime lifecycle (watchers, reload wiring,
// auto-connect) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	ctrl         Controller
	autoConnect  bool
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder, ctrl Controller) *App {
	a := &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		ctrl:         ctrl,
		reloadSignal: syscall.SIGHUP,
	}
	if cfgHolder != nil {
		a.autoConnect = cfgHolder.Get().Supervisor.AutoConnect
	}
	return a
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.ctrl == nil {
		return ErrMissingSupervisor
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)

		// Watcher is best-effort: a missing config directory must not stop the daemon.
		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
			}
			return nil
		})

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hupChan := make(chan os.Signal, 1)
				signal.Notify(hupChan, a.reloadSignal)
				defer signal.Stop(hupChan)

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hupChan:
						a.logger.Info().
							Str(log.FieldEvent, "config.reload_signal").
							Str("signal", a.reloadSignal.String()).
							Msg("received reload signal, reloading config")
						if err := a.cfgHolder.Reload(ctx); err != nil {
							a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	if a.autoConnect {
		g.Go(func() error {
			sum, err := a.ctrl.Connect(ctx, nil)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					a.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.autoconnect_failed").Msg("auto-connect failed")
				}
				return nil
			}
			a.logger.Info().
				Str(log.FieldEvent, "daemon.autoconnect_ok").
				Str(log.FieldDeviceID, sum.Device.ID).
				Msg(sum.Message)
			return nil
		})
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

// apply pushes reloadable settings into the running components.
func (a *App) apply(cfg config.AppConfig) {
	a.ctrl.UpdateTimings(TimingsFrom(cfg.Supervisor))
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("log level not applied")
	}
	a.logger.Info().Str(log.FieldEvent, "config.applied").Msg("reloaded configuration applied")
}

// TimingsFrom converts the configured reconnection policy.
func TimingsFrom(c config.SupervisorConfig) supervisor.Timings {
	return supervisor.Timings{
		MaxAttempts:       c.MaxAttempts,
		BaseInterval:      c.BaseInterval,
		CapInterval:       c.CapInterval,
		SettleDelay:       c.SettleDelay,
		DiscoveryDelay:    c.DiscoveryDelay,
		DiscoveryAttempts: c.DiscoveryAttempts,
		TeardownDelay:     c.TeardownDelay,
		CleanupDelay:      c.CleanupDelay,
	}
}
