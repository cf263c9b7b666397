// SPDX-License-Identifier: MIT

// Package daemon provides the core daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/ManuGH/relinkd/internal/api"
	"github.com/ManuGH/relinkd/internal/config"
	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/gateway/bridge"
	"github.com/ManuGH/relinkd/internal/health"
	"github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/modifiers"
	"github.com/ManuGH/relinkd/internal/supervisor"
	"github.com/ManuGH/relinkd/internal/telemetry"
	"github.com/ManuGH/relinkd/internal/version"
)

// Options tune Bootstrap for tests.
type Options struct {
	// Gateway replaces the bridge client built from the configuration.
	Gateway gateway.Gateway
	// ListenAddr overrides api.listenAddr.
	ListenAddr string
}

// Bootstrap builds the runtime graph for the configuration held by holder:
// tracing, gateway client, supervisor, events hub, health checks and the API
// server. Shutdown hooks close them in reverse order.
func Bootstrap(ctx context.Context, holder *config.ConfigHolder, opts Options) (*App, Manager, error) {
	cfg := holder.Get()
	logger := log.WithComponent("daemon")

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "relinkd",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		// Tracing is optional; continue with the noop provider.
		logger.Warn().Err(err).Msg("Telemetry initialization failed, continuing without tracing")
		provider, _ = telemetry.NewProvider(ctx, telemetry.Config{})
	}

	gw := opts.Gateway
	if gw == nil {
		gw = bridge.NewClient(cfg.Gateway.BaseURL, bridge.Options{
			Timeout:        cfg.Gateway.Timeout,
			MaxRetries:     cfg.Gateway.MaxRetries,
			RateLimit:      rate.Limit(cfg.Gateway.RateLimit),
			RateLimitBurst: cfg.Gateway.RateBurst,
			UserAgent:      "relinkd/" + version.Version,
		})
	}

	sup := supervisor.New(gw,
		supervisor.WithTimings(TimingsFrom(cfg.Supervisor)),
		supervisor.WithReleaser(modifiers.NewCommandReleaser(cfg.Cleanup.Command)),
		supervisor.WithLogger(log.WithComponent("supervisor")),
		supervisor.WithTracer(telemetry.Tracer("relinkd/supervisor")),
	)

	hub := api.NewHub(sup.State())
	sup.Subscribe(hub.Publish)

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewGatewayChecker(gw))
	hm.RegisterChecker(health.NewSupervisorChecker(sup))

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = "relinkd-api"
	}
	srv := api.New(api.Config{
		MetricsEnabled:    cfg.Metrics.Enabled,
		TracingService:    tracingService,
		RateLimitRequests: cfg.API.RateLimit.Requests,
		RateLimitWindow:   cfg.API.RateLimit.Window,
	}, sup, hm, hub)

	addr := cfg.API.ListenAddr
	if opts.ListenAddr != "" {
		addr = opts.ListenAddr
	}
	mgr, err := NewManager(DefaultServerConfig(addr), Deps{
		Logger:     logger,
		APIHandler: srv.Handler(),
	})
	if err != nil {
		sup.Close()
		_ = provider.Shutdown(ctx)
		return nil, nil, fmt.Errorf("create manager: %w", err)
	}

	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	mgr.RegisterShutdownHook("supervisor", func(context.Context) error {
		sup.Close()
		return nil
	})
	mgr.RegisterShutdownHook("events", func(context.Context) error {
		hub.Close()
		return nil
	})

	logger.Info().
		Str("version", version.Version).
		Str("listen", addr).
		Str(log.FieldBaseURL, cfg.Gateway.BaseURL).
		Bool("auto_connect", cfg.Supervisor.AutoConnect).
		Msg("relinkd bootstrapped")

	return NewApp(logger, mgr, holder, sup), mgr, nil
}

// WaitForShutdown returns a context cancelled on interrupt/termination signals.
func WaitForShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
