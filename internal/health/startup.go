// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/relinkd/internal/config"
	"github.com/ManuGH/relinkd/internal/log"
)

// PerformStartupChecks validates runtime dependencies before the daemon starts.
// A missing cleanup helper is fatal; an unreachable bridge only warns because
// the supervisor recovers once it appears.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if len(cfg.Cleanup.Command) > 0 {
		bin := cfg.Cleanup.Command[0]
		path, err := exec.LookPath(bin)
		if err != nil {
			return fmt.Errorf("cleanup command not found (%s): %w", bin, err)
		}
		logger.Info().Str("path", path).Msg("cleanup helper available")
	}

	checkBridgeReachable(ctx, logger, cfg.Gateway.BaseURL)
	return nil
}

func checkBridgeReachable(ctx context.Context, logger zerolog.Logger, baseURL string) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		logger.Warn().Str("url", baseURL).Msg("bridge URL not parseable; skipping reachability probe")
		return
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	dialer := net.Dialer{Timeout: time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		logger.Warn().Err(err).Str("addr", host).Msg("bridge helper not reachable yet")
		return
	}
	_ = conn.Close()
	logger.Info().Str("addr", host).Msg("bridge helper reachable")
}
