// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/relinkd/internal/config"
	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/gateway/gatewaytest"
	"github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

var studio = gateway.Device{ID: "studio", DisplayName: "Studio Display"}

type runningApp struct {
	addr   string
	client *http.Client
	cancel context.CancelFunc
	done   chan error
}

func writeConfig(t *testing.T, path string, mutate func(*config.AppConfig)) {
	t.Helper()
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.API.RateLimit.Requests = 10000
	cfg.Supervisor.SettleDelay = time.Millisecond
	cfg.Supervisor.DiscoveryDelay = time.Millisecond
	cfg.Supervisor.TeardownDelay = time.Millisecond
	cfg.Supervisor.CleanupDelay = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	data, err := config.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func startApp(t *testing.T, path string, gw gateway.Gateway) *runningApp {
	t.Helper()
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewConfigHolder(cfg, loader)

	ctx, cancel := context.WithCancel(context.Background())
	app, mgr, err := Bootstrap(ctx, holder, Options{Gateway: gw, ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	app.reloadSignal = nil

	r := &runningApp{client: &http.Client{Timeout: 2 * time.Second}, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- app.Run(ctx) }()
	r.addr = waitForAddr(t, mgr)
	return r
}

func (r *runningApp) stop(t *testing.T) {
	t.Helper()
	r.client.CloseIdleConnections()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func (r *runningApp) status(t *testing.T) map[string]any {
	t.Helper()
	resp, err := r.client.Get("http://" + r.addr + "/api/v1/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestApp_ServesAndShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, nil)
	gw := gatewaytest.New(studio)
	r := startApp(t, path, gw)

	resp, err := r.client.Get("http://" + r.addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = r.client.Post("http://"+r.addr+"/api/v1/connect", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, gw.IsConnected("studio"))
	assert.Equal(t, true, r.status(t)["watchdogRunning"])

	r.stop(t)
}

func TestApp_AutoConnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, func(c *config.AppConfig) { c.Supervisor.AutoConnect = true })
	gw := gatewaytest.New(studio)
	r := startApp(t, path, gw)

	require.Eventually(t, func() bool { return gw.IsConnected("studio") }, 2*time.Second, 10*time.Millisecond)
	r.stop(t)
}

func TestApp_ReloadAppliesTimings(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, nil)
	r := startApp(t, path, gatewaytest.New(studio))
	assert.EqualValues(t, supervisor.DefaultMaxAttempts, r.status(t)["maxAttempts"])

	writeConfig(t, path, func(c *config.AppConfig) { c.Supervisor.MaxAttempts = 7 })
	require.Eventually(t, func() bool {
		v, _ := r.status(t)["maxAttempts"].(float64)
		return v == 7
	}, 5*time.Second, 50*time.Millisecond)

	r.stop(t)
}

func TestTimingsFrom(t *testing.T) {
	c := config.Default().Supervisor
	got := TimingsFrom(c)
	assert.Equal(t, c.MaxAttempts, got.MaxAttempts)
	assert.Equal(t, c.BaseInterval, got.BaseInterval)
	assert.Equal(t, c.CapInterval, got.CapInterval)
	assert.Equal(t, c.CleanupDelay, got.CleanupDelay)
}

func TestApp_RunRequiresManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
