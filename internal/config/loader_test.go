// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.Supervisor.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Supervisor.BaseInterval)
	assert.Equal(t, 180*time.Second, cfg.Supervisor.CapInterval)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
logLevel: debug
gateway:
  baseURL: http://bridge.local:9000
supervisor:
  settleDelay: 1500ms
  autoConnect: true
cleanup:
  command: [xdotool, keyup, shift]
`)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://bridge.local:9000", cfg.Gateway.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.Supervisor.SettleDelay)
	assert.True(t, cfg.Supervisor.AutoConnect)
	assert.Equal(t, []string{"xdotool", "keyup", "shift"}, cfg.Cleanup.Command)

	// untouched keys keep their defaults
	assert.Equal(t, Default().Gateway.Timeout, cfg.Gateway.Timeout)
	assert.Equal(t, Default().Supervisor.MaxAttempts, cfg.Supervisor.MaxAttempts)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := NewLoader(writeFile(t, "")).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "supervisor:\n  maxAttemps: 3\n")
	_, err := NewLoader(path).Load()
	require.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "supervisor:\n  maxAttempts: 3\n")
	t.Setenv("RELINKD_SUPERVISOR_MAX_ATTEMPTS", "7")
	t.Setenv("RELINKD_SUPERVISOR_BASE_INTERVAL", "2s")
	t.Setenv("RELINKD_TELEMETRY_SAMPLING_RATE", "0.25")
	t.Setenv("RELINKD_METRICS_ENABLED", "no")
	t.Setenv("RELINKD_CLEANUP_COMMAND", "xdotool keyup super")

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Supervisor.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Supervisor.BaseInterval)
	assert.Equal(t, 0.25, cfg.Telemetry.SamplingRate)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"xdotool", "keyup", "super"}, cfg.Cleanup.Command)
	assert.Contains(t, l.ConsumedEnvKeys, "RELINKD_SUPERVISOR_MAX_ATTEMPTS")
}

func TestInvalidEnvKeepsConfiguredValue(t *testing.T) {
	t.Setenv("RELINKD_SUPERVISOR_MAX_ATTEMPTS", "many")
	t.Setenv("RELINKD_GATEWAY_TIMEOUT", "")
	t.Setenv("RELINKD_SUPERVISOR_AUTO_CONNECT", "maybe")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Supervisor.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.False(t, cfg.Supervisor.AutoConnect)
}

func TestValidateReportsAllFields(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.API.ListenAddr = "7420"
	cfg.Gateway.BaseURL = "ftp://bridge"
	cfg.Supervisor.MaxAttempts = 0
	cfg.Supervisor.CapInterval = time.Second
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"

	err := Validate(cfg)
	require.Error(t, err)
	for _, field := range []string{
		"logLevel", "api.listenAddr", "gateway.baseURL",
		"supervisor.maxAttempts", "supervisor.capInterval", "telemetry.exporter",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, Validate(Default()))
}
