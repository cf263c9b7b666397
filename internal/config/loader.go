// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means environment and defaults only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, possibly empty.
func (l *Loader) Path() string { return l.configPath }

// Load builds the configuration: defaults, then the file, then the
// environment, then Validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Keys absent from the file keep their value.
func loadFile(path string, cfg *AppConfig) error {
	// #nosec G304 -- operator supplied config path
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) envString(name, cur string) string { return ParseString(l.key(name), cur) }
func (l *Loader) envInt(name string, cur int) int   { return ParseInt(l.key(name), cur) }
func (l *Loader) envBool(name string, cur bool) bool {
	return ParseBool(l.key(name), cur)
}
func (l *Loader) envFloat(name string, cur float64) float64 {
	return ParseFloat(l.key(name), cur)
}
func (l *Loader) envDuration(name string, cur time.Duration) time.Duration {
	return ParseDuration(l.key(name), cur)
}

// mergeEnv applies RELINKD_* overrides on top of cfg.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)

	cfg.API.ListenAddr = l.envString("API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit.Requests = l.envInt("API_RATE_LIMIT_REQUESTS", cfg.API.RateLimit.Requests)
	cfg.API.RateLimit.Window = l.envDuration("API_RATE_LIMIT_WINDOW", cfg.API.RateLimit.Window)

	cfg.Gateway.BaseURL = l.envString("GATEWAY_BASE_URL", cfg.Gateway.BaseURL)
	cfg.Gateway.Timeout = l.envDuration("GATEWAY_TIMEOUT", cfg.Gateway.Timeout)
	cfg.Gateway.RateLimit = l.envFloat("GATEWAY_RATE_LIMIT", cfg.Gateway.RateLimit)
	cfg.Gateway.RateBurst = l.envInt("GATEWAY_RATE_BURST", cfg.Gateway.RateBurst)
	cfg.Gateway.MaxRetries = l.envInt("GATEWAY_MAX_RETRIES", cfg.Gateway.MaxRetries)

	s := &cfg.Supervisor
	s.MaxAttempts = l.envInt("SUPERVISOR_MAX_ATTEMPTS", s.MaxAttempts)
	s.BaseInterval = l.envDuration("SUPERVISOR_BASE_INTERVAL", s.BaseInterval)
	s.CapInterval = l.envDuration("SUPERVISOR_CAP_INTERVAL", s.CapInterval)
	s.SettleDelay = l.envDuration("SUPERVISOR_SETTLE_DELAY", s.SettleDelay)
	s.DiscoveryDelay = l.envDuration("SUPERVISOR_DISCOVERY_DELAY", s.DiscoveryDelay)
	s.DiscoveryAttempts = l.envInt("SUPERVISOR_DISCOVERY_ATTEMPTS", s.DiscoveryAttempts)
	s.TeardownDelay = l.envDuration("SUPERVISOR_TEARDOWN_DELAY", s.TeardownDelay)
	s.CleanupDelay = l.envDuration("SUPERVISOR_CLEANUP_DELAY", s.CleanupDelay)
	s.AutoConnect = l.envBool("SUPERVISOR_AUTO_CONNECT", s.AutoConnect)

	cfg.Cleanup.Command = ParseFields(l.key("CLEANUP_COMMAND"), cfg.Cleanup.Command)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.Metrics.Enabled = l.envBool("METRICS_ENABLED", cfg.Metrics.Enabled)
}
