// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for relinkd.
//
// Precedence is environment (RELINKD_*) over the YAML file over defaults.
// The file is decoded strictly: unknown keys are rejected.
package config

import (
	"net"
	"time"

	"github.com/ManuGH/relinkd/internal/validate"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELINKD_"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	LogLevel   string           `yaml:"logLevel"`
	API        APIConfig        `yaml:"api"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	ListenAddr string          `yaml:"listenAddr"`
	RateLimit  RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// GatewayConfig configures the bridge helper client.
type GatewayConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  float64       `yaml:"rateLimit"`
	RateBurst  int           `yaml:"rateBurst"`
	MaxRetries int           `yaml:"maxRetries"`
}

// SupervisorConfig holds the reconnection policy.
type SupervisorConfig struct {
	MaxAttempts       int           `yaml:"maxAttempts"`
	BaseInterval      time.Duration `yaml:"baseInterval"`
	CapInterval       time.Duration `yaml:"capInterval"`
	SettleDelay       time.Duration `yaml:"settleDelay"`
	DiscoveryDelay    time.Duration `yaml:"discoveryDelay"`
	DiscoveryAttempts int           `yaml:"discoveryAttempts"`
	TeardownDelay     time.Duration `yaml:"teardownDelay"`
	CleanupDelay      time.Duration `yaml:"cleanupDelay"`
	AutoConnect       bool          `yaml:"autoConnect"`
}

// CleanupConfig configures the modifier release helper.
type CleanupConfig struct {
	Command []string `yaml:"command,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		LogLevel: "info",
		API: APIConfig{
			ListenAddr: "127.0.0.1:7420",
			RateLimit:  RateLimitConfig{Requests: 60, Window: time.Minute},
		},
		Gateway: GatewayConfig{
			BaseURL:    "http://127.0.0.1:7421",
			Timeout:    5 * time.Second,
			RateLimit:  10,
			RateBurst:  20,
			MaxRetries: 2,
		},
		Supervisor: SupervisorConfig{
			MaxAttempts:       5,
			BaseInterval:      10 * time.Second,
			CapInterval:       180 * time.Second,
			SettleDelay:       3 * time.Second,
			DiscoveryDelay:    2 * time.Second,
			DiscoveryAttempts: 3,
			TeardownDelay:     time.Second,
			CleanupDelay:      500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate checks cfg and reports every invalid field at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)
	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.Positive("api.rateLimit.requests", cfg.API.RateLimit.Requests)
	v.DurationRange("api.rateLimit.window", cfg.API.RateLimit.Window, time.Second, time.Hour)

	v.URL("gateway.baseURL", cfg.Gateway.BaseURL, []string{"http", "https"})
	v.DurationRange("gateway.timeout", cfg.Gateway.Timeout, 100*time.Millisecond, 2*time.Minute)
	v.FloatRange("gateway.rateLimit", cfg.Gateway.RateLimit, 0.1, 1000)
	v.Positive("gateway.rateBurst", cfg.Gateway.RateBurst)
	v.Range("gateway.maxRetries", cfg.Gateway.MaxRetries, 0, 10)

	s := cfg.Supervisor
	v.Range("supervisor.maxAttempts", s.MaxAttempts, 1, 100)
	v.DurationRange("supervisor.baseInterval", s.BaseInterval, time.Millisecond, time.Hour)
	v.DurationRange("supervisor.capInterval", s.CapInterval, time.Millisecond, 24*time.Hour)
	if s.CapInterval < s.BaseInterval {
		v.AddError("supervisor.capInterval", "must not be smaller than baseInterval", s.CapInterval)
	}
	v.DurationRange("supervisor.settleDelay", s.SettleDelay, 0, 5*time.Minute)
	v.DurationRange("supervisor.discoveryDelay", s.DiscoveryDelay, 0, 5*time.Minute)
	v.Range("supervisor.discoveryAttempts", s.DiscoveryAttempts, 1, 20)
	v.DurationRange("supervisor.teardownDelay", s.TeardownDelay, 0, time.Minute)
	v.DurationRange("supervisor.cleanupDelay", s.CleanupDelay, 0, time.Minute)

	if len(cfg.Cleanup.Command) > 0 {
		v.NotEmpty("cleanup.command[0]", cfg.Cleanup.Command[0])
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		if _, _, err := net.SplitHostPort(cfg.Telemetry.Endpoint); err != nil {
			v.AddError("telemetry.endpoint", "must be host:port", cfg.Telemetry.Endpoint)
		}
	}
	v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
