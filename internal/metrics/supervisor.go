// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus instrumentation for relinkd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	supervisorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relinkd_supervisor_state",
		Help: "Reconnection state of the supervisor (active state=1; others 0)",
	}, []string{"state"})

	supervisorAttempt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relinkd_supervisor_attempt",
		Help: "Current automatic reconnect attempt (0 when idle)",
	})

	supervisorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relinkd_supervisor_transitions_total",
		Help: "Total number of published reconnection state transitions by target state",
	}, []string{"state"})

	reconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relinkd_reconnect_attempts_total",
		Help: "Watchdog reconnect attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure|skipped|self_recovered|unsupported

	dropsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relinkd_drops_detected_total",
		Help: "Total number of unexpected connection drops detected by the watchdog",
	})

	watchdogRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relinkd_watchdog_running",
		Help: "Whether the watchdog loop is running (1) or stopped (0)",
	})
)

// States reported by SetSupervisorState.
const (
	StateIdle     = "idle"
	StateRetrying = "retrying"
	StateFailed   = "failed"
)

var supervisorStates = []string{StateIdle, StateRetrying, StateFailed}

// Reconnect attempt outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
	OutcomeSkipped       = "skipped"
	OutcomeSelfRecovered = "self_recovered"
	OutcomeUnsupported   = "unsupported"
)

// SetSupervisorState records the active reconnection state and attempt number.
func SetSupervisorState(state string, attempt int) {
	for _, s := range supervisorStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		supervisorState.WithLabelValues(s).Set(value)
	}
	supervisorAttempt.Set(float64(attempt))
	supervisorTransitions.WithLabelValues(state).Inc()
}

// RecordReconnectAttempt increments the watchdog attempt counter for outcome.
func RecordReconnectAttempt(outcome string) {
	reconnectAttempts.WithLabelValues(outcome).Inc()
}

// RecordDrop increments the drop counter.
func RecordDrop() {
	dropsDetected.Inc()
}

// SetWatchdogRunning records whether a watchdog loop is alive.
func SetWatchdogRunning(running bool) {
	if running {
		watchdogRunning.Set(1)
		return
	}
	watchdogRunning.Set(0)
}

// GetSupervisorStateValue returns the gauge value for state (for testing).
func GetSupervisorStateValue(state string) float64 {
	var m dto.Metric
	if err := supervisorState.WithLabelValues(state).Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
