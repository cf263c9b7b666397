// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relinkd_gateway_calls_total",
		Help: "Gateway calls by operation and outcome",
	}, []string{"op", "outcome"}) // outcome=success|error|unsupported

	gatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relinkd_gateway_call_duration_seconds",
		Help:    "Gateway call latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	bridgeRequestRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relinkd_bridge_request_retries_total",
		Help: "Retried bridge HTTP requests by route",
	}, []string{"route"})
)

// RecordGatewayCall records the outcome and latency of one gateway operation.
func RecordGatewayCall(op, outcome string, d time.Duration) {
	gatewayCalls.WithLabelValues(op, outcome).Inc()
	gatewayCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordBridgeRetry increments the retry counter for a bridge route.
func RecordBridgeRetry(route string) {
	bridgeRequestRetries.WithLabelValues(route).Inc()
}
