// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Gateway attributes
	GatewayOpKey       = "gateway.op"
	GatewayDeviceIDKey = "gateway.device_id"

	// Supervisor attributes
	SupervisorAttemptKey  = "supervisor.attempt"
	SupervisorFailuresKey = "supervisor.failures"
	SupervisorTriggerKey  = "supervisor.trigger" // explicit|watchdog|retry

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// GatewayAttributes creates span attributes for one gateway operation.
func GatewayAttributes(op, deviceID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(GatewayOpKey, op)}
	if deviceID != "" {
		attrs = append(attrs, attribute.String(GatewayDeviceIDKey, deviceID))
	}
	return attrs
}

// SupervisorAttributes creates span attributes describing the retry position.
func SupervisorAttributes(trigger string, attempt, failures int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SupervisorTriggerKey, trigger),
		attribute.Int(SupervisorAttemptKey, attempt),
		attribute.Int(SupervisorFailuresKey, failures),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
