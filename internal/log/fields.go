// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldEpisodeID = "episode_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "op"

	// Device fields
	FieldDeviceID   = "device_id"
	FieldDeviceName = "device_name"

	// Supervisor fields
	FieldAttempt     = "attempt"
	FieldFailures    = "failures"
	FieldMaxAttempts = "max_attempts"
	FieldInterval    = "interval"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldStatus  = "status"
)
