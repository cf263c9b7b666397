// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gateway defines the capability the supervisor uses to reach displays.
//
// A Gateway lists candidate devices, reports active links and connects or
// disconnects a target. Implementations own device discovery; callers only keep
// device IDs across calls.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// UnknownName is used when the gateway cannot report a display name.
const UnknownName = "Unknown"

// ErrAPIUnavailable reports that the gateway does not support the requested
// operation on this host. It is a capability failure and must not be retried.
var ErrAPIUnavailable = errors.New("gateway api unavailable")

// Device identifies one display as reported by the gateway.
type Device struct {
	// ID is opaque and stable across discovery calls.
	ID string `json:"id"`
	// DisplayName is human readable and may be UnknownName.
	DisplayName string `json:"name"`
}

// Name returns the display name, falling back to UnknownName.
func (d Device) Name() string {
	if d.DisplayName == "" {
		return UnknownName
	}
	return d.DisplayName
}

// String returns a human-readable string representation of the device
func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name(), d.ID)
}

// Gateway is the external collaborator that performs the actual link work.
type Gateway interface {
	// ListDevices returns every device currently visible. Order carries no meaning.
	ListDevices(ctx context.Context) ([]Device, error)
	// ListConnectedDevices returns the devices the gateway believes are linked.
	ListConnectedDevices(ctx context.Context) ([]Device, error)
	// Connect establishes a link to d.
	Connect(ctx context.Context, d Device) error
	// Disconnect tears down the link to d.
	Disconnect(ctx context.Context, d Device) error
}

// Find returns the device with the given ID.
func Find(devices []Device, id string) (Device, bool) {
	if id == "" {
		return Device{}, false
	}
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// First returns the first device of the listing.
func First(devices []Device) (Device, bool) {
	if len(devices) == 0 {
		return Device{}, false
	}
	return devices[0], true
}

// Contains reports whether id is present in devices.
func Contains(devices []Device, id string) bool {
	_, ok := Find(devices, id)
	return ok
}
