// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"errors"

	"github.com/ManuGH/relinkd/internal/gateway"
)

var (
	// ErrNoDeviceAvailable is returned when discovery finds no device to connect to.
	ErrNoDeviceAvailable = errors.New("no device available")
	// ErrNotConnected is returned by Disconnect when nothing is linked.
	ErrNotConnected = errors.New("not connected")
	// ErrAPIUnavailable is the gateway's capability failure, passed through as-is.
	ErrAPIUnavailable = gateway.ErrAPIUnavailable
	// ErrClosed is returned by operations on a closed supervisor.
	ErrClosed = errors.New("supervisor closed")
)
