// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gatewaytest provides a scriptable in-memory gateway.Gateway for tests.
//
// The fake can simulate drops, stale links, failing or blocking calls, and it
// records every call so tests can assert ordering and concurrency.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/ManuGH/relinkd/internal/gateway"
)

// Op names a recorded gateway call.
type Op string

const (
	OpList          Op = "list"
	OpListConnected Op = "list_connected"
	OpConnect       Op = "connect"
	OpDisconnect    Op = "disconnect"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op       Op
	DeviceID string
}

// Hook runs inside Connect or Disconnect before the fake applies the result.
// A non-nil error fails the call and leaves link state untouched.
type Hook func(ctx context.Context, d gateway.Device) error

// Gateway is an in-memory gateway.Gateway.
type Gateway struct {
	mu        sync.Mutex
	visible   []gateway.Device
	connected map[string]bool
	order     []string

	calls []Call

	connectErrs    []error
	disconnectErrs []error
	listErr        error
	connectHook    Hook
	disconnectHook Hook

	inFlight    int
	maxInFlight int
}

// New returns a fake with the given devices visible and nothing connected.
func New(devices ...gateway.Device) *Gateway {
	g := &Gateway{connected: make(map[string]bool)}
	g.visible = append(g.visible, devices...)
	return g
}

// SetVisible replaces the visible device listing.
func (g *Gateway) SetVisible(devices ...gateway.Device) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.visible = append([]gateway.Device(nil), devices...)
}

// MarkConnected reports the device as linked without a Connect call.
func (g *Gateway) MarkConnected(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markLocked(id)
}

// Drop clears every link, simulating an unexpected loss of connectivity.
func (g *Gateway) Drop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = make(map[string]bool)
	g.order = nil
}

// FailConnect queues errors returned by the next Connect calls, in order.
// A nil entry lets that call succeed.
func (g *Gateway) FailConnect(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectErrs = append(g.connectErrs, errs...)
}

// FailDisconnect queues errors returned by the next Disconnect calls, in order.
func (g *Gateway) FailDisconnect(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnectErrs = append(g.disconnectErrs, errs...)
}

// FailList makes every listing call return err until cleared with nil.
func (g *Gateway) FailList(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

// OnConnect installs a hook run by every Connect call.
func (g *Gateway) OnConnect(h Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectHook = h
}

// OnDisconnect installs a hook run by every Disconnect call.
func (g *Gateway) OnDisconnect(h Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnectHook = h
}

// Calls returns a copy of the recorded calls.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Count returns how many calls of op were recorded.
func (g *Gateway) Count(op Op) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// MutatingCalls returns only connect and disconnect calls, in order.
func (g *Gateway) MutatingCalls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if c.Op == OpConnect || c.Op == OpDisconnect {
			out = append(out, c)
		}
	}
	return out
}

// MaxInFlight returns the highest number of simultaneous connect/disconnect calls seen.
func (g *Gateway) MaxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

// IsConnected reports whether id is currently linked.
func (g *Gateway) IsConnected(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected[id]
}

// ListDevices implements gateway.Gateway.
func (g *Gateway) ListDevices(ctx context.Context) ([]gateway.Device, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: OpList})
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]gateway.Device(nil), g.visible...), nil
}

// ListConnectedDevices implements gateway.Gateway.
func (g *Gateway) ListConnectedDevices(ctx context.Context) ([]gateway.Device, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: OpListConnected})
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]gateway.Device, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.describeLocked(id))
	}
	return out, nil
}

// Connect implements gateway.Gateway.
func (g *Gateway) Connect(ctx context.Context, d gateway.Device) error {
	hook, err := g.begin(OpConnect, d.ID, &g.connectErrs, g.connectHook)
	defer g.end()
	if err != nil {
		return err
	}
	if hook != nil {
		if err := hook(ctx, d); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markLocked(d.ID)
	return nil
}

// Disconnect implements gateway.Gateway.
func (g *Gateway) Disconnect(ctx context.Context, d gateway.Device) error {
	hook, err := g.begin(OpDisconnect, d.ID, &g.disconnectErrs, g.disconnectHook)
	defer g.end()
	if err != nil {
		return err
	}
	if hook != nil {
		if err := hook(ctx, d); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connected, d.ID)
	for i, id := range g.order {
		if id == d.ID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

func (g *Gateway) begin(op Op, id string, queue *[]error, hook Hook) (Hook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: op, DeviceID: id})
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	if len(*queue) > 0 {
		err := (*queue)[0]
		*queue = (*queue)[1:]
		if err != nil {
			return nil, err
		}
	}
	return hook, nil
}

func (g *Gateway) end() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
}

func (g *Gateway) markLocked(id string) {
	if g.connected[id] {
		return
	}
	g.connected[id] = true
	g.order = append(g.order, id)
}

func (g *Gateway) describeLocked(id string) gateway.Device {
	if d, ok := gateway.Find(g.visible, id); ok {
		return d
	}
	return gateway.Device{ID: id, DisplayName: gateway.UnknownName}
}
