// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

// DefaultGatewayTimeout bounds one gateway probe.
const DefaultGatewayTimeout = 2 * time.Second

// GatewayChecker probes the gateway by listing devices.
type GatewayChecker struct {
	gw      gateway.Gateway
	timeout time.Duration
}

// NewGatewayChecker returns a checker with DefaultGatewayTimeout.
func NewGatewayChecker(gw gateway.Gateway) *GatewayChecker {
	return &GatewayChecker{gw: gw, timeout: DefaultGatewayTimeout}
}

func (c *GatewayChecker) Name() string { return "gateway" }

// Check reports unhealthy when the gateway lacks the API entirely and
// degraded when it is unreachable.
func (c *GatewayChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	devices, err := c.gw.ListDevices(ctx)
	switch {
	case errors.Is(err, gateway.ErrAPIUnavailable):
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "gateway api unavailable"}
	case err != nil:
		return CheckResult{Status: StatusDegraded, Error: err.Error(), Message: "gateway unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d device(s) visible", len(devices))}
}

// StateSource is the part of the supervisor the checker reads.
type StateSource interface {
	State() supervisor.State
}

// SupervisorChecker reports degraded once automatic recovery has given up.
type SupervisorChecker struct {
	src StateSource
}

// NewSupervisorChecker returns a checker reading src.
func NewSupervisorChecker(src StateSource) *SupervisorChecker {
	return &SupervisorChecker{src: src}
}

func (c *SupervisorChecker) Name() string { return "supervisor" }

func (c *SupervisorChecker) Check(context.Context) CheckResult {
	st := c.src.State()
	if st.Kind == supervisor.KindFailed {
		return CheckResult{Status: StatusDegraded, Message: "automatic reconnection exhausted; manual retry required"}
	}
	return CheckResult{Status: StatusHealthy, Message: st.String()}
}
