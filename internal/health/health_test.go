// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/relinkd/internal/config"
	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/gateway/gatewaytest"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "gateway", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Checks["gateway"].Status)

	w = httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGatewayChecker(t *testing.T) {
	gw := gatewaytest.New(gateway.Device{ID: "a"})
	c := NewGatewayChecker(gw)
	assert.Equal(t, "gateway", c.Name())

	r := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "1 device(s) visible", r.Message)

	gw.FailList(errors.New("connection refused"))
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	gw.FailList(gateway.ErrAPIUnavailable)
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
}

type fixedState supervisor.State

func (f fixedState) State() supervisor.State { return supervisor.State(f) }

func TestSupervisorChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewSupervisorChecker(fixedState(supervisor.Idle())).Check(context.Background()).Status)
	r := NewSupervisorChecker(fixedState(supervisor.Retrying(2))).Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "retrying(2)", r.Message)
	assert.Equal(t, StatusDegraded, NewSupervisorChecker(fixedState(supervisor.Failed())).Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	cfg := config.Default()
	cfg.Gateway.BaseURL = "http://" + ln.Addr().String()
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Cleanup.Command = []string{"relinkd-definitely-missing-helper"}
	require.Error(t, PerformStartupChecks(context.Background(), cfg))
}
