// SPDX-License-Identifier: MIT

package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/gateway/gatewaytest"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	studio  = gateway.Device{ID: "studio", DisplayName: "Studio Display"}
	sidecar = gateway.Device{ID: "sidecar", DisplayName: "Sidecar"}
)

func newTestRouter(t *testing.T, gw *gatewaytest.Gateway) (http.Handler, *supervisor.Supervisor) {
	t.Helper()
	sup := supervisor.New(gw, supervisor.WithTimings(supervisor.Timings{
		MaxAttempts:       5,
		BaseInterval:      time.Hour,
		CapInterval:       time.Hour,
		SettleDelay:       time.Millisecond,
		DiscoveryDelay:    time.Millisecond,
		DiscoveryAttempts: 3,
		TeardownDelay:     time.Millisecond,
		CleanupDelay:      time.Millisecond,
	}))
	t.Cleanup(sup.Close)

	r := chi.NewRouter()
	r.Route("/api/v1", NewHandler(sup).Routes)
	return r, sup
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestConnect_PicksFirstDevice(t *testing.T) {
	gw := gatewaytest.New(studio, sidecar)
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodPost, "/api/v1/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-API-Version"))

	var sum supervisor.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, "studio", sum.Device.ID)
	assert.Equal(t, "Connected to Studio Display", sum.Message)
	assert.True(t, gw.IsConnected("studio"))
}

func TestConnect_NamedDevice(t *testing.T) {
	gw := gatewaytest.New(studio, sidecar)
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodPost, "/api/v1/connect", `{"deviceId":"sidecar"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gw.IsConnected("sidecar"))
	assert.False(t, gw.IsConnected("studio"))
}

func TestConnect_UnknownDeviceIs404(t *testing.T) {
	h, _ := newTestRouter(t, gatewaytest.New(studio))

	rec := do(t, h, http.MethodPost, "/api/v1/connect", `{"deviceId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNoDevice, decodeError(t, rec).Error)
}

func TestConnect_NothingVisibleIs404(t *testing.T) {
	h, _ := newTestRouter(t, gatewaytest.New())

	rec := do(t, h, http.MethodPost, "/api/v1/connect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnect_BadBodyIs400(t *testing.T) {
	h, _ := newTestRouter(t, gatewaytest.New(studio))

	for _, body := range []string{`{"deviceId":`, `{"device":"studio"}`, `[1]`} {
		rec := do(t, h, http.MethodPost, "/api/v1/connect", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, CodeBadRequest, decodeError(t, rec).Error)
	}
}

func TestConnect_GatewayErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"api unavailable", gateway.ErrAPIUnavailable, http.StatusNotImplemented},
		{"passthrough", errors.New("display asleep"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := gatewaytest.New(studio)
			gw.FailConnect(tt.err)
			h, _ := newTestRouter(t, gw)

			rec := do(t, h, http.MethodPost, "/api/v1/connect", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, decodeError(t, rec).Detail, tt.err.Error())
		})
	}
}

func TestDisconnect_NotConnectedIs409(t *testing.T) {
	h, _ := newTestRouter(t, gatewaytest.New(studio))

	rec := do(t, h, http.MethodPost, "/api/v1/disconnect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeNotConnected, decodeError(t, rec).Error)
}

func TestDisconnect_AfterConnect(t *testing.T) {
	gw := gatewaytest.New(studio)
	h, sup := newTestRouter(t, gw)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/connect", "").Code)
	rec := do(t, h, http.MethodPost, "/api/v1/disconnect", `{"deviceId":"studio"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum supervisor.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, "Disconnected from Studio Display", sum.Message)
	assert.False(t, gw.IsConnected("studio"))
	assert.False(t, sup.Status().WatchdogRunning)
}

func TestToggle(t *testing.T) {
	gw := gatewaytest.New(studio)
	h, _ := newTestRouter(t, gw)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/toggle", "").Code)
	assert.True(t, gw.IsConnected("studio"))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/toggle", "").Code)
	assert.False(t, gw.IsConnected("studio"))
}

func TestRetry_ConnectsRememberedDevice(t *testing.T) {
	gw := gatewaytest.New(studio, sidecar)
	h, _ := newTestRouter(t, gw)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/connect", `{"deviceId":"sidecar"}`).Code)
	gw.Drop()

	rec := do(t, h, http.MethodPost, "/api/v1/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gw.IsConnected("sidecar"))
}

func TestStatus(t *testing.T) {
	gw := gatewaytest.New(studio)
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, map[string]any{"state": "idle"}, resp["reconnection"])
	assert.Equal(t, false, resp["connected"])

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/connect", "").Code)
	var st StatusResponse
	rec = do(t, h, http.MethodGet, "/api/v1/status", "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.True(t, st.Connected)
	assert.Equal(t, "Studio Display", st.ConnectedDevice)
	assert.Equal(t, "studio", st.LastConnectedID)
	assert.True(t, st.WatchdogRunning)
}

func TestStatus_GatewayDownStillAnswers(t *testing.T) {
	gw := gatewaytest.New(studio)
	gw.FailList(errors.New("bridge down"))
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "bridge down", resp["gatewayError"])
}

func TestDevices(t *testing.T) {
	gw := gatewaytest.New(studio, sidecar)
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DevicesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []gateway.Device{studio, sidecar}, resp.Devices)

	gw.SetVisible()
	rec = do(t, h, http.MethodGet, "/api/v1/devices", "")
	assert.JSONEq(t, `{"devices":[]}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{supervisor.ErrNoDeviceAvailable, http.StatusNotFound},
		{supervisor.ErrNotConnected, http.StatusConflict},
		{supervisor.ErrAPIUnavailable, http.StatusNotImplemented},
		{supervisor.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		code, _ := StatusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
