// SPDX-License-Identifier: MIT

// Package v1 implements the /api/v1 control routes of relinkd.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

const maxBodyBytes = 4 << 10

// Controller is the supervisor surface the handlers drive.
type Controller interface {
	Status() supervisor.Status
	CurrentlyConnectedDeviceName(ctx context.Context) (string, bool, error)
	ListDevices(ctx context.Context) ([]gateway.Device, error)
	Connect(ctx context.Context, target *gateway.Device) (supervisor.Summary, error)
	Disconnect(ctx context.Context, target *gateway.Device) (supervisor.Summary, error)
	Toggle(ctx context.Context) (supervisor.Summary, error)
	RetryReconnection(ctx context.Context) (supervisor.Summary, error)
}

// Handler holds v1 API dependencies
type Handler struct {
	ctrl Controller
}

// NewHandler creates a new v1 API handler
func NewHandler(ctrl Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// Routes mounts the v1 routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/status", h.HandleStatus)
	r.Get("/devices", h.HandleDevices)
	r.Post("/connect", h.HandleConnect)
	r.Post("/disconnect", h.HandleDisconnect)
	r.Post("/toggle", h.HandleToggle)
	r.Post("/retry", h.HandleRetry)
}

// StatusResponse is the supervisor snapshot plus the live link as reported by
// the gateway. A gateway failure does not fail the request.
type StatusResponse struct {
	supervisor.Status
	Connected       bool   `json:"connected"`
	ConnectedDevice string `json:"connectedDevice,omitempty"`
	GatewayError    string `json:"gatewayError,omitempty"`
}

// DevicesResponse lists visible devices.
type DevicesResponse struct {
	Devices []gateway.Device `json:"devices"`
}

// DeviceRequest optionally names the device to act on.
type DeviceRequest struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// HandleStatus implements GET /api/v1/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: h.ctrl.Status()}
	name, ok, err := h.ctrl.CurrentlyConnectedDeviceName(r.Context())
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api.v1")
		logger.Debug().Err(err).Str(log.FieldEvent, "v1.status.gateway_error").Msg("connected device lookup failed")
		resp.GatewayError = err.Error()
	} else {
		resp.Connected = ok
		resp.ConnectedDevice = name
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDevices implements GET /api/v1/devices
func (h *Handler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.ctrl.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []gateway.Device{}
	}
	writeJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}

// HandleConnect implements POST /api/v1/connect. A named device must be
// visible; without a name the supervisor picks one.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDeviceRequest(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var target *gateway.Device
	if req.DeviceID != "" {
		devices, err := h.ctrl.ListDevices(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		d, ok := gateway.Find(devices, req.DeviceID)
		if !ok {
			writeError(w, fmt.Errorf("device %q: %w", req.DeviceID, supervisor.ErrNoDeviceAvailable))
			return
		}
		target = &d
	}
	h.respond(w, r, "connect")(h.ctrl.Connect(r.Context(), target))
}

// HandleDisconnect implements POST /api/v1/disconnect.
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDeviceRequest(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var target *gateway.Device
	if req.DeviceID != "" {
		target = &gateway.Device{ID: req.DeviceID}
	}
	h.respond(w, r, "disconnect")(h.ctrl.Disconnect(r.Context(), target))
}

// HandleToggle implements POST /api/v1/toggle
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "toggle")(h.ctrl.Toggle(r.Context()))
}

// HandleRetry implements POST /api/v1/retry
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "retry")(h.ctrl.RetryReconnection(r.Context()))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string) func(supervisor.Summary, error) {
	return func(sum supervisor.Summary, err error) {
		logger := log.WithComponentFromContext(r.Context(), "api.v1")
		if err != nil {
			logger.Info().Err(err).
				Str(log.FieldEvent, "v1."+op+".failed").
				Msg("operation rejected")
			writeError(w, err)
			return
		}
		logger.Debug().
			Str(log.FieldEvent, "v1."+op+".success").
			Str(log.FieldDeviceID, sum.Device.ID).
			Msg(sum.Message)
		writeJSON(w, http.StatusOK, sum)
	}
}

// decodeDeviceRequest accepts an empty body as "no device named".
func decodeDeviceRequest(w http.ResponseWriter, r *http.Request) (DeviceRequest, error) {
	var req DeviceRequest
	if r.Body == nil {
		return req, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return DeviceRequest{}, nil
		}
		return DeviceRequest{}, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}
