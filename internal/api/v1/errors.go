// SPDX-License-Identifier: MIT

package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/relinkd/internal/supervisor"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Error codes carried in ErrorResponse.Error.
const (
	CodeBadRequest     = "bad_request"
	CodeNoDevice       = "no_device_available"
	CodeNotConnected   = "not_connected"
	CodeAPIUnavailable = "api_unavailable"
	CodeGateway        = "gateway_error"
	CodeTimeout        = "timeout"
	CodeShuttingDown   = "shutting_down"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-API-Version", "1")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeBadRequest writes a 400 for a malformed request.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: CodeBadRequest, Detail: err.Error()})
}

// StatusFor maps a supervisor error onto its HTTP status and error code.
// Anything unclassified came from the gateway and is reported as 502.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, supervisor.ErrNoDeviceAvailable):
		return http.StatusNotFound, CodeNoDevice
	case errors.Is(err, supervisor.ErrNotConnected):
		return http.StatusConflict, CodeNotConnected
	case errors.Is(err, supervisor.ErrAPIUnavailable):
		return http.StatusNotImplemented, CodeAPIUnavailable
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable, CodeShuttingDown
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusBadGateway, CodeGateway
	}
}

// writeError writes the mapped error response for err.
func writeError(w http.ResponseWriter, err error) {
	code, name := StatusFor(err)
	writeJSON(w, code, ErrorResponse{Error: name, Detail: err.Error()})
}
