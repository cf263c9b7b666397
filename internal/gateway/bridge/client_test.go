// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/relinkd/internal/gateway"
)

func newTestClient(t *testing.T, h http.Handler, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", Options{
		Timeout:    time.Second,
		MaxRetries: retries,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
	})
}

func TestListDevices(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/devices", r.URL.Path)
		assert.Equal(t, "relinkd", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"devices":[{"id":"a1","name":"Studio"},{"id":"b2","name":""}]}`))
	}), 0)

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, gateway.Device{ID: "a1", DisplayName: "Studio"}, devices[0])
	assert.Equal(t, gateway.UnknownName, devices[1].Name())
}

func TestListConnectedDevicesEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/devices/connected", r.URL.Path)
		_, _ = w.Write([]byte(`{"devices":[]}`))
	}), 0)

	devices, err := c.ListConnectedDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestConnectAndDisconnect(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}), 0)

	d := gateway.Device{ID: "a1/b", DisplayName: "Studio"}
	require.NoError(t, c.Connect(context.Background(), d))
	require.NoError(t, c.Disconnect(context.Background(), d))
	assert.Equal(t, []string{"/v1/devices/a1%2Fb/connect", "/v1/devices/a1%2Fb/disconnect"}, paths)

	require.Error(t, c.Connect(context.Background(), gateway.Device{}))
}

func TestNotImplementedMapsToAPIUnavailable(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotImplemented)
	}), 3)

	_, err := c.ListDevices(context.Background())
	require.ErrorIs(t, err, gateway.ErrAPIUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "capability failures are not retried")

	err = c.Connect(context.Background(), gateway.Device{ID: "a1"})
	require.ErrorIs(t, err, gateway.ErrAPIUnavailable)
}

func TestErrorBodyIsPassedThrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"device busy"}`))
	}), 0)

	err := c.Connect(context.Background(), gateway.Device{ID: "a1"})
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "connect", berr.Op)
	assert.Equal(t, http.StatusConflict, berr.Status)
	assert.Equal(t, "device busy", berr.Message)
	assert.Equal(t, "bridge connect: status 409: device busy", err.Error())
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"devices":[{"id":"a1","name":"Studio"}]}`))
	}), 2)

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"warming up"}`))
	}), 1)

	_, err := c.ListDevices(context.Background())
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, http.StatusServiceUnavailable, berr.Status)
	assert.Equal(t, "warming up", berr.Message)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), 3)

	err := c.Connect(context.Background(), gateway.Device{ID: "a1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransportErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, Options{Timeout: 200 * time.Millisecond, MaxRetries: 1, Backoff: time.Millisecond})
	_, err := c.ListDevices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge GET /v1/devices")
}

func TestContextCancelStopsRequest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.ListDevices(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeOptions(t *testing.T) {
	o := normalizeOptions(Options{MaxRetries: -1})
	assert.Equal(t, defaultTimeout, o.Timeout)
	assert.Zero(t, o.MaxRetries)
	assert.Equal(t, defaultBackoff, o.Backoff)
	assert.Equal(t, "relinkd", o.UserAgent)
	assert.Equal(t, defaultRetries, DefaultOptions().MaxRetries)
}
