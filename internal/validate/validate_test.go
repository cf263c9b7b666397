// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid http", "http://127.0.0.1:7421", false},
		{"valid https", "https://bridge.local", false},
		{"empty", "", true},
		{"no host", "http://", true},
		{"bad scheme", "ftp://bridge.local", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("gateway.baseURL", tt.value, []string{"http", "https"})
			assert.Equal(t, tt.wantErr, !v.IsValid(), v.Errors())
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	for addr, ok := range map[string]bool{
		":7420":          true,
		"127.0.0.1:7420": true,
		"[::1]:0":        true,
		"7420":           false,
		"host:http":      false,
		"host:70000":     false,
	} {
		v := New()
		v.ListenAddr("api.listenAddr", addr)
		assert.Equal(t, ok, v.IsValid(), addr)
	}
}

func TestValidator_Ranges(t *testing.T) {
	v := New()
	v.Range("a", 5, 1, 10)
	v.DurationRange("b", time.Second, 0, time.Minute)
	v.FloatRange("c", 0.5, 0, 1)
	require.True(t, v.IsValid())

	v.Range("a", 11, 1, 10)
	v.DurationRange("b", -time.Second, 0, time.Minute)
	v.FloatRange("c", 1.5, 0, 1)
	v.Positive("d", 0)
	v.NonNegative("e", -1)
	assert.Len(t, v.Errors(), 5)
}

func TestValidator_ErrAggregates(t *testing.T) {
	v := New()
	require.NoError(t, v.Err())

	v.NotEmpty("name", "  ")
	v.OneOf("exporter", "zipkin", []string{"grpc", "http"})
	err := v.Err()
	require.Error(t, err)

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors(), 2)
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "; ")
}

func TestValidator_Custom(t *testing.T) {
	v := New()
	v.Custom("x", 3, func(interface{}) error { return errors.New("nope") })
	require.Len(t, v.Errors(), 1)
	assert.Equal(t, "validation failed for x: nope", v.Errors()[0].Error())
}

func TestLogLevel(t *testing.T) {
	for _, l := range []string{"trace", "debug", "info", "warn", "error"} {
		got, err := ParseLogLevel(l)
		require.NoError(t, err)
		assert.Equal(t, l, got.String())
	}
	_, err := ParseLogLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)

	v := New()
	v.LogLevel("logLevel", "loud")
	assert.False(t, v.IsValid())
}
