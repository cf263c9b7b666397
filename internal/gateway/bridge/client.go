// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge implements gateway.Gateway against the local display bridge
// helper's HTTP JSON API.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/relinkd/internal/gateway"
	"github.com/ManuGH/relinkd/internal/metrics"
	"github.com/ManuGH/relinkd/internal/telemetry"
)

const (
	routeDevices    = "/v1/devices"
	routeConnected  = "/v1/devices/connected"
	routeConnect    = "/v1/devices/{id}/connect"
	routeDisconnect = "/v1/devices/{id}/disconnect"
)

// Error is a non-2xx answer from the bridge helper.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bridge %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("bridge %s: status %d: %s", e.Op, e.Status, e.Message)
}

// Options configures the client.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
	UserAgent      string
}

const (
	defaultTimeout        = 5 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRateLimit      = 10
	defaultRateLimitBurst = 20
)

// Client talks to the bridge helper.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	tracer     trace.Tracer
	rnd        *rand.Rand
	mu         sync.Mutex
}

var _ gateway.Gateway = (*Client)(nil)

// NewClient returns a client for the helper at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	nopts := normalizeOptions(opts)
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: nopts.Timeout,
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		userAgent:  nopts.UserAgent,
		tracer:     telemetry.Tracer("relinkd/bridge"),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "relinkd"
	}
	return opts
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{MaxRetries: defaultRetries}
}

type deviceList struct {
	Devices []gateway.Device `json:"devices"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ListDevices implements gateway.Gateway.
func (c *Client) ListDevices(ctx context.Context) ([]gateway.Device, error) {
	return c.list(ctx, "list", routeDevices)
}

// ListConnectedDevices implements gateway.Gateway.
func (c *Client) ListConnectedDevices(ctx context.Context) ([]gateway.Device, error) {
	return c.list(ctx, "list_connected", routeConnected)
}

// Connect implements gateway.Gateway.
func (c *Client) Connect(ctx context.Context, d gateway.Device) error {
	return c.post(ctx, "connect", routeConnect, d.ID)
}

// Disconnect implements gateway.Gateway.
func (c *Client) Disconnect(ctx context.Context, d gateway.Device) error {
	return c.post(ctx, "disconnect", routeDisconnect, d.ID)
}

func (c *Client) list(ctx context.Context, op, route string) ([]gateway.Device, error) {
	resp, err := c.do(ctx, http.MethodGet, route, route, c.maxRetries)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}
	var body deviceList
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("bridge %s: decode: %w", op, err)
	}
	return body.Devices, nil
}

func (c *Client) post(ctx context.Context, op, route, id string) error {
	if id == "" {
		return fmt.Errorf("bridge %s: empty device id", op)
	}
	path := strings.Replace(route, "{id}", url.PathEscape(id), 1)
	resp, err := c.do(ctx, http.MethodPost, route, path, 0)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return checkStatus(op, resp)
}

// checkStatus maps non-2xx answers to errors. 501 is a capability failure.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotImplemented {
		return fmt.Errorf("bridge %s: %w", op, gateway.ErrAPIUnavailable)
	}
	msg := strings.TrimSpace(string(raw))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &Error{Op: op, Status: resp.StatusCode, Message: msg}
}

// do sends one request, retrying transport errors and 5xx answers up to
// retries times. The caller closes the returned body.
func (c *Client) do(ctx context.Context, method, route, path string, retries int) (*http.Response, error) {
	rawURL := c.BaseURL + path
	ctx, span := c.tracer.Start(ctx, "relinkd.bridge.request", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.HTTPMethodKey, method),
		attribute.String(telemetry.HTTPRouteKey, route),
	)

	maxAttempts := retries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, resp.StatusCode))
			if resp.StatusCode >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp, nil
		}

		if err == nil {
			if attempt == maxAttempts {
				span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, resp.StatusCode))
				span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			if ctx.Err() != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, ctx.Err()
			}
			lastErr = err
		}
		if attempt == maxAttempts {
			break
		}

		metrics.RecordBridgeRetry(route)
		if err := sleepWithContext(ctx, c.backoffFor(attempt-1)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	err := fmt.Errorf("bridge %s %s: %w", method, route, lastErr)
	if lastErr == nil {
		err = errors.New("bridge request failed")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// retryableStatus reports 5xx answers other than 501.
func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError && status != http.StatusNotImplemented
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
