// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor keeps one external display link alive.
//
// A Supervisor serves explicit Connect and Disconnect requests and runs a
// watchdog loop that detects unexpected drops, retries with exponential backoff
// and gives up after a bounded number of attempts. Every state transition is
// published, in order, to a single observer.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/relinkd/internal/backoff"
	"github.com/ManuGH/relinkd/internal/gateway"
	xlog "github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/metrics"
	"github.com/ManuGH/relinkd/internal/modifiers"
	"github.com/ManuGH/relinkd/internal/telemetry"
)

// DefaultMaxAttempts is the number of automatic reconnect attempts per drop episode.
const DefaultMaxAttempts = 5

// Timings holds the tunable delays and limits of the supervisor.
type Timings struct {
	MaxAttempts       int
	BaseInterval      time.Duration
	CapInterval       time.Duration
	SettleDelay       time.Duration
	DiscoveryDelay    time.Duration
	DiscoveryAttempts int
	TeardownDelay     time.Duration
	CleanupDelay      time.Duration
}

// DefaultTimings returns the production timing set.
func DefaultTimings() Timings {
	return Timings{
		MaxAttempts:       DefaultMaxAttempts,
		BaseInterval:      backoff.DefaultBase,
		CapInterval:       backoff.DefaultCap,
		SettleDelay:       3 * time.Second,
		DiscoveryDelay:    2 * time.Second,
		DiscoveryAttempts: 3,
		TeardownDelay:     time.Second,
		CleanupDelay:      500 * time.Millisecond,
	}
}

// normalized fills zero limits with defaults. Zero delays are kept.
func (t Timings) normalized() Timings {
	d := DefaultTimings()
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = d.MaxAttempts
	}
	if t.BaseInterval <= 0 {
		t.BaseInterval = d.BaseInterval
	}
	if t.CapInterval <= 0 {
		t.CapInterval = d.CapInterval
	}
	if t.DiscoveryAttempts <= 0 {
		t.DiscoveryAttempts = d.DiscoveryAttempts
	}
	return t
}

func (t Timings) policy() backoff.Policy {
	return backoff.Policy{Base: t.BaseInterval, Cap: t.CapInterval}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTimings overrides DefaultTimings.
func WithTimings(t Timings) Option {
	return func(s *Supervisor) { s.timings = t.normalized() }
}

// WithReleaser sets the modifier cleanup run after each successful connect.
func WithReleaser(r modifiers.Releaser) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.releaser = r
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithTracer replaces the tracer used for gateway spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Summary describes the result of an explicit operation.
type Summary struct {
	Device  gateway.Device `json:"device"`
	Message string         `json:"message"`
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State               State  `json:"reconnection"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	MaxAttempts         int    `json:"maxAttempts"`
	Reconnecting        bool   `json:"reconnecting"`
	LastConnectedID     string `json:"lastConnectedDeviceId,omitempty"`
	LastKnownID         string `json:"lastKnownDeviceId,omitempty"`
	WatchdogRunning     bool   `json:"watchdogRunning"`
	EpisodeID           string `json:"episodeId,omitempty"`
}

// Supervisor owns the reconnection state machine for one display.
type Supervisor struct {
	gw       gateway.Gateway
	releaser modifiers.Releaser
	tracer   trace.Tracer
	logger   zerolog.Logger
	notify   *notifier

	// gate admits one gateway connect/disconnect call at a time.
	gate *semaphore.Weighted

	mu            sync.Mutex
	timings       Timings
	state         State
	lastConnected string
	lastKnown     string
	failures      int
	reconnecting  bool
	episode       string
	closed        bool

	// generation identifies the live watchdog loop; loops holding an older
	// value must not touch state.
	generation uint64
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	cleanupTimer *time.Timer
	cleanupWG    sync.WaitGroup
}

// New returns an idle Supervisor. Close releases its goroutines.
func New(gw gateway.Gateway, opts ...Option) *Supervisor {
	s := &Supervisor{
		gw:       gw,
		releaser: modifiers.Nop{},
		tracer:   telemetry.Tracer("relinkd/supervisor"),
		logger:   xlog.WithComponent("supervisor"),
		gate:     semaphore.NewWeighted(1),
		timings:  DefaultTimings(),
		state:    Idle(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notify = newNotifier(s.logger)
	metrics.SetSupervisorState(metrics.StateIdle, 0)
	metrics.SetWatchdogRunning(false)
	return s
}

// Subscribe installs the single observer, replacing any previous one.
// A nil observer clears the slot. Observers run on one goroutine in
// transition order and must not call Close.
func (s *Supervisor) Subscribe(o Observer) {
	s.notify.setObserver(o)
}

// State returns the last published state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the internal bookkeeping.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:               s.state,
		ConsecutiveFailures: s.failures,
		MaxAttempts:         s.timings.MaxAttempts,
		Reconnecting:        s.reconnecting,
		LastConnectedID:     s.lastConnected,
		LastKnownID:         s.lastKnown,
		WatchdogRunning:     s.loopCancel != nil,
		EpisodeID:           s.episode,
	}
}

// UpdateTimings applies t to subsequent waits and limit checks.
func (s *Supervisor) UpdateTimings(t Timings) {
	t = t.normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings = t
	s.logger.Info().
		Str(xlog.FieldEvent, "supervisor.timings_updated").
		Int(xlog.FieldMaxAttempts, t.MaxAttempts).
		Dur("base_interval", t.BaseInterval).
		Dur("cap_interval", t.CapInterval).
		Msg("supervisor timings updated")
}

// Close stops the watchdog, cancels pending cleanup and stops notifications.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	done := s.detachLoopLocked()
	if s.cleanupTimer != nil && s.cleanupTimer.Stop() {
		s.cleanupWG.Done()
	}
	s.cleanupTimer = nil
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.cleanupWG.Wait()
	s.notify.close()
	metrics.SetWatchdogRunning(false)
}

// CurrentlyConnectedDeviceName returns the name of the first linked device.
func (s *Supervisor) CurrentlyConnectedDeviceName(ctx context.Context) (string, bool, error) {
	connected, err := s.gw.ListConnectedDevices(ctx)
	if err != nil {
		return "", false, err
	}
	d, ok := gateway.First(connected)
	if !ok {
		return "", false, nil
	}
	return d.Name(), true, nil
}

// FirstAvailableDevice returns the first visible device without polling.
func (s *Supervisor) FirstAvailableDevice(ctx context.Context) (gateway.Device, bool, error) {
	devices, err := s.gw.ListDevices(ctx)
	if err != nil {
		return gateway.Device{}, false, err
	}
	d, ok := gateway.First(devices)
	return d, ok, nil
}

// ListDevices returns every device the gateway currently reports.
func (s *Supervisor) ListDevices(ctx context.Context) ([]gateway.Device, error) {
	return s.gw.ListDevices(ctx)
}

// publishLocked records and enqueues st. Callers hold s.mu, which keeps
// queue order equal to transition order.
func (s *Supervisor) publishLocked(st State) {
	old := s.state
	s.state = st
	metrics.SetSupervisorState(st.Kind.String(), st.Attempt)
	s.logger.Debug().
		Str(xlog.FieldEvent, "supervisor.transition").
		Str(xlog.FieldOldState, old.String()).
		Str(xlog.FieldNewState, st.String()).
		Str(xlog.FieldEpisodeID, s.episode).
		Msg("reconnection state changed")
	s.notify.publish(st)
}

// isConnected reports whether the gateway lists any active link.
func (s *Supervisor) isConnected(ctx context.Context) (bool, error) {
	connected, err := s.gw.ListConnectedDevices(ctx)
	if err != nil {
		return false, err
	}
	return len(connected) > 0, nil
}

type gatewayOp string

const (
	opConnect    gatewayOp = "connect"
	opDisconnect gatewayOp = "disconnect"
)

// call runs one mutating gateway operation with a span and metrics.
// Callers must hold the gate.
func (s *Supervisor) call(ctx context.Context, op gatewayOp, d gateway.Device, trigger string) error {
	ctx, span := s.tracer.Start(ctx, "gateway."+string(op),
		trace.WithAttributes(telemetry.GatewayAttributes(string(op), d.ID)...),
		trace.WithAttributes(attribute.String(telemetry.SupervisorTriggerKey, trigger)))
	defer span.End()

	start := time.Now()
	var err error
	switch op {
	case opConnect:
		err = s.gw.Connect(ctx, d)
	case opDisconnect:
		err = s.gw.Disconnect(ctx, d)
	default:
		err = fmt.Errorf("unknown gateway op %q", op)
	}

	outcome := "success"
	switch {
	case errors.Is(err, ErrAPIUnavailable):
		outcome = "unsupported"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordGatewayCall(string(op), outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// withGate runs fn while holding the gateway gate.
func (s *Supervisor) withGate(ctx context.Context, fn func() error) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)
	return fn()
}

// scheduleCleanupLocked arms the modifier release after CleanupDelay.
// A newer schedule replaces a pending one.
func (s *Supervisor) scheduleCleanupLocked() {
	if s.closed {
		return
	}
	if s.cleanupTimer != nil && s.cleanupTimer.Stop() {
		s.cleanupWG.Done()
	}
	releaser := s.releaser
	logger := s.logger
	s.cleanupWG.Add(1)
	s.cleanupTimer = time.AfterFunc(s.timings.CleanupDelay, func() {
		defer s.cleanupWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), modifiers.DefaultTimeout)
		defer cancel()
		if err := releaser.ReleaseModifiers(ctx); err != nil {
			logger.Warn().Err(err).
				Str(xlog.FieldEvent, "cleanup.release_failed").
				Msg("modifier release failed")
			return
		}
		logger.Debug().Str(xlog.FieldEvent, "cleanup.released").Msg("modifier keys released")
	})
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
