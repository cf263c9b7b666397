// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/relinkd/internal/gateway"
	xlog "github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/telemetry"
)

// Connect links target, or the best visible device when target is nil.
//
// An existing link to the target is treated as stale: it is torn down first
// and a fresh connect is issued. On success the watchdog is (re)started.
// Gateway errors are returned unchanged.
func (s *Supervisor) Connect(ctx context.Context, target *gateway.Device) (Summary, error) {
	return s.connect(ctx, target, triggerExplicit)
}

func (s *Supervisor) connect(ctx context.Context, target *gateway.Device, trigger string) (sum Summary, err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.connect",
		trace.WithAttributes(telemetry.SupervisorAttributes(trigger, 0, 0)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.isClosed() {
		return Summary{}, ErrClosed
	}
	logger := xlog.WithContext(ctx, s.logger)

	device, err := s.resolveTarget(ctx, target)
	if err != nil {
		logger.Warn().Err(err).
			Str(xlog.FieldEvent, "supervisor.connect_unresolved").
			Msg("no connect target")
		return Summary{}, err
	}

	err = s.withGate(ctx, func() error {
		paused, err := s.dropStale(ctx, device, trigger)
		if err == nil {
			err = s.call(ctx, opConnect, device, trigger)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			if paused {
				s.restartLoopLocked()
			}
			return err
		}
		s.lastConnected = device.ID
		s.lastKnown = device.ID
		s.failures = 0
		s.reconnecting = false
		s.episode = ""
		s.publishLocked(Idle())
		s.restartLoopLocked()
		s.scheduleCleanupLocked()
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).
			Str(xlog.FieldEvent, "supervisor.connect_failed").
			Str(xlog.FieldDeviceID, device.ID).
			Msg("connect failed")
		return Summary{}, err
	}

	logger.Info().
		Str(xlog.FieldEvent, "supervisor.connect_ok").
		Str(xlog.FieldDeviceID, device.ID).
		Str(xlog.FieldDeviceName, device.Name()).
		Str("trigger", trigger).
		Msg("connected")
	return Summary{Device: device, Message: fmt.Sprintf("Connected to %s", device.Name())}, nil
}

// resolveTarget returns target, or polls the listing for a device. The
// remembered device is preferred over the first listed one.
func (s *Supervisor) resolveTarget(ctx context.Context, target *gateway.Device) (gateway.Device, error) {
	if target != nil && target.ID != "" {
		return *target, nil
	}

	s.mu.Lock()
	preferred := s.lastKnown
	t := s.timings
	s.mu.Unlock()

	logger := xlog.WithContext(ctx, s.logger)
	poll := func() (gateway.Device, error) {
		devices, err := s.gw.ListDevices(ctx)
		if err != nil {
			if errors.Is(err, ErrAPIUnavailable) {
				return gateway.Device{}, backoff.Permanent(err)
			}
			return gateway.Device{}, err
		}
		if d, ok := gateway.Find(devices, preferred); ok {
			return d, nil
		}
		if d, ok := gateway.First(devices); ok {
			return d, nil
		}
		return gateway.Device{}, ErrNoDeviceAvailable
	}

	return backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(t.DiscoveryDelay)),
		backoff.WithMaxTries(uint(t.DiscoveryAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug().Err(err).
				Str(xlog.FieldEvent, "supervisor.discovery_wait").
				Dur(xlog.FieldInterval, next).
				Msg("waiting for a device to appear")
		}),
	)
}

// dropStale disconnects device if the gateway already reports it linked.
// The running watchdog is stopped first so it cannot observe the teardown as
// a drop; paused reports whether it was running. Callers hold the gate.
func (s *Supervisor) dropStale(ctx context.Context, device gateway.Device, trigger string) (paused bool, err error) {
	connected, err := s.gw.ListConnectedDevices(ctx)
	if err != nil {
		return false, err
	}
	if !gateway.Contains(connected, device.ID) {
		return false, nil
	}

	s.mu.Lock()
	paused = s.loopCancel != nil
	done := s.detachLoopLocked()
	s.mu.Unlock()
	if done != nil {
		<-done
	}

	logger := xlog.WithContext(ctx, s.logger)
	logger.Info().
		Str(xlog.FieldEvent, "supervisor.stale_teardown").
		Str(xlog.FieldDeviceID, device.ID).
		Msg("device already reported connected, forcing fresh link")

	if err := s.call(ctx, opDisconnect, device, trigger); err != nil {
		if errors.Is(err, ErrAPIUnavailable) {
			return paused, err
		}
		logger.Warn().Err(err).
			Str(xlog.FieldEvent, "supervisor.stale_teardown_failed").
			Str(xlog.FieldDeviceID, device.ID).
			Msg("stale link teardown failed, connecting anyway")
	}

	s.mu.Lock()
	teardown := s.timings.TeardownDelay
	s.mu.Unlock()
	return paused, sleepWithContext(ctx, teardown)
}

// Disconnect stops the watchdog, forgets the remembered device and unlinks
// target, or the first connected device when target is nil.
func (s *Supervisor) Disconnect(ctx context.Context, target *gateway.Device) (sum Summary, err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.disconnect")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.isClosed() {
		return Summary{}, ErrClosed
	}
	s.StopWatchdog()

	s.mu.Lock()
	s.lastConnected = ""
	s.lastKnown = ""
	s.mu.Unlock()

	device, err := s.resolveConnected(ctx, target)
	if err != nil {
		return Summary{}, err
	}

	logger := xlog.WithContext(ctx, s.logger)
	err = s.withGate(ctx, func() error {
		return s.call(ctx, opDisconnect, device, triggerExplicit)
	})
	if err != nil {
		logger.Warn().Err(err).
			Str(xlog.FieldEvent, "supervisor.disconnect_failed").
			Str(xlog.FieldDeviceID, device.ID).
			Msg("disconnect failed")
		return Summary{}, err
	}

	logger.Info().
		Str(xlog.FieldEvent, "supervisor.disconnect_ok").
		Str(xlog.FieldDeviceID, device.ID).
		Str(xlog.FieldDeviceName, device.Name()).
		Msg("disconnected")
	return Summary{Device: device, Message: fmt.Sprintf("Disconnected from %s", device.Name())}, nil
}

// resolveConnected returns the connected listing entry for target, or the
// first connected device when target is nil. An explicit target missing from
// the listing is used as given.
func (s *Supervisor) resolveConnected(ctx context.Context, target *gateway.Device) (gateway.Device, error) {
	explicit := target != nil && target.ID != ""
	connected, err := s.gw.ListConnectedDevices(ctx)
	if explicit {
		if err == nil {
			if d, ok := gateway.Find(connected, target.ID); ok {
				return d, nil
			}
		}
		return *target, nil
	}
	if err != nil {
		return gateway.Device{}, err
	}
	d, ok := gateway.First(connected)
	if !ok {
		return gateway.Device{}, ErrNotConnected
	}
	return d, nil
}

// Toggle disconnects when anything is linked and connects otherwise.
// The check and the action are not atomic.
func (s *Supervisor) Toggle(ctx context.Context) (Summary, error) {
	connected, err := s.isConnected(ctx)
	if err != nil {
		return Summary{}, err
	}
	if connected {
		return s.Disconnect(ctx, nil)
	}
	return s.Connect(ctx, nil)
}

// RetryReconnection leaves Failed: it restores the remembered device, resets
// the counters, restarts the watchdog and issues an immediate connect.
func (s *Supervisor) RetryReconnection(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Summary{}, ErrClosed
	}
	if s.lastConnected == "" {
		s.lastConnected = s.lastKnown
	}
	s.failures = 0
	s.reconnecting = false
	s.episode = ""
	s.publishLocked(Idle())
	s.restartLoopLocked()
	s.logger.Info().
		Str(xlog.FieldEvent, "supervisor.manual_retry").
		Str(xlog.FieldDeviceID, s.lastConnected).
		Msg("manual reconnection requested")
	s.mu.Unlock()

	return s.connect(ctx, nil, triggerRetry)
}

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
