// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ManuGH/relinkd/internal/gateway"
	xlog "github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/metrics"
)

const (
	triggerExplicit = "explicit"
	triggerWatchdog = "watchdog"
	triggerRetry    = "retry"
)

// StartWatchdog starts the loop, cancelling and replacing any running one.
func (s *Supervisor) StartWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartLoopLocked()
}

// StopWatchdog cancels the loop, resets the counters and publishes Idle.
// When it returns the cancelled loop has exited and publishes nothing more.
func (s *Supervisor) StopWatchdog() {
	s.mu.Lock()
	done := s.detachLoopLocked()
	s.failures = 0
	s.reconnecting = false
	s.episode = ""
	if !s.closed {
		s.publishLocked(Idle())
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// restartLoopLocked replaces the running loop. The new goroutine waits for
// its predecessor to exit before its first iteration.
func (s *Supervisor) restartLoopLocked() {
	prev := s.detachLoopLocked()
	if s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	gen := s.generation
	s.loopCancel = cancel
	s.loopDone = done
	metrics.SetWatchdogRunning(true)

	go func() {
		if prev != nil {
			<-prev
		}
		s.loop(ctx, gen, done)
	}()
}

// detachLoopLocked cancels the live loop and invalidates its generation.
// The returned channel closes once that loop has exited.
func (s *Supervisor) detachLoopLocked() <-chan struct{} {
	s.generation++
	done := s.loopDone
	if s.loopCancel != nil {
		s.loopCancel()
	}
	s.loopCancel = nil
	s.loopDone = nil
	metrics.SetWatchdogRunning(false)
	return done
}

// liveLocked reports whether the loop identified by gen still owns the state.
func (s *Supervisor) liveLocked(ctx context.Context, gen uint64) bool {
	return ctx.Err() == nil && gen == s.generation && !s.closed
}

func (s *Supervisor) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		wait := s.timings.policy().Interval(s.failures)
		s.mu.Unlock()

		if err := sleepWithContext(ctx, wait); err != nil {
			return
		}
		if !s.tick(ctx, gen) {
			return
		}
	}
}

// tick runs one watchdog iteration and reports whether the loop continues.
func (s *Supervisor) tick(ctx context.Context, gen uint64) bool {
	connected, err := s.isConnected(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn().Err(err).
			Str(xlog.FieldEvent, "watchdog.poll_failed").
			Msg("could not read connection state")
		return true
	}

	s.mu.Lock()
	if !s.liveLocked(ctx, gen) {
		s.mu.Unlock()
		return false
	}
	if connected {
		if s.failures > 0 {
			s.recoveredLocked("watchdog.recovered")
		}
		s.mu.Unlock()
		return true
	}
	if s.lastConnected == "" {
		s.mu.Unlock()
		return true
	}
	if s.failures >= s.timings.MaxAttempts {
		s.giveUpLocked(gen, "watchdog.gave_up")
		s.mu.Unlock()
		return false
	}
	if s.reconnecting {
		s.mu.Unlock()
		metrics.RecordReconnectAttempt(metrics.OutcomeSkipped)
		return true
	}
	if s.failures == 0 {
		s.episode = uuid.NewString()
		metrics.RecordDrop()
		s.logger.Warn().
			Str(xlog.FieldEvent, "watchdog.drop_detected").
			Str(xlog.FieldEpisodeID, s.episode).
			Str(xlog.FieldDeviceID, s.lastConnected).
			Msg("connection dropped unexpectedly")
	}
	s.failures++
	attempt := s.failures
	episode := s.episode
	settle := s.timings.SettleDelay
	s.publishLocked(Retrying(attempt))
	s.mu.Unlock()

	ctx = xlog.ContextWithEpisodeID(ctx, episode)
	logger := s.logger.With().
		Str(xlog.FieldEpisodeID, episode).
		Int(xlog.FieldAttempt, attempt).
		Logger()

	if err := sleepWithContext(ctx, settle); err != nil {
		return false
	}

	if up, err := s.isConnected(ctx); err == nil && up {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.liveLocked(ctx, gen) {
			return false
		}
		metrics.RecordReconnectAttempt(metrics.OutcomeSelfRecovered)
		s.recoveredLocked("watchdog.self_recovered")
		return true
	}

	target, ok, err := s.preflight(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logger.Warn().Err(err).
			Str(xlog.FieldEvent, "watchdog.preflight_failed").
			Msg("device listing failed, skipping attempt")
		metrics.RecordReconnectAttempt(metrics.OutcomeSkipped)
		return true
	}
	if !ok {
		logger.Info().
			Str(xlog.FieldEvent, "watchdog.no_device_visible").
			Msg("no device visible, skipping attempt")
		metrics.RecordReconnectAttempt(metrics.OutcomeSkipped)
		return true
	}

	s.mu.Lock()
	if !s.liveLocked(ctx, gen) {
		s.mu.Unlock()
		return false
	}
	if s.reconnecting {
		s.mu.Unlock()
		metrics.RecordReconnectAttempt(metrics.OutcomeSkipped)
		return true
	}
	s.reconnecting = true
	s.mu.Unlock()

	err = s.withGate(ctx, func() error {
		return s.call(ctx, opConnect, target, triggerWatchdog)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.liveLocked(ctx, gen) {
		return false
	}
	s.reconnecting = false

	switch {
	case err == nil:
		metrics.RecordReconnectAttempt(metrics.OutcomeSuccess)
		s.lastConnected = target.ID
		s.lastKnown = target.ID
		logger.Info().
			Str(xlog.FieldEvent, "watchdog.reconnected").
			Str(xlog.FieldDeviceID, target.ID).
			Str(xlog.FieldDeviceName, target.Name()).
			Msg("reconnected")
		s.recoveredLocked("")
		s.scheduleCleanupLocked()
		return true
	case errors.Is(err, ErrAPIUnavailable):
		metrics.RecordReconnectAttempt(metrics.OutcomeUnsupported)
		logger.Error().Err(err).
			Str(xlog.FieldEvent, "watchdog.unsupported").
			Msg("gateway cannot reconnect, giving up")
		s.giveUpLocked(gen, "")
		return false
	default:
		metrics.RecordReconnectAttempt(metrics.OutcomeFailure)
		logger.Warn().Err(err).
			Str(xlog.FieldEvent, "watchdog.reconnect_failed").
			Int(xlog.FieldFailures, s.failures).
			Int(xlog.FieldMaxAttempts, s.timings.MaxAttempts).
			Msg("reconnect attempt failed")
		return true
	}
}

// preflight picks the reconnect target: the remembered device if visible,
// otherwise the first visible one.
func (s *Supervisor) preflight(ctx context.Context) (gateway.Device, bool, error) {
	devices, err := s.gw.ListDevices(ctx)
	if err != nil {
		return gateway.Device{}, false, err
	}
	s.mu.Lock()
	remembered := s.lastConnected
	s.mu.Unlock()
	if d, ok := gateway.Find(devices, remembered); ok {
		return d, true, nil
	}
	d, ok := gateway.First(devices)
	return d, ok, nil
}

// recoveredLocked ends the drop episode and publishes Idle.
func (s *Supervisor) recoveredLocked(event string) {
	if event != "" {
		s.logger.Info().
			Str(xlog.FieldEvent, event).
			Str(xlog.FieldEpisodeID, s.episode).
			Int(xlog.FieldFailures, s.failures).
			Msg("connectivity recovered")
	}
	s.failures = 0
	s.episode = ""
	s.publishLocked(Idle())
}

// giveUpLocked ends the episode in Failed and releases the loop handle.
func (s *Supervisor) giveUpLocked(gen uint64, event string) {
	if event != "" {
		s.logger.Error().
			Str(xlog.FieldEvent, event).
			Str(xlog.FieldEpisodeID, s.episode).
			Str(xlog.FieldDeviceID, s.lastConnected).
			Int(xlog.FieldFailures, s.failures).
			Msg("automatic reconnection exhausted")
	}
	s.lastConnected = ""
	s.reconnecting = false
	s.publishLocked(Failed())
	// The loop terminates; loopDone stays set so Stop and Close still wait for it.
	if gen == s.generation && s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
		metrics.SetWatchdogRunning(false)
	}
}
