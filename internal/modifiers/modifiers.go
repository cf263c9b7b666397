// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package modifiers releases keyboard modifier state that can get stuck when
// the display transport switches underneath a held key.
package modifiers

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single release command.
const DefaultTimeout = 2 * time.Second

// ErrNoCommand is returned by CommandReleaser when no argv is configured.
var ErrNoCommand = errors.New("modifier release command not configured")

// Releaser signals the host to release any held modifier keys.
// Implementations are best-effort; callers log and ignore errors.
type Releaser interface {
	ReleaseModifiers(ctx context.Context) error
}

// Nop is a Releaser that does nothing.
type Nop struct{}

// ReleaseModifiers implements Releaser.
func (Nop) ReleaseModifiers(context.Context) error { return nil }

// CommandReleaser runs an external helper, e.g. ["xdotool", "keyup", "shift", "ctrl", "alt", "super"].
type CommandReleaser struct {
	Argv    []string
	Timeout time.Duration
}

// NewCommandReleaser returns a Nop when argv is empty.
func NewCommandReleaser(argv []string) Releaser {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Nop{}
	}
	return &CommandReleaser{Argv: append([]string(nil), argv...), Timeout: DefaultTimeout}
}

// ReleaseModifiers implements Releaser.
func (c *CommandReleaser) ReleaseModifiers(ctx context.Context) error {
	if len(c.Argv) == 0 {
		return ErrNoCommand
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- argv comes from operator configuration
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("release modifiers via %s: %w: %s", c.Argv[0], err, msg)
		}
		return fmt.Errorf("release modifiers via %s: %w", c.Argv[0], err)
	}
	return nil
}
