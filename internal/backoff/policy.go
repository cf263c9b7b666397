// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backoff maps a consecutive failure counter to a watchdog poll interval.
package backoff

import "time"

const (
	// DefaultBase is the interval used while the link is healthy (zero failures).
	DefaultBase = 10 * time.Second
	// DefaultCap bounds the interval regardless of the failure count.
	DefaultCap = 180 * time.Second
)

// Policy is an exponential interval schedule: min(Base * 2^failures, Cap).
// The zero value uses DefaultBase and DefaultCap.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Default returns the standard 10s/180s policy.
func Default() Policy {
	return Policy{Base: DefaultBase, Cap: DefaultCap}
}

// Interval returns the wait before the next watchdog iteration.
// Negative failure counts are treated as zero.
func (p Policy) Interval(failures int) time.Duration {
	return Interval(failures, p.Base, p.Cap)
}

// Interval computes min(base * 2^failures, limit) without overflowing.
func Interval(failures int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBase
	}
	if limit <= 0 {
		limit = DefaultCap
	}
	if base >= limit {
		return limit
	}
	if failures < 0 {
		failures = 0
	}

	d := base
	for i := 0; i < failures; i++ {
		// d*2 >= limit, written so that d*2 never overflows.
		if d >= limit-d {
			return limit
		}
		d *= 2
	}
	return d
}
