// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"encoding/json"
	"fmt"

	"github.com/ManuGH/relinkd/internal/metrics"
)

// Kind is the coarse reconnection state.
type Kind int

const (
	KindIdle Kind = iota
	KindRetrying
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return metrics.StateIdle
	case KindRetrying:
		return metrics.StateRetrying
	case KindFailed:
		return metrics.StateFailed
	default:
		return "unknown"
	}
}

// State is the published reconnection state. Attempt is >= 1 for KindRetrying
// and 0 otherwise.
type State struct {
	Kind    Kind
	Attempt int
}

// Idle means no recovery is in progress.
func Idle() State { return State{Kind: KindIdle} }

// Retrying means automatic recovery attempt n is pending or in flight.
func Retrying(n int) State { return State{Kind: KindRetrying, Attempt: n} }

// Failed means automatic recovery gave up; only RetryReconnection or Connect resumes.
func Failed() State { return State{Kind: KindFailed} }

func (s State) String() string {
	if s.Kind == KindRetrying {
		return fmt.Sprintf("retrying(%d)", s.Attempt)
	}
	return s.Kind.String()
}

// MarshalJSON renders {"state":"retrying","attempt":2}.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State   string `json:"state"`
		Attempt int    `json:"attempt,omitempty"`
	}{State: s.Kind.String(), Attempt: s.Attempt})
}

// UnmarshalJSON accepts the MarshalJSON form.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw struct {
		State   string `json:"state"`
		Attempt int    `json:"attempt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.State {
	case metrics.StateIdle:
		*s = Idle()
	case metrics.StateRetrying:
		if raw.Attempt < 1 {
			return fmt.Errorf("retrying state needs attempt >= 1, got %d", raw.Attempt)
		}
		*s = Retrying(raw.Attempt)
	case metrics.StateFailed:
		*s = Failed()
	default:
		return fmt.Errorf("unknown reconnection state %q", raw.State)
	}
	return nil
}

// Observer receives every published state, in order, on one goroutine.
type Observer func(State)
