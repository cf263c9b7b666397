// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"sync"

	"github.com/rs/zerolog"
)

// notifier delivers states to the current observer from a single goroutine.
// The queue is unbounded so publishing never blocks the state machine and no
// transition is dropped.
type notifier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []State
	observer Observer
	closed   bool
	done     chan struct{}
	logger   zerolog.Logger
}

func newNotifier(logger zerolog.Logger) *notifier {
	n := &notifier{done: make(chan struct{}), logger: logger}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) setObserver(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observer = o
}

func (n *notifier) publish(st State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, st)
	n.cond.Signal()
}

// close discards undelivered states and waits for the dispatch goroutine.
// It must not be called from inside an observer.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.queue = nil
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if n.closed {
			n.mu.Unlock()
			return
		}
		st := n.queue[0]
		n.queue[0] = State{}
		n.queue = n.queue[1:]
		obs := n.observer
		n.mu.Unlock()

		if obs != nil {
			n.deliver(obs, st)
		}
	}
}

func (n *notifier) deliver(obs Observer, st State) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Str("event", "observer.panic").
				Str("state", st.String()).
				Interface("panic", r).
				Msg("state observer panicked")
		}
	}()
	obs(st)
}
