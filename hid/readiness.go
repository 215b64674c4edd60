package hid

import (
	"fmt"
	"sync"
	"time"

	"github.com/khadas/scriptbridge/core/fault"
)

// Readiness is a resettable gate for the profile proxy's Unready/Ready
// state. Waiters block on a channel instead of polling.
type Readiness struct {
	mu    sync.Mutex
	ready bool
	gate  chan struct{}
}

func NewReadiness() *Readiness {
	return &Readiness{gate: make(chan struct{})}
}

// Set flips the state. Becoming ready releases every waiter; becoming
// unready re-arms the gate.
func (r *Readiness) Set(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ready == r.ready {
		return
	}
	r.ready = ready
	if ready {
		close(r.gate)
	} else {
		r.gate = make(chan struct{})
	}
}

func (r *Readiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Wait blocks until ready or the timeout elapses.
func (r *Readiness) Wait(timeout time.Duration) error {
	r.mu.Lock()
	gate := r.gate
	ready := r.ready
	r.mu.Unlock()
	if ready {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-gate:
		return nil
	case <-timer.C:
		return fmt.Errorf("profile proxy not ready after %s: %w", timeout, fault.ErrNotReady)
	}
}
