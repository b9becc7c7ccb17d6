// Package gate implements the global pause/resume barrier workers consult
// between commands (spec.md §4.3). It follows the condition-variable
// wait/broadcast idiom used for connection-scoped state elsewhere in the
// retrieval pack (a sync.Cond guarding a boolean, with cancellation bridged
// in via a broadcast on context cancellation rather than a raw channel
// select), generalized here to a single process-wide pause flag instead of
// one per connection.
package gate

import (
	"context"
	"sync"
)

// Gate is a pair (stopped bool, condition variable, mutex). Workers block in
// Wait while stopped is true.
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	stopped bool
}

// New returns a released (not stopped) gate.
func New() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Wait blocks while the gate is stopped. It is cancellation-safe: if ctx is
// canceled while Wait is suspended, the mutex is released on the way out
// and ctx.Err() is returned. Workers must not hold any Tree lock when
// calling Wait (spec.md invariant 5).
func (g *Gate) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		// Taking the mutex orders this Broadcast after a waiter's ctx check
		// and its entry into cond.Wait, so the wakeup cannot be lost.
		g.mu.Lock()
		defer g.mu.Unlock()
		g.cond.Broadcast()
	})
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()
	for g.stopped {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	return nil
}

// Stop marks the gate stopped. It does not wake anyone; waiters only
// observe it on their next Wait call, and workers already past their gate
// check for this iteration run to completion.
func (g *Gate) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
}

// Release marks the gate open and wakes every waiter.
func (g *Gate) Release() {
	g.mu.Lock()
	g.stopped = false
	g.mu.Unlock()
	g.cond.Broadcast()
}
