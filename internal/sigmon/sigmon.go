// Package sigmon implements the signal monitor (spec.md §4.6): a dedicated
// task whose only job is to consume the process's interrupt signal and
// convert it into a synchronous "cancel every worker" request. The
// install-then-select-on-Done shape follows the signal-triggered cleanup
// idiom used elsewhere in the retrieval pack, generalized from "run cleanup
// handlers and exit" to "cancel the client roster and keep accepting new
// connections".
package sigmon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

// Monitor consumes os.Interrupt until stopped. Exactly one Monitor is
// expected to exist per process (spec.md §2, component C6): the supervisor
// constructs it once at startup and is the only task that ever tears it
// down (via cancelling the context passed to Run).
type Monitor struct {
	sig chan os.Signal
	log *slog.Logger
}

// New installs an interrupt handler feeding this Monitor.
func New(log *slog.Logger) *Monitor {
	m := &Monitor{sig: make(chan os.Signal, 1), log: log}
	signal.Notify(m.sig, os.Interrupt)
	return m
}

// Run blocks consuming interrupts and invoking onInterrupt for each one,
// until ctx is canceled. Per spec.md §4.6 step 3, it deliberately does not
// change the server's open/closed state: an interrupt is "kick every
// client", not a shutdown request. Only the supervisor's own shutdown path
// closes the server and cancels Run via ctx.
func (m *Monitor) Run(ctx context.Context, onInterrupt func()) {
	defer signal.Stop(m.sig)
	for {
		select {
		case <-m.sig:
			m.log.Info("interrupt received, cancelling all clients")
			onInterrupt()
		case <-ctx.Done():
			return
		}
	}
}
