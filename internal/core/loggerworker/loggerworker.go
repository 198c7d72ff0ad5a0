// Package loggerworker implements the single-consumer logger loop of §4.G:
// drain the log ring to the sink until shutdown is signalled, then wait for
// every other registered thread to terminate before a final synchronous
// drain, so records emitted between the shutdown signal and a peer's
// TERMINATED transition still reach the sink.
package loggerworker

import (
	"context"
	"time"

	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/diagnostics"
	"github.com/srgg/relaycore/internal/core/lifecycle"
	"github.com/srgg/relaycore/internal/core/logring"
	"github.com/srgg/relaycore/internal/core/record"
	"github.com/srgg/relaycore/internal/core/registry"
	"github.com/srgg/relaycore/internal/core/shutdown"
)

// IdlePoll is how long the worker waits on the shutdown latch between empty
// drain passes, to avoid busy-spinning when the ring is quiet.
const IdlePoll = 5 * time.Millisecond

// Worker is the logger thread's body, intended to be run through
// lifecycle.Run/Launch as the Body hook for the entry registered under
// lifecycle.LoggerLabel.
type Worker struct {
	Ring      *logring.Ring
	Sink      logring.SyncSink
	Registry  *registry.Registry
	Latch     *shutdown.Latch
	Collector *diagnostics.Collector // optional
}

// Body adapts Run to the lifecycle.Hooks.Body signature.
func (w *Worker) Body(ctx context.Context) error {
	return w.Run()
}

// Run executes the loop described in §4.G and returns once the final drain
// and shutdown marker have been emitted.
func (w *Worker) Run() error {
	if w.Collector != nil {
		if err := w.Collector.Start(); err != nil {
			return err
		}
	}

	for !w.Latch.IsSignalled() {
		if !w.drainOnce() {
			w.Latch.Wait(IdlePoll)
		}
	}

	w.Registry.WaitOthers(lifecycle.LoggerLabel, 0) // infinite

	w.drainOnce() // final synchronous pass

	shutdownMsg := record.New(w.Ring.NextIndex(), clock.Now(), record.Info, "LOGGER", "logger shutting down")
	w.Sink.EmitSync(shutdownMsg)

	if w.Collector != nil {
		return w.Collector.Stop()
	}
	return nil
}

// drainOnce pops every currently-available record and reports whether it
// drained at least one.
func (w *Worker) drainOnce() bool {
	drained := false
	for {
		rec, ok := w.Ring.Pop()
		if !ok {
			return drained
		}
		w.Sink.EmitSync(rec)
		drained = true
	}
}
