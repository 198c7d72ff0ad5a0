// Package diagnostics buffers off-hot-path events emitted by the log ring
// (overflow/purge cycles) so they can be read back with Collector.Drain
// without adding any synchronization to a producer's push path. The logger
// worker starts and stops the collector but does not drain it, and no
// component emits EventInvalidTransition.
//
// Adapted from the BLE CLI's Lua output collector, which wraps the same
// hedzr/go-ringbuf MPMC ring to batch records arriving on a channel.
package diagnostics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// EventKind identifies the diagnostic event flavor.
type EventKind uint8

const (
	EventOverflowStart EventKind = iota
	EventOverflowComplete
	EventInvalidTransition
)

// Event is a single diagnostic record carried off the hot path.
type Event struct {
	Kind      EventKind
	Label     string
	Detail    string
	Timestamp time.Time
}

// Metrics tracks lock-free counters over the lifetime of a Collector.
type Metrics struct {
	Processed   int64
	Overwritten int64
	Errors      int64
}

func (m *Metrics) addProcessed(n int64)   { atomic.AddInt64(&m.Processed, n) }
func (m *Metrics) addOverwritten(n int64) { atomic.AddInt64(&m.Overwritten, n) }
func (m *Metrics) addError()              { atomic.AddInt64(&m.Errors, 1) }

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&m.Processed),
		Overwritten: atomic.LoadInt64(&m.Overwritten),
		Errors:      atomic.LoadInt64(&m.Errors),
	}
}

const (
	stateNotRunning uint32 = iota
	stateRunning
	stateStopping
)

// MaxBufferSize caps the collector's ring capacity against misconfiguration.
const MaxBufferSize = 1 << 20

// Collector drains events from a channel into a bounded MPMC ring, so a
// slow or absent consumer never blocks the producer emitting diagnostics.
type Collector struct {
	in      <-chan Event
	buffer  mpmc.RichOverlappedRingBuffer[Event]
	stop    chan struct{}
	done    chan struct{}
	onError func(error)
	metrics Metrics
	state   uint32
}

// NewCollector creates a Collector reading from in with a ring of the given
// capacity. onError defaults to a no-op (diagnostics must never crash a
// process over their own plumbing).
func NewCollector(in <-chan Event, capacity uint32, onError func(error)) (*Collector, error) {
	if in == nil {
		return nil, fmt.Errorf("diagnostics: input channel cannot be nil")
	}
	if capacity == 0 {
		return nil, fmt.Errorf("diagnostics: capacity must be > 0")
	}
	if capacity > MaxBufferSize {
		return nil, fmt.Errorf("diagnostics: capacity %d exceeds maximum %d", capacity, MaxBufferSize)
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Collector{
		in:      in,
		buffer:  mpmc.NewOverlappedRingBuffer[Event](capacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		onError: onError,
		state:   stateNotRunning,
	}, nil
}

// Start begins draining the input channel into the ring. Returns once the
// drain goroutine is confirmed running or the 1s startup window elapses.
func (c *Collector) Start() error {
	if !atomic.CompareAndSwapUint32(&c.state, stateNotRunning, stateRunning) {
		return fmt.Errorf("diagnostics: collector already running or stopping")
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	started := make(chan struct{}, 1)

	go func() {
		started <- struct{}{}
		defer func() {
			close(c.done)
			atomic.StoreUint32(&c.state, stateNotRunning)
		}()
		for {
			select {
			case <-c.stop:
				return
			case ev, ok := <-c.in:
				if !ok {
					return
				}
				overwrites, err := c.buffer.EnqueueM(ev)
				if err != nil {
					c.metrics.addError()
					c.onError(fmt.Errorf("diagnostics: enqueue: %w", err))
					continue
				}
				c.metrics.addOverwritten(int64(overwrites))
				c.metrics.addProcessed(1)
			}
		}
	}()

	select {
	case <-started:
		return nil
	case <-time.After(time.Second):
		close(c.stop)
		<-c.done
		return fmt.Errorf("diagnostics: collector failed to start within 1s")
	}
}

// Stop signals the drain goroutine to exit and waits for it.
func (c *Collector) Stop() error {
	if !atomic.CompareAndSwapUint32(&c.state, stateRunning, stateStopping) {
		if atomic.LoadUint32(&c.state) == stateNotRunning {
			return nil
		}
	} else {
		close(c.stop)
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		<-c.done
		return fmt.Errorf("diagnostics: stop exceeded 5s timeout")
	}
}

// Drain removes and returns every buffered event without blocking.
func (c *Collector) Drain() []Event {
	var out []Event
	for !c.buffer.IsEmpty() {
		ev, err := c.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, ev)
	}
	return out
}

// Snapshot returns a snapshot of the collector's counters.
func (c *Collector) Snapshot() Metrics {
	return c.metrics.Snapshot()
}
