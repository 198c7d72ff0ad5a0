// Package logring implements the bounded multi-producer/single-consumer
// log-message ring (§4.C), the hardest subsystem in the design: lock-free
// slot reservation for producers, a strictly-ordered single consumer, and a
// mutex-serialized overflow purge policy.
//
// The algorithm is lifted verbatim from the design: a head/tail counter
// pair (not mod N) plus a per-slot EMPTY/RESERVED/WRITTEN state byte that
// serializes the producer→consumer handoff independent of the counters, so
// a producer that has reserved a slot but not yet copied its record never
// exposes a torn read. Grounded on the CAS ring-buffer idiom in the
// retrieval pack's LMAX-disruptor-style implementation and on the
// hedzr/go-ringbuf MPMC ring the logger worker's diagnostics collector
// wraps.
package logring

import (
	"fmt"
	"sync"
	"time"

	"github.com/srgg/relaycore/internal/core/atomics"
	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/diagnostics"
	"github.com/srgg/relaycore/internal/core/record"
)

// DefaultSize is the ring's capacity in slots. Must stay a power of two: the
// design fixes it at 32768, but tests exercise smaller rings too.
const DefaultSize = 32768

// DefaultPurgeCount is how many records the overflow policy drains
// synchronously to make room for a new push.
const DefaultPurgeCount = 3

type slotState = uint32

const (
	slotEmpty slotState = iota
	slotReserved
	slotWritten
)

// SyncSink is the minimal external contract the ring needs for overflow
// purges and for Log's synchronous fallback when Push fails:
// "a file-backed sink that accepts formatted log records" (§1).
//
// EmitSyncLocked is used by the overflow policy, which holds LoggingMu
// across its entire start/purge/complete block (§4.C): calling EmitSync
// there would re-acquire the same mutex the caller already holds.
type SyncSink interface {
	EmitSync(r record.Record)
	EmitSyncLocked(r record.Record)
}

// Ring is the bounded MPSC log-message ring described in §3/§4.C.
type Ring struct {
	size  uint64
	mask  uint64
	slots []record.Record
	state []atomics.Uint32

	head atomics.Uint64
	tail uint64 // consumer-owned; mutated only under drainMu

	drainMu sync.Mutex // serializes Pop() against overflow's direct tail pops

	// LoggingMu is the process-wide logging mutex (§5's lock ordering
	// rule: never acquire the registry mutex while holding this one).
	// Shared with the sink so overflow purges and ordinary sink writes
	// serialize against each other.
	LoggingMu *sync.Mutex
	Sink      SyncSink

	PurgeCount int

	// MinSeverity is the logger.log_level threshold from §6: Log drops
	// records below this severity with no side effect (no index consumed,
	// nothing built or pushed). The zero value is record.Trace, which
	// admits everything.
	MinSeverity record.Severity

	logIndex atomics.Uint64 // fetch_add source for Record.Index

	diagOut chan<- diagnostics.Event
}

// Option configures a Ring at construction.
type Option func(*Ring)

// WithSize overrides the default 32768-slot capacity. Must be a power of
// two.
func WithSize(n uint64) Option {
	return func(r *Ring) {
		if n == 0 || n&(n-1) != 0 {
			panic("logring: size must be a power of two")
		}
		r.size = n
		r.mask = n - 1
	}
}

// WithPurgeCount overrides the default purge count of 3 (§9 keeps this
// configurable rather than hardcoded).
func WithPurgeCount(n int) Option {
	return func(r *Ring) { r.PurgeCount = n }
}

// WithDiagnostics attaches a channel the ring uses to report overflow
// start/complete events for the logger worker's diagnostics collector. The
// send is non-blocking: a full or absent channel never slows a producer.
func WithDiagnostics(ch chan<- diagnostics.Event) Option {
	return func(r *Ring) { r.diagOut = ch }
}

// WithMinSeverity sets the logger.log_level threshold Log filters against.
// Unset, the zero value (record.Trace) admits every severity.
func WithMinSeverity(sev record.Severity) Option {
	return func(r *Ring) { r.MinSeverity = sev }
}

// New creates a Ring backed by loggingMu and sink, used by the overflow
// policy (§4.C) and by Log's synchronous fallback when Push fails. The ring
// does not check whether the logger worker has started: records pushed
// before then wait in the ring until the worker drains them.
func New(loggingMu *sync.Mutex, sink SyncSink, opts ...Option) *Ring {
	r := &Ring{
		size:       DefaultSize,
		mask:       DefaultSize - 1,
		LoggingMu:  loggingMu,
		Sink:       sink,
		PurgeCount: DefaultPurgeCount,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.slots = make([]record.Record, r.size)
	r.state = make([]atomics.Uint32, r.size)
	return r
}

// NextIndex returns the next log-index value via fetch_add with RELAXED
// ordering, per §4.A: "monotonicity alone suffices; the ring enforces
// causal visibility." Callers MUST call this before attempting the head
// CAS in Push, in that order, to preserve the tie-break in §4.C: "Records
// are consumed in the order their producers won the head CAS, which
// equals the order their index values were assigned iff each producer
// calls fetch_add(log_index) before the CAS."
func (r *Ring) NextIndex() uint64 {
	return r.logIndex.Add(1, atomics.Relaxed)
}

// Log is the producer contract of §6 and the entry point §2's data flow
// names: "any thread calls log(level, fmt, …)". Records below MinSeverity
// are dropped with no side effect. Above threshold, a record is built and
// pushed to the ring; if Push fails — full even after the overflow purge —
// the record is emitted synchronously instead, per §6: "on ring failure,
// emitted synchronously."
func (r *Ring) Log(label string, sev record.Severity, format string, args ...interface{}) {
	if sev < r.MinSeverity {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	rec := record.New(r.NextIndex(), clock.Now(), sev, label, msg)
	if !r.Push(rec) {
		r.Sink.EmitSync(rec)
	}
}

// Push attempts to publish rec, which must already carry its Index from
// NextIndex(). Never blocks: returns false only if the overflow policy ran
// and the ring is still full afterward. Rejects an empty record as a
// caller bug (§4.C edge case).
func (r *Ring) Push(rec record.Record) bool {
	if rec.Empty() {
		return false
	}

	if r.tryPush(rec) {
		return true
	}
	r.overflow()
	return r.tryPush(rec)
}

// tryPush runs the producer algorithm from §4.C steps 1-4 once.
func (r *Ring) tryPush(rec record.Record) bool {
	for {
		head := r.head.Load(atomics.Relaxed)
		slot := head & r.mask

		if r.state[slot].Load(atomics.Acquire) != slotEmpty {
			return false // full from this producer's point of view
		}

		if !r.head.CompareAndSwap(head, head+1, atomics.AcqRel, atomics.Relaxed) {
			continue // lost the race, restart from the top
		}

		r.slots[slot] = rec
		r.state[slot].Store(slotWritten, atomics.Release)
		return true
	}
}

// Pop is consumer-only: the design assumes a single dedicated caller (the
// logger worker). Returns false if the ring is empty or the next slot has
// been reserved but not yet published — the consumer never skips ahead,
// preserving FIFO order.
func (r *Ring) Pop() (record.Record, bool) {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()
	return r.popLocked()
}

func (r *Ring) popLocked() (record.Record, bool) {
	slot := r.tail & r.mask
	if r.state[slot].Load(atomics.Acquire) != slotWritten {
		return record.Record{}, false
	}
	rec := r.slots[slot]
	r.state[slot].Store(slotEmpty, atomics.Release)
	r.tail++
	return rec, true
}

// overflow runs the purge policy (§4.C): emit a synthetic start marker,
// synchronously drain up to PurgeCount oldest records to the sink
// (bypassing the ring's normal consumer), emit a completion marker, then
// release the logging mutex so the stalled producer can retry.
func (r *Ring) overflow() {
	r.LoggingMu.Lock()
	defer r.LoggingMu.Unlock()

	startMsg := record.New(r.NextIndex(), clock.Now(), record.Error, "LOGRING", "log ring overflow: purging oldest records")
	r.Sink.EmitSyncLocked(startMsg)
	r.emitDiag(diagnostics.EventOverflowStart, "log ring overflow")

	drainMu := &r.drainMu
	drainMu.Lock()
	purged := 0
	for purged < r.PurgeCount {
		rec, ok := r.popLocked()
		if !ok {
			break
		}
		r.Sink.EmitSyncLocked(rec)
		purged++
	}
	drainMu.Unlock()

	completeMsg := record.New(r.NextIndex(), clock.Now(), record.Error, "LOGRING", "log ring overflow: purge complete")
	r.Sink.EmitSyncLocked(completeMsg)
	r.emitDiag(diagnostics.EventOverflowComplete, "log ring purge complete")
}

func (r *Ring) emitDiag(kind diagnostics.EventKind, detail string) {
	if r.diagOut == nil {
		return
	}
	select {
	case r.diagOut <- diagnostics.Event{Kind: kind, Label: "LOGRING", Detail: detail, Timestamp: time.Now()}:
	default:
	}
}

// Stats is a point-in-time snapshot of ring occupancy.
type Stats struct {
	Head uint64
	Tail uint64
	Len  uint64
	Cap  uint64
}

// Stats returns a snapshot. Head is loaded atomically and Tail is read
// under drainMu, in two separate steps, so Len can be momentarily stale
// under concurrent pushes/pops — fine for a diagnostics surface, never used
// for correctness.
func (r *Ring) Stats() Stats {
	head := r.head.Load(atomics.Acquire)
	r.drainMu.Lock()
	tail := r.tail
	r.drainMu.Unlock()
	return Stats{Head: head, Tail: tail, Len: head - tail, Cap: r.size}
}

// Reset reinitializes counters and every slot state to EMPTY (§4.C's
// init(ring) contract). Not safe to call concurrently with Push/Pop.
func (r *Ring) Reset() {
	r.head.Store(0, atomics.SeqCst)
	r.drainMu.Lock()
	r.tail = 0
	for i := range r.state {
		r.state[i].Store(slotEmpty, atomics.SeqCst)
	}
	r.drainMu.Unlock()
}
