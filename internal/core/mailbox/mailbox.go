// Package mailbox implements the bounded per-thread FIFO of Message values
// described in §4.D: the same slot-reservation scheme as the log ring, but
// bounded, with blocking push/pop backed by two auto-reset events (not-empty
// and not-full) instead of the ring's never-blocking push with its
// overflow purge.
//
// The auto-reset events are realized as capacity-1 channels, the same idiom
// the teacher's PTY wrapper uses for its read-ready notification channel:
// a non-blocking send "signals" (at most one pending token), a receive
// "consumes" the signal and wakes exactly one waiter.
package mailbox

import (
	"sync"
	"time"

	"github.com/srgg/relaycore/internal/core/atomics"
	"github.com/srgg/relaycore/internal/core/message"
)

// Result is the outcome of a push or pop attempt.
type Result uint8

const (
	Success Result = iota
	Timeout
	Full
	Empty
	// NoSuchTarget is returned by registry-level lookups, never by Mailbox
	// itself, for a push or pop addressed to a label no entry owns (§6's
	// NO_SUCH_TARGET). It lives here so both callers and the mailbox's own
	// Full/Empty/Timeout share one Result vocabulary.
	NoSuchTarget
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Timeout:
		return "TIMEOUT"
	case Full:
		return "FULL"
	case Empty:
		return "EMPTY"
	case NoSuchTarget:
		return "NO_SUCH_TARGET"
	default:
		return "UNKNOWN"
	}
}

const DefaultCapacity = 1024

type slotState = uint32

const (
	slotEmpty slotState = iota
	slotWritten
)

// ShutdownPoll is checked by blocking waits on every wakeup so a caller can
// exit cooperatively (§4.D cancellation). A nil poll is treated as "never
// shut down."
type ShutdownPoll func() bool

// Mailbox is a bounded FIFO of Message values addressed by owner Label.
type Mailbox struct {
	Label    string
	capacity uint64

	entries []message.Message
	state   []atomics.Uint32

	head atomics.Uint64 // producer-shared via CAS
	tail uint64         // consumer-owned, guarded by tailMu

	tailMu sync.Mutex

	notEmpty chan struct{}
	notFull  chan struct{}

	shutdown ShutdownPoll

	pushed  atomics.Uint64
	popped  atomics.Uint64
	dropped atomics.Uint64
}

// New creates a Mailbox for owner with the given capacity (0 selects
// DefaultCapacity). shutdown, if non-nil, is polled by blocking waits.
func New(owner string, capacity int, shutdown ShutdownPoll) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox{
		Label:    owner,
		capacity: uint64(capacity),
		entries:  make([]message.Message, capacity),
		state:    make([]atomics.Uint32, capacity),
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		shutdown: shutdown,
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Size returns the current FIFO occupancy. Racy by nature under concurrent
// push/pop; intended for diagnostics, not control flow.
func (m *Mailbox) Size() int {
	head := m.head.Load(atomics.Acquire)
	m.tailMu.Lock()
	tail := m.tail
	m.tailMu.Unlock()
	return int(head - tail)
}

func (m *Mailbox) IsEmpty() bool { return m.Size() == 0 }
func (m *Mailbox) IsFull() bool  { return uint64(m.Size()) >= m.capacity }

// Clear drains the mailbox without handing entries to anyone.
func (m *Mailbox) Clear() {
	for {
		if _, ok := m.tryPop(); !ok {
			return
		}
	}
}

func (m *Mailbox) tryPush(msg message.Message) bool {
	for {
		head := m.head.Load(atomics.Relaxed)
		m.tailMu.Lock()
		size := head - m.tail
		m.tailMu.Unlock()
		if size >= m.capacity {
			return false
		}

		slot := head % m.capacity
		if !m.head.CompareAndSwap(head, head+1, atomics.AcqRel, atomics.Relaxed) {
			continue
		}

		m.entries[slot] = msg
		m.state[slot].Store(slotWritten, atomics.Release)

		m.pushed.Add(1, atomics.Relaxed)

		m.tailMu.Lock()
		newSize := (head + 1) - m.tail
		m.tailMu.Unlock()
		if newSize == 1 {
			signal(m.notEmpty)
		}
		if newSize < m.capacity {
			signal(m.notFull)
		}
		return true
	}
}

func (m *Mailbox) tryPop() (message.Message, bool) {
	m.tailMu.Lock()
	defer m.tailMu.Unlock()

	slot := m.tail % m.capacity
	if m.state[slot].Load(atomics.Acquire) != slotWritten {
		return message.Message{}, false
	}
	msg := m.entries[slot]
	m.state[slot].Store(slotEmpty, atomics.Release)
	m.tail++

	m.popped.Add(1, atomics.Relaxed)

	size := m.head.Load(atomics.Acquire) - m.tail
	if size == m.capacity-1 {
		signal(m.notFull)
	}
	if size > 0 {
		signal(m.notEmpty)
	}
	return msg, true
}

// Push blocks up to timeout for room in the mailbox. A zero timeout
// returns Full immediately instead of blocking, per §4.D.
func (m *Mailbox) Push(msg message.Message, timeout time.Duration) Result {
	if m.tryPush(msg) {
		return Success
	}
	if timeout <= 0 {
		m.dropped.Add(1, atomics.Relaxed)
		return Full
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 20 * time.Millisecond
	for {
		if m.shuttingDown() {
			return Timeout
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.dropped.Add(1, atomics.Relaxed)
			return Timeout
		}
		wait := remaining
		if wait > pollInterval {
			wait = pollInterval
		}
		select {
		case <-m.notFull:
		case <-time.After(wait):
		}
		if m.tryPush(msg) {
			return Success
		}
	}
}

// Pop blocks up to timeout for an available Message. A zero timeout
// returns Empty immediately instead of blocking.
func (m *Mailbox) Pop(timeout time.Duration) (message.Message, Result) {
	if msg, ok := m.tryPop(); ok {
		return msg, Success
	}
	if timeout <= 0 {
		return message.Message{}, Empty
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 20 * time.Millisecond
	for {
		if m.shuttingDown() {
			return message.Message{}, Timeout
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return message.Message{}, Timeout
		}
		wait := remaining
		if wait > pollInterval {
			wait = pollInterval
		}
		select {
		case <-m.notEmpty:
		case <-time.After(wait):
		}
		if msg, ok := m.tryPop(); ok {
			return msg, Success
		}
	}
}

func (m *Mailbox) shuttingDown() bool {
	return m.shutdown != nil && m.shutdown()
}

// Stats is a snapshot of mailbox traffic counters. The counters are read
// atomically; Size briefly takes the consumer-side tail mutex.
type Stats struct {
	Pushed  uint64
	Popped  uint64
	Dropped uint64
	Size    int
	Cap     int
}

func (m *Mailbox) Stats() Stats {
	return Stats{
		Pushed:  m.pushed.Load(atomics.Acquire),
		Popped:  m.popped.Load(atomics.Acquire),
		Dropped: m.dropped.Load(atomics.Acquire),
		Size:    m.Size(),
		Cap:     int(m.capacity),
	}
}
