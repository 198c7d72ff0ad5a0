// Package registry implements the thread registry of §4.E: an
// insertion-ordered mapping from thread label to {handle, state, mailbox}
// behind a single mutex, plus a lock-free handle index for lookups that must
// not contend with registration traffic.
//
// Grounded on the teacher's scanner/scanner.go, which pairs a mutex-guarded
// primary collection with a cornelk/hashmap secondary index for exactly this
// reason (concurrent reads while a scan owns the write lock), and on its
// lua_api_suite.go use of wk8/go-ordered-map for insertion-ordered
// bookkeeping.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srgg/relaycore/internal/core/atomics"
	"github.com/srgg/relaycore/internal/core/mailbox"
	"github.com/srgg/relaycore/internal/core/message"
)

// State is a registry entry's lifecycle state (§3's state machine).
type State uint32

const (
	Created State = iota
	Running
	Stopping
	Terminated
	Failed
)

var stateNames = [...]string{"CREATED", "RUNNING", "STOPPING", "TERMINATED", "FAILED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

func (s State) terminal() bool { return s == Terminated || s == Failed }

// Handle is an opaque, process-unique thread identifier assigned at
// registration.
type Handle uint64

// Error kinds update_state and register may report. Per §4.E: "never
// aborts; callers decide whether to retry or escalate."
var (
	ErrDuplicate         = fmt.Errorf("registry: label already registered")
	ErrUnknownLabel      = fmt.Errorf("registry: no entry for label")
	ErrInvalidTransition = fmt.Errorf("registry: invalid state transition")
	ErrOutOfMemory       = fmt.Errorf("registry: start table limit reached")
)

// DefaultMaxEntries bounds the registry's table the way §9's "array-indexed
// collection" design note intends: Register past this many live entries
// fails with ErrOutOfMemory (§7, §8 "registration past the table limit")
// rather than growing without bound.
const DefaultMaxEntries = 256

// Entry owns everything the registry associates with one registered thread.
type Entry struct {
	Label       string
	Handle      Handle
	AutoCleanup bool
	Mailbox     *mailbox.Mailbox

	state atomics.Uint32 // State, readable lock-free via GetState/FindByLabel

	doneOnce sync.Once
	done     chan struct{}
}

func newEntry(label string, handle Handle, autoCleanup bool, mb *mailbox.Mailbox) *Entry {
	e := &Entry{
		Label:       label,
		Handle:      handle,
		AutoCleanup: autoCleanup,
		Mailbox:     mb,
		done:        make(chan struct{}),
	}
	e.state.Store(uint32(Created), atomics.Release)
	return e
}

// State returns the entry's current state, lock-free.
func (e *Entry) State() State {
	return State(e.state.Load(atomics.Acquire))
}

func (e *Entry) markDoneIfTerminal(s State) {
	if s.terminal() {
		e.doneOnce.Do(func() { close(e.done) })
	}
}

// validTransition implements the monotonic graph in §3:
//
//	CREATED -> RUNNING -> (STOPPING ->)? TERMINATED
//	CREATED | RUNNING -> FAILED
func validTransition(from, to State) bool {
	switch from {
	case Created:
		return to == Running || to == Failed
	case Running:
		return to == Stopping || to == Terminated || to == Failed
	case Stopping:
		return to == Terminated
	default:
		return false
	}
}

// Registry is the process-wide, insertion-ordered thread table.
type Registry struct {
	mu          sync.Mutex
	order       *orderedmap.OrderedMap[string, *Entry]
	byHandle    *hashmap.Map[Handle, *Entry]
	nextHandle  atomics.Uint64
	initialized bool
	maxEntries  int
}

// New constructs an empty registry with DefaultMaxEntries capacity. Most
// callers want the process-wide instance produced by Init.
func New() *Registry {
	return NewWithCapacity(DefaultMaxEntries)
}

// NewWithCapacity constructs an empty registry whose start table holds at
// most maxEntries live entries (0 or negative selects DefaultMaxEntries).
func NewWithCapacity(maxEntries int) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Registry{
		order:      orderedmap.New[string, *Entry](),
		byHandle:   hashmap.New[Handle, *Entry](),
		maxEntries: maxEntries,
	}
}

// Init is the idempotent process-wide initialization from §4.E: registers
// the main thread as entry 0 with a mailbox. Safe to call more than once;
// only the first call has an effect.
func (r *Registry) Init(mailboxCapacity int) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		if e, ok := r.order.Get("main"); ok {
			return e, nil
		}
	}
	r.initialized = true
	return r.registerLocked("main", false, mailboxCapacity, nil)
}

// Register inserts a new entry at the tail of insertion order with initial
// state CREATED. Fails with ErrDuplicate if label is already registered.
func (r *Registry) Register(label string, autoCleanup bool, mailboxCapacity int, shutdownPoll mailbox.ShutdownPoll) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(label, autoCleanup, mailboxCapacity, shutdownPoll)
}

func (r *Registry) registerLocked(label string, autoCleanup bool, mailboxCapacity int, shutdownPoll mailbox.ShutdownPoll) (*Entry, error) {
	if _, exists := r.order.Get(label); exists {
		return nil, ErrDuplicate
	}
	if r.order.Len() >= r.maxEntries {
		return nil, ErrOutOfMemory
	}
	handle := Handle(r.nextHandle.Add(1, atomics.Relaxed))
	mb := mailbox.New(label, mailboxCapacity, shutdownPoll)
	e := newEntry(label, handle, autoCleanup, mb)
	r.order.Set(label, e)
	r.byHandle.Set(handle, e)
	return e, nil
}

// UpdateState enforces the monotonic transition graph. Returns
// ErrUnknownLabel or ErrInvalidTransition without mutating anything on
// failure; the registry never aborts the process on a bad transition.
func (r *Registry) UpdateState(label string, to State) error {
	r.mu.Lock()
	e, ok := r.order.Get(label)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownLabel
	}

	for {
		from := e.State()
		if from == to {
			return nil // idempotent no-op, not an error
		}
		if !validTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if e.state.CompareAndSwap(uint32(from), uint32(to), atomics.AcqRel, atomics.Relaxed) {
			e.markDoneIfTerminal(to)
			return nil
		}
	}
}

// GetState returns CREATED for an unregistered label, matching §4.E.
func (r *Registry) GetState(label string) State {
	e, ok := r.FindByLabel(label)
	if !ok {
		return Created
	}
	return e.State()
}

// FindByLabel looks up an entry without mutation.
func (r *Registry) FindByLabel(label string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Get(label)
}

// FindByHandle is the lock-free lookup path, served by the cornelk/hashmap
// secondary index rather than the mutex-guarded ordered map.
func (r *Registry) FindByHandle(h Handle) (*Entry, bool) {
	return r.byHandle.Get(h)
}

// PushMessage delegates to the addressed mailbox. An unknown label reports
// NoSuchTarget (§6's NO_SUCH_TARGET), distinct from a mailbox genuinely at
// capacity, so callers can tell the two apart without inspecting err.
func (r *Registry) PushMessage(label string, msg message.Message, timeout time.Duration) (mailbox.Result, error) {
	e, ok := r.FindByLabel(label)
	if !ok {
		return mailbox.NoSuchTarget, ErrUnknownLabel
	}
	return e.Mailbox.Push(msg, timeout), nil
}

// PopMessage delegates to the addressed mailbox. An unknown label reports
// NoSuchTarget, matching PushMessage.
func (r *Registry) PopMessage(label string, timeout time.Duration) (message.Message, mailbox.Result, error) {
	e, ok := r.FindByLabel(label)
	if !ok {
		return message.Message{}, mailbox.NoSuchTarget, ErrUnknownLabel
	}
	msg, res := e.Mailbox.Pop(timeout)
	return msg, res, nil
}

// snapshot returns every registered entry in insertion order, optionally
// excluding self, taken under the mutex per §4.E: "snapshotting live handles under
// the mutex, releasing, then performing a multi-object wait."
func (r *Registry) snapshot(excludeLabel string) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Entry, 0, r.order.Len())
	for pair := r.order.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == excludeLabel {
			continue
		}
		out = append(out, pair.Value)
	}
	return out
}

// waitFor blocks until every entry in entries reaches a terminal state or
// timeout elapses. timeout <= 0 means wait indefinitely (used by the logger
// worker's wait_others(infinite) call per §4.G). On timeout, cancel releases
// the per-entry goroutines immediately rather than leaving them parked on
// their done channel until each entry eventually terminates on its own.
func waitFor(entries []*Entry, timeout time.Duration) bool {
	if len(entries) == 0 {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		go func(done <-chan struct{}) {
			defer wg.Done()
			select {
			case <-done:
			case <-ctx.Done():
			}
		}(e.done)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	if timeout <= 0 {
		<-allDone
		return true
	}

	select {
	case <-allDone:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitOthers blocks the caller until every registered entry other than
// selfLabel reaches a terminal state (TERMINATED or FAILED), or timeout
// elapses. Never mutates state on timeout.
func (r *Registry) WaitOthers(selfLabel string, timeout time.Duration) bool {
	return waitFor(r.snapshot(selfLabel), timeout)
}

// WaitAll is WaitOthers including the calling thread's own entry, used by
// orchestrators that are not themselves registered threads.
func (r *Registry) WaitAll(timeout time.Duration) bool {
	return waitFor(r.snapshot(""), timeout)
}

// Cleanup joins entries marked AutoCleanup (by waiting for their done
// channel, already closed by a terminal state transition), destroys their
// mailboxes, and clears the table.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	entries := make([]*Entry, 0, r.order.Len())
	for pair := r.order.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, pair.Value)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if e.AutoCleanup {
			<-e.done
		}
		e.Mailbox.Clear()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = orderedmap.New[string, *Entry]()
	r.byHandle = hashmap.New[Handle, *Entry]()
	r.initialized = false
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
