// Package shutdown implements the process-wide shutdown latch (§4.B): a
// one-shot false→true atomic boolean that every worker polls to cooperate
// in termination. There is no error return anywhere in this package — the
// latch is intentionally a one-way switch that cannot fail.
package shutdown

import (
	"sync"
	"time"

	"github.com/srgg/relaycore/internal/core/atomics"
)

// Latch is the process-wide shutdown signal. The zero value is ready to
// use (not yet signalled).
type Latch struct {
	flag    atomics.Bool
	once    sync.Once
	waiters chan struct{}
	initMu  sync.Mutex
}

func (l *Latch) lazyInit() {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	if l.waiters == nil {
		l.waiters = make(chan struct{})
	}
}

// Signal idempotently transitions the latch from false to true. Only the
// first call actually flips the flag and wakes waiters; later calls are
// no-ops, matching §4.B's "signal_shutdown() (idempotent, SEQ_CST store of
// true)".
func (l *Latch) Signal() {
	l.once.Do(func() {
		l.flag.Store(true, atomics.SeqCst)
		l.lazyInit()
		close(l.waiters)
	})
}

// IsSignalled reports whether Signal has been called, with acquire
// ordering: once true is observed on any thread, it is never observed
// false again on any thread (§5, shutdown ordering guarantee).
func (l *Latch) IsSignalled() bool {
	return l.flag.Load(atomics.Acquire)
}

// Wait blocks the calling goroutine until the latch is signalled or
// timeout elapses, whichever comes first. A zero or negative timeout
// polls once and returns immediately.
func (l *Latch) Wait(timeout time.Duration) bool {
	if l.IsSignalled() {
		return true
	}
	if timeout <= 0 {
		return false
	}

	l.lazyInit()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.waiters:
		return true
	case <-timer.C:
		return l.IsSignalled()
	}
}
