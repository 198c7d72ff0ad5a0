// Package atomics provides typed atomic wrappers parameterised by an
// explicit memory order, per §4.A of the concurrency design: "typed atomic
// load/store/CAS/fetch-add operations parameterised by memory order ∈
// {RELAXED, CONSUME, ACQUIRE, RELEASE, ACQ_REL, SEQ_CST}."
//
// Go's runtime only ever provides sequentially-consistent atomics (there is
// no compiler intrinsic for a weaker ordering on any of its target
// architectures), so every Order value here compiles down to the same
// sync/atomic call. The parameter is kept rather than dropped: it documents,
// at each call site, the ordering the algorithm actually *requires* to be
// correct, which is what a reviewer coming from a C++-shaped original needs
// to verify the port. See DESIGN.md for the open question this resolves.
package atomics

import "sync/atomic"

// Order names the memory ordering a caller depends on. It does not change
// the generated code; see the package doc.
type Order uint8

const (
	Relaxed Order = iota
	Consume
	Acquire
	Release
	AcqRel
	SeqCst
)

// Int64 is a typed atomic signed 64-bit integer.
type Int64 struct{ v atomic.Int64 }

func (a *Int64) Load(Order) int64                        { return a.v.Load() }
func (a *Int64) Store(val int64, _ Order)                { a.v.Store(val) }
func (a *Int64) Swap(val int64, _ Order) int64            { return a.v.Swap(val) }
func (a *Int64) Add(delta int64, _ Order) int64           { return a.v.Add(delta) }
func (a *Int64) CompareAndSwap(old, new int64, _, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Uint64 is a typed atomic unsigned 64-bit integer, the type used by the
// log ring's head/tail counters and the log-index sequence generator.
type Uint64 struct{ v atomic.Uint64 }

func (a *Uint64) Load(Order) uint64             { return a.v.Load() }
func (a *Uint64) Store(val uint64, _ Order)     { a.v.Store(val) }
func (a *Uint64) Swap(val uint64, _ Order) uint64 { return a.v.Swap(val) }
func (a *Uint64) Add(delta uint64, _ Order) uint64 {
	return a.v.Add(delta)
}
func (a *Uint64) CompareAndSwap(old, new uint64, _, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Uint32 is a typed atomic unsigned 32-bit integer, used for per-slot and
// per-entry state fields.
type Uint32 struct{ v atomic.Uint32 }

func (a *Uint32) Load(Order) uint32             { return a.v.Load() }
func (a *Uint32) Store(val uint32, _ Order)     { a.v.Store(val) }
func (a *Uint32) Swap(val uint32, _ Order) uint32 { return a.v.Swap(val) }
func (a *Uint32) CompareAndSwap(old, new uint32, _, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Bool is a typed atomic boolean, the representation of the shutdown latch.
type Bool struct{ v atomic.Bool }

func (a *Bool) Load(Order) bool         { return a.v.Load() }
func (a *Bool) Store(val bool, _ Order) { a.v.Store(val) }
func (a *Bool) CompareAndSwap(old, new bool, _, _ Order) bool {
	return a.v.CompareAndSwap(old, new)
}

// Fence is a standalone memory fence. Go provides no fence primitive
// independent of an atomic operation; callers that need one should instead
// perform a Load/Store with the Order they require. Exposed so translated
// call sites have somewhere to land, documented as a no-op.
func Fence(Order) {}
