package logring

import (
	"sync"
	"testing"
	"time"

	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/record"
	"github.com/srgg/relaycore/internal/sink"
)

type captureSink struct {
	mu      sync.Mutex
	records []record.Record
}

func (s *captureSink) EmitSync(r record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// EmitSyncLocked is identical here: this fake has its own internal mutex
// rather than sharing the ring's LoggingMu, so there is nothing extra to
// avoid re-locking.
func (s *captureSink) EmitSyncLocked(r record.Record) {
	s.EmitSync(r)
}

func (s *captureSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestRing(t *testing.T, size uint64) (*Ring, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	var mu sync.Mutex
	return New(&mu, sink, WithSize(size)), sink
}

func mkRecord(r *Ring, label, msg string) record.Record {
	return record.New(r.NextIndex(), clock.Now(), record.Info, label, msg)
}

// Property 1: N concurrent pushes followed by a drain yields exactly N
// records whose indexes form a size-N set from the fetch_add range.
func TestConcurrentPushesDrainExactlyN(t *testing.T) {
	r, _ := newTestRing(t, 1024)
	const producers = 8
	const perProducer = 100
	const total = producers * perProducer

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				rec := mkRecord(r, label, "hello")
				if !r.Push(rec) {
					t.Errorf("push unexpectedly failed under capacity")
				}
			}
		}(string(rune('A' + p)))
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	count := 0
	for {
		rec, ok := r.Pop()
		if !ok {
			break
		}
		seen[rec.Index] = true
		count++
	}

	if count != total {
		t.Fatalf("drained %d records, want %d", count, total)
	}
	if len(seen) != total {
		t.Fatalf("indexes not unique: %d distinct of %d", len(seen), total)
	}
}

// Mirrors scenario S2: two producers each push 10000 records, consumer
// reads exactly 20000 with a contiguous index set and no torn messages.
func TestTwoProducersS2(t *testing.T) {
	r, _ := newTestRing(t, 32768)
	const perProducer = 10000

	var wg sync.WaitGroup
	for _, label := range []string{"A", "B"} {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				msg := "fixed-" + label
				rec := mkRecord(r, label, msg)
				if !r.Push(rec) {
					t.Errorf("push failed under capacity for %s", label)
				}
			}
		}(label)
	}
	wg.Wait()

	indexes := make(map[uint64]bool)
	count := 0
	for {
		rec, ok := r.Pop()
		if !ok {
			break
		}
		indexes[rec.Index] = true
		count++
		msg := rec.Message()
		if msg != "fixed-A" && msg != "fixed-B" {
			t.Fatalf("torn message: %q", msg)
		}
	}

	if count != 2*perProducer {
		t.Fatalf("drained %d, want %d", count, 2*perProducer)
	}

	min, max := ^uint64(0), uint64(0)
	for idx := range indexes {
		if idx < min {
			min = idx
		}
		if idx > max {
			max = idx
		}
	}
	if max-min+1 != uint64(len(indexes)) {
		t.Fatalf("indexes not contiguous: min=%d max=%d count=%d", min, max, len(indexes))
	}
}

func TestPopOnEmptyRingReturnsFalse(t *testing.T) {
	r, _ := newTestRing(t, 8)
	if _, ok := r.Pop(); ok {
		t.Fatal("expected Pop on empty ring to return false")
	}
}

func TestPushRejectsEmptyRecord(t *testing.T) {
	r, _ := newTestRing(t, 8)
	if r.Push(record.Record{}) {
		t.Fatal("expected Push to reject an empty record")
	}
}

// Boundary: ring at capacity minus one, one more push succeeds, the next
// triggers overflow.
func TestBoundaryCapacityMinusOne(t *testing.T) {
	r, sink := newTestRing(t, 8)
	for i := 0; i < 7; i++ {
		if !r.Push(mkRecord(r, "W", "m")) {
			t.Fatalf("push %d should succeed under capacity", i)
		}
	}
	if !r.Push(mkRecord(r, "W", "m")) {
		t.Fatal("the 8th push should still succeed (ring exactly full after)")
	}
	if sink.len() != 0 {
		t.Fatal("no overflow should have triggered yet")
	}

	if !r.Push(mkRecord(r, "W", "m")) {
		t.Fatal("push triggering overflow should still succeed after purge")
	}
	if sink.len() == 0 {
		t.Fatal("expected an overflow purge to have run")
	}
}

// Mirrors scenario S5: capacity 32768, consumer paused, 32771 pushes.
// Exactly one overflow event drains DefaultPurgeCount records.
func TestOverflowPurgesExactlyConfiguredCount(t *testing.T) {
	r, sink := newTestRing(t, 32768)
	for i := 0; i < 32768; i++ {
		if !r.Push(mkRecord(r, "W", "m")) {
			t.Fatalf("push %d should succeed filling the ring", i)
		}
	}
	if sink.len() != 0 {
		t.Fatal("no overflow yet")
	}

	for i := 0; i < 3; i++ {
		if !r.Push(mkRecord(r, "W", "m")) {
			t.Fatalf("overflow push %d should succeed after purge", i)
		}
	}

	// Each overflow event emits: start marker + PurgeCount drained records
	// + complete marker.
	wantPerEvent := 2 + DefaultPurgeCount
	if sink.len() != wantPerEvent {
		t.Fatalf("sink got %d records, want %d (exactly one overflow event)", sink.len(), wantPerEvent)
	}
}

// TestOverflowWithSharedMutexSinkDoesNotDeadlock wires the ring to the real
// internal/sink.Sink sharing one *sync.Mutex, the way cmd/relaycore does in
// production (unlike newTestRing's captureSink, which owns its own
// independent mutex). Overflow's purge path must not re-lock that shared
// mutex through Sink.EmitSync once it already holds it itself.
func TestOverflowWithSharedMutexSinkDoesNotDeadlock(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	s, err := sink.New(sink.Config{
		Destination:   sink.File,
		FilePath:      dir,
		FileName:      "relay.log",
		FileSizeBytes: 1 << 20,
		Granularity:   clock.Millisecond,
	}, &mu)
	if err != nil {
		t.Fatalf("sink.New: %v", err)
	}
	defer s.Close()

	r := New(&mu, s, WithSize(8), WithPurgeCount(2))
	for i := 0; i < 8; i++ {
		if !r.Push(mkRecord(r, "W", "m")) {
			t.Fatalf("push %d should succeed filling the ring", i)
		}
	}

	done := make(chan bool, 1)
	go func() {
		done <- r.Push(mkRecord(r, "W", "overflow"))
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("overflow push should succeed after purge")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("overflow push deadlocked against the shared logging mutex")
	}
}

// TestLogDropsBelowMinSeverity covers §6's producer contract: a record
// below the configured threshold consumes no index and never reaches the
// ring or the sink.
func TestLogDropsBelowMinSeverity(t *testing.T) {
	sink := &captureSink{}
	var mu sync.Mutex
	r := New(&mu, sink, WithSize(8), WithMinSeverity(record.Warn))

	r.Log("W", record.Debug, "below threshold")
	if _, ok := r.Pop(); ok {
		t.Fatal("expected no record pushed below MinSeverity")
	}
	if sink.len() != 0 {
		t.Fatal("expected no synchronous emission below MinSeverity")
	}

	r.Log("W", record.Warn, "at threshold")
	rec, ok := r.Pop()
	if !ok {
		t.Fatal("expected the at-threshold record to reach the ring")
	}
	if rec.Message() != "at threshold" {
		t.Fatalf("message = %q, want %q", rec.Message(), "at threshold")
	}
}

// TestLogFallsBackToSyncEmissionOnRingFailure covers §6's "on ring failure,
// emitted synchronously": with PurgeCount 0, overflow drains nothing, so
// Push still fails after the purge and Log must hand the formatted record
// straight to the sink instead of dropping it.
func TestLogFallsBackToSyncEmissionOnRingFailure(t *testing.T) {
	sink := &captureSink{}
	var mu sync.Mutex
	r := New(&mu, sink, WithSize(8), WithPurgeCount(0))

	for i := 0; i < 8; i++ {
		r.Log("W", record.Info, "fill %d", i)
	}

	r.Log("W", record.Info, "overflow %d", 99)

	// overflow() itself emits a start and a complete marker (PurgeCount 0
	// drains nothing between them); Push still fails afterward, so Log's
	// fallback emits the overflowing record itself as a third record.
	if sink.len() != 3 {
		t.Fatalf("sink got %d records, want 3 (overflow markers + the fallback record)", sink.len())
	}
	last := sink.records[sink.len()-1]
	if last.Message() != "overflow 99" {
		t.Fatalf("message = %q, want formatted %q", last.Message(), "overflow 99")
	}
}

func TestResetClearsRing(t *testing.T) {
	r, _ := newTestRing(t, 8)
	for i := 0; i < 5; i++ {
		r.Push(mkRecord(r, "W", "m"))
	}
	r.Reset()
	if _, ok := r.Pop(); ok {
		t.Fatal("expected ring to be empty after Reset")
	}
	stats := r.Stats()
	if stats.Head != 0 || stats.Tail != 0 {
		t.Fatalf("expected head/tail reset to 0, got %+v", stats)
	}
}
