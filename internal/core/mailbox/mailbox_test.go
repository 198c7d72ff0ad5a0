package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/srgg/relaycore/internal/core/message"
)

// Property 2: a single producer/single consumer round-trips messages
// byte-for-byte and preserves FIFO order.
func TestPushPopRoundTripsAndPreservesOrder(t *testing.T) {
	mb := New("worker", 16, nil)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			msg, err := message.New(message.Data, []byte{byte(i)})
			if err != nil {
				t.Errorf("message.New: %v", err)
				return
			}
			if r := mb.Push(msg, time.Second); r != Success {
				t.Errorf("push %d: %v", i, r)
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		msg, r := mb.Pop(time.Second)
		if r != Success {
			t.Fatalf("pop %d: %v", i, r)
		}
		if got := msg.Payload(); len(got) != 1 || got[0] != byte(i) {
			t.Fatalf("pop %d: payload = %v, want [%d]", i, got, i)
		}
	}
	wg.Wait()
}

// Scenario S3: a DATA message with payload [0x01,0x02,0x03] is delivered
// exactly, including type and content length.
func TestDataMessageDeliveredExactly(t *testing.T) {
	mb := New("worker", 4, nil)
	payload := []byte{0x01, 0x02, 0x03}
	msg, err := message.New(message.Data, payload)
	if err != nil {
		t.Fatalf("message.New: %v", err)
	}
	if r := mb.Push(msg, 0); r != Success {
		t.Fatalf("push: %v", r)
	}

	got, r := mb.Pop(0)
	if r != Success {
		t.Fatalf("pop: %v", r)
	}
	if got.Type != message.Data {
		t.Fatalf("Type = %v, want Data", got.Type)
	}
	if got.ContentSize != 3 {
		t.Fatalf("ContentSize = %d, want 3", got.ContentSize)
	}
	gotPayload := got.Payload()
	for i, b := range payload {
		if gotPayload[i] != b {
			t.Fatalf("payload[%d] = %x, want %x", i, gotPayload[i], b)
		}
	}
}

func TestPushZeroTimeoutReturnsFullWhenFull(t *testing.T) {
	mb := New("worker", 1, nil)
	msg, _ := message.New(message.Control, nil)
	if r := mb.Push(msg, 0); r != Success {
		t.Fatalf("first push: %v", r)
	}
	if r := mb.Push(msg, 0); r != Full {
		t.Fatalf("push on full mailbox with zero timeout = %v, want Full", r)
	}
}

func TestPopZeroTimeoutReturnsEmptyWhenEmpty(t *testing.T) {
	mb := New("worker", 4, nil)
	if _, r := mb.Pop(0); r != Empty {
		t.Fatalf("pop on empty mailbox with zero timeout = %v, want Empty", r)
	}
}

func TestPushTimesOutWhenPermanentlyFull(t *testing.T) {
	mb := New("worker", 1, nil)
	msg, _ := message.New(message.Control, nil)
	if r := mb.Push(msg, 0); r != Success {
		t.Fatalf("first push: %v", r)
	}

	start := time.Now()
	r := mb.Push(msg, 60*time.Millisecond)
	elapsed := time.Since(start)
	if r != Timeout {
		t.Fatalf("push on full mailbox = %v, want Timeout", r)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("push returned too early: %v", elapsed)
	}
}

func TestPopUnblocksOnDelayedPush(t *testing.T) {
	mb := New("worker", 4, nil)
	msg, _ := message.New(message.Control, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		if r := mb.Push(msg, time.Second); r != Success {
			t.Errorf("delayed push: %v", r)
		}
	}()

	got, r := mb.Pop(time.Second)
	if r != Success {
		t.Fatalf("pop: %v", r)
	}
	if got.Type != message.Control {
		t.Fatalf("Type = %v, want Control", got.Type)
	}
}

// Boundary: capacity-1 mailbox alternating push/pop never deadlocks or
// reports spurious fullness.
func TestCapacityOneAlternatingPushPop(t *testing.T) {
	mb := New("worker", 1, nil)
	for i := 0; i < 50; i++ {
		msg, _ := message.New(message.Data, []byte{byte(i)})
		if r := mb.Push(msg, time.Second); r != Success {
			t.Fatalf("push %d: %v", i, r)
		}
		if !mb.IsFull() {
			t.Fatalf("iteration %d: expected mailbox to report full", i)
		}
		got, r := mb.Pop(time.Second)
		if r != Success {
			t.Fatalf("pop %d: %v", i, r)
		}
		if got.Payload()[0] != byte(i) {
			t.Fatalf("pop %d: got %v", i, got.Payload())
		}
		if !mb.IsEmpty() {
			t.Fatalf("iteration %d: expected mailbox to report empty", i)
		}
	}
}

func TestClearDrainsWithoutDelivering(t *testing.T) {
	mb := New("worker", 8, nil)
	for i := 0; i < 5; i++ {
		msg, _ := message.New(message.Data, []byte{byte(i)})
		mb.Push(msg, 0)
	}
	mb.Clear()
	if !mb.IsEmpty() {
		t.Fatal("expected mailbox empty after Clear")
	}
	if _, r := mb.Pop(0); r != Empty {
		t.Fatalf("pop after Clear = %v, want Empty", r)
	}
}

func TestShutdownPollUnblocksWaiters(t *testing.T) {
	var shuttingDown bool
	var mu sync.Mutex
	mb := New("worker", 1, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return shuttingDown
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		shuttingDown = true
		mu.Unlock()
	}()

	_, r := mb.Pop(5 * time.Second)
	if r != Timeout {
		t.Fatalf("pop during shutdown = %v, want Timeout", r)
	}
}

func TestStatsReflectTraffic(t *testing.T) {
	mb := New("worker", 8, nil)
	for i := 0; i < 3; i++ {
		msg, _ := message.New(message.Data, nil)
		mb.Push(msg, 0)
	}
	mb.Pop(0)

	stats := mb.Stats()
	if stats.Pushed != 3 {
		t.Fatalf("Pushed = %d, want 3", stats.Pushed)
	}
	if stats.Popped != 1 {
		t.Fatalf("Popped = %d, want 1", stats.Popped)
	}
	if stats.Size != 2 {
		t.Fatalf("Size = %d, want 2", stats.Size)
	}
	if stats.Cap != 8 {
		t.Fatalf("Cap = %d, want 8", stats.Cap)
	}
}
