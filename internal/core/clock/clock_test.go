package clock

import (
	"testing"
	"time"
)

func TestNowMonotonicOnOneThread(t *testing.T) {
	a := Now()
	time.Sleep(time.Millisecond)
	b := Now()

	if b.Sub(a) <= 0 {
		t.Fatalf("expected b to be after a, got delta %v", b.Sub(a))
	}
}

func TestWallConversion(t *testing.T) {
	ts := Now()
	seconds, nanos := ts.Wall()
	if seconds <= 0 {
		t.Fatalf("expected positive seconds-since-epoch, got %d", seconds)
	}
	if nanos < 0 || nanos >= 1_000_000_000 {
		t.Fatalf("nanos out of range: %d", nanos)
	}
}

func TestParseGranularityDefaultsToMillisecond(t *testing.T) {
	if g := ParseGranularity("bogus"); g != Millisecond {
		t.Fatalf("got %v, want Millisecond", g)
	}
	if g := ParseGranularity("nanosecond"); g != Nanosecond {
		t.Fatalf("got %v, want Nanosecond", g)
	}
}
