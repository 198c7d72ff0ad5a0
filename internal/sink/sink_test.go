package sink

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/record"
)

func TestEmitSyncWritesToFile(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	s, err := New(Config{
		Destination:   File,
		FilePath:      dir,
		FileName:      "relay.log",
		FileSizeBytes: 1 << 20,
		Granularity:   clock.Millisecond,
	}, &mu)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := record.New(1, clock.Now(), record.Info, "worker", "hello world")
	s.EmitSync(rec)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "relay.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Fatalf("file content = %q, missing message", data)
	}
	if !strings.Contains(string(data), "worker") {
		t.Fatalf("file content = %q, missing label", data)
	}
}

func TestResolvePathPicksLongestMatchingPrefix(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	s, err := New(Config{
		Destination:   File,
		FilePath:      dir,
		FileName:      "main.log",
		FileSizeBytes: 1 << 20,
		PerLabelFileNames: map[string]string{
			"net":     "net.log",
			"net.tcp": "net-tcp.log",
		},
	}, &mu)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := s.resolvePath("net.tcp.reader"); filepath.Base(got) != "net-tcp.log" {
		t.Fatalf("resolvePath(net.tcp.reader) = %q, want net-tcp.log", got)
	}
	if got := s.resolvePath("net.udp"); filepath.Base(got) != "net.log" {
		t.Fatalf("resolvePath(net.udp) = %q, want net.log", got)
	}
	if got := s.resolvePath("unrelated"); filepath.Base(got) != "main.log" {
		t.Fatalf("resolvePath(unrelated) = %q, want main.log", got)
	}
}

func TestRotatedNameInsertsTimestampBeforeExtension(t *testing.T) {
	ts, err := time.Parse(time.RFC3339, "2024-01-02T03:04:05Z")
	if err != nil {
		t.Fatalf("time.Parse: %v", err)
	}
	got := rotatedName("/var/log/relay.log", ts)
	want := "/var/log/relay.20240102_030405.log"
	if got != want {
		t.Fatalf("rotatedName = %q, want %q", got, want)
	}
}

func TestRotatedNameAppendsWhenNoExtension(t *testing.T) {
	ts, err := time.Parse(time.RFC3339, "2024-01-02T03:04:05Z")
	if err != nil {
		t.Fatalf("time.Parse: %v", err)
	}
	got := rotatedName("/var/log/relay", ts)
	want := "/var/log/relay.20240102_030405"
	if got != want {
		t.Fatalf("rotatedName = %q, want %q", got, want)
	}
}

func TestRotationTriggersOnSizeThreshold(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	s, err := New(Config{
		Destination:   File,
		FilePath:      dir,
		FileName:      "relay.log",
		FileSizeBytes: 64,
	}, &mu)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 20; i++ {
		rec := record.New(uint64(i), clock.Now(), record.Info, "worker", "a reasonably long message to force rotation")
		s.EmitSync(rec)
	}
	s.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least one rotated file alongside relay.log, got %v", entries)
	}
}

func TestParseDestinationDefaultsToConsole(t *testing.T) {
	if d := ParseDestination("bogus"); d != Console {
		t.Fatalf("ParseDestination(bogus) = %v, want Console", d)
	}
	if d := ParseDestination(" Both "); d != Both {
		t.Fatalf("ParseDestination(Both) = %v, want Both", d)
	}
}
