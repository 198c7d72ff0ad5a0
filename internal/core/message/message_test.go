package message

import (
	"bytes"
	"testing"
)

func TestNewRoundTripsPayload(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	m, err := New(Data, payload)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Type != Data {
		t.Fatalf("Type = %v, want Data", m.Type)
	}
	if m.ContentSize != 3 {
		t.Fatalf("ContentSize = %d, want 3", m.ContentSize)
	}
	if !bytes.Equal(m.Payload(), payload) {
		t.Fatalf("Payload() = %v, want %v", m.Payload(), payload)
	}
}

func TestNewRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, ContentSize+1)
	if _, err := New(Data, big); err == nil {
		t.Fatal("expected an error for an oversized payload")
	}
}

func TestNewAcceptsMaxSizedPayload(t *testing.T) {
	max := make([]byte, ContentSize)
	for i := range max {
		max[i] = byte(i)
	}
	m, err := New(FileChunk, max)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !bytes.Equal(m.Payload(), max) {
		t.Fatal("payload did not round-trip at max size")
	}
}
