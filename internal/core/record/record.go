// Package record defines the log record value type (§3) pushed through the
// log ring: fixed-size, no heap, no pointers.
package record

import (
	"fmt"

	"github.com/srgg/relaycore/internal/core/clock"
)

// LabelSize is the maximum length, in bytes, of a thread label.
const LabelSize = 64

// DefaultMessageSize is the bound on a record's formatted message text. It
// fixes the size of Record's message array; no configuration key changes it.
const DefaultMessageSize = 1024

// Severity is one of the eight levels §3 enumerates, ordered from least to
// most severe so `sev >= threshold` is the filtering test in §6.
type Severity uint8

const (
	Trace Severity = iota
	Debug
	Info
	Notice
	Warn
	Error
	Critical
	Fatal
)

var severityNames = [...]string{
	"TRACE", "DEBUG", "INFO", "NOTICE", "WARN", "ERROR", "CRITICAL", "FATAL",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "UNKNOWN"
}

// ParseSeverity maps a configuration-file level name to a Severity. ok is
// false for an unrecognized name.
func ParseSeverity(name string) (Severity, bool) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), true
		}
	}
	return 0, false
}

// Record is a fixed-size log record. Invariant: Index values form a
// contiguous sequence starting at 1 in fetch-add order; Timestamp is
// non-decreasing within one producer but not globally (§3).
type Record struct {
	Index     uint64
	Timestamp clock.Timestamp
	Severity  Severity

	label    [LabelSize]byte
	labelLen uint8

	message    [DefaultMessageSize]byte
	messageLen uint16
}

// New builds a Record, truncating label and message to their configured
// bounds rather than failing — truncation is the producer's problem to
// notice via Label()/Message() round-tripping shorter than requested, not
// a rejected push.
func New(index uint64, ts clock.Timestamp, sev Severity, label, message string) Record {
	var r Record
	r.Index = index
	r.Timestamp = ts
	r.Severity = sev
	r.labelLen = uint8(copy(r.label[:], label))
	r.messageLen = uint16(copy(r.message[:], message))
	return r
}

// Label returns the record's thread label as a string.
func (r *Record) Label() string {
	return string(r.label[:r.labelLen])
}

// Message returns the record's formatted text.
func (r *Record) Message() string {
	return string(r.message[:r.messageLen])
}

// Empty reports whether either the label or the message is empty — §4.C
// rejects such records at push time as caller bugs.
func (r *Record) Empty() bool {
	return r.labelLen == 0 || r.messageLen == 0
}

// String renders the record for diagnostic purposes; the sink uses its own
// formatting, this is not that.
func (r *Record) String() string {
	return fmt.Sprintf("#%d [%s] %s: %s", r.Index, r.Severity, r.Label(), r.Message())
}
