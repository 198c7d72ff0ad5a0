// Package launcher implements the declarative thread start table of §4.H:
// a sequence of {entry, essential} pairs, started in table order, with
// non-essential entries skippable via configuration-driven suppression.
package launcher

import (
	"context"
	"errors"
	"strings"

	"github.com/srgg/relaycore/internal/core/lifecycle"
	"github.com/srgg/relaycore/internal/core/registry"
)

// ErrNoLogger is returned by Launch when the start table omits the logger
// entry, which §4.H requires to always be present.
var ErrNoLogger = errors.New("launcher: start table must include the logger entry")

// Entry is one row of the declarative start table.
type Entry struct {
	Label           string
	Essential       bool
	MailboxCapacity int
	Hooks           lifecycle.Hooks
}

// Launcher wires the registry (E) and lifecycle wrapper (F) together per a
// start table, applying suppression from configuration.
type Launcher struct {
	Registry   *registry.Registry
	suppressed map[string]bool
}

// New builds a Launcher. suppressList is the raw value of the
// debug.suppress_threads configuration key: a comma-separated,
// case-insensitive, whitespace-trimmed label list.
func New(reg *registry.Registry, suppressList string) *Launcher {
	suppressed := make(map[string]bool)
	for _, label := range strings.Split(suppressList, ",") {
		label = strings.ToLower(strings.TrimSpace(label))
		if label != "" {
			suppressed[label] = true
		}
	}
	return &Launcher{Registry: reg, suppressed: suppressed}
}

func (l *Launcher) isSuppressed(e Entry) bool {
	if e.Essential {
		return false
	}
	return l.suppressed[strings.ToLower(strings.TrimSpace(e.Label))]
}

// Launch registers and starts every non-suppressed entry in table order.
// The logger entry is forced essential regardless of how it was declared
// and must be present in table, or Launch returns ErrNoLogger without
// starting anything.
func (l *Launcher) Launch(parentCtx context.Context, table []Entry) error {
	hasLogger := false
	for i := range table {
		if table[i].Label == lifecycle.LoggerLabel {
			table[i].Essential = true
			hasLogger = true
		}
	}
	if !hasLogger {
		return ErrNoLogger
	}

	for _, e := range table {
		if l.isSuppressed(e) {
			continue
		}
		entry, err := l.Registry.Register(e.Label, true, e.MailboxCapacity, nil)
		if err != nil {
			return err
		}
		lifecycle.Launch(parentCtx, l.Registry, entry, e.Hooks)
	}
	return nil
}
