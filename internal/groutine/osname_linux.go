//go:build linux

package groutine

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetOSThreadName best-effort tags the calling OS thread with label via
// prctl(PR_SET_NAME), truncated to the kernel's 15-byte limit. The label
// installed this way is cosmetic only (visible in `ps -L`, `/proc/<pid>/task`)
// and never consulted by the registry; failures are ignored since Go may
// reschedule the goroutine onto a different OS thread at any point anyway.
func SetOSThreadName(label string) {
	name := label
	if len(name) > 15 {
		name = name[:15]
	}
	b := append([]byte(name), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}
