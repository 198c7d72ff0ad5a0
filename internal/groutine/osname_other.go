//go:build !linux

package groutine

// SetOSThreadName is a no-op on platforms without prctl(PR_SET_NAME).
func SetOSThreadName(label string) {}
