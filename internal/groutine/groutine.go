// Package groutine starts labelled goroutines and carries the label through
// a context.Context, the way the thread lifecycle wrapper (§4.F) installs a
// thread-local label before running a worker's hooks.
package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

type ctxKey string

const labelKey ctxKey = "thread_label"

// Go starts a goroutine tagged with label, visible to `go tool pprof` via
// runtime/pprof labels and retrievable from inside fn via Label(ctx).
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, label string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	pprofLabels := pprof.Labels("thread_label", label)

	go pprof.Do(parentCtx, pprofLabels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, labelKey, label)
		SetOSThreadName(label)
		fn(ctx)
	})
}

// Label retrieves the thread label installed by Go, or "" if ctx carries
// none (e.g. the main thread, which never goes through Go).
func Label(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(labelKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GID returns the numeric goroutine ID of the caller. Parsed out of a stack
// trace, so treat it as diagnostic only, never as an identity key.
func GID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	gid, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return gid
}
