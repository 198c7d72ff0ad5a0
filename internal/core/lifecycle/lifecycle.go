// Package lifecycle runs the nine-step thread startup/teardown sequence of
// §4.F for every registered thread, wrapping the user's init/body/exit
// hooks and updating registry state between them.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/registry"
	"github.com/srgg/relaycore/internal/groutine"
)

// ErrLoggerTimeout is returned when a non-logger thread gives up waiting
// for the logger to reach RUNNING (§4.F step 5).
var ErrLoggerTimeout = errors.New("lifecycle: timed out waiting for the logger thread to start")

const (
	loggerWaitTimeout = 5 * time.Second
	loggerWaitPoll    = 10 * time.Millisecond
)

// Hooks are the user-supplied behaviors a thread runs. Any of them may be
// nil, in which case the defaults below apply (§4.F: "Hooks may be omitted;
// default implementations do nothing except the init default, which just
// initialises the timestamp subsystem.")
type Hooks struct {
	Init func(ctx context.Context) error
	Body func(ctx context.Context) error
	Exit func(ctx context.Context, bodyErr error)
}

func (h Hooks) init(ctx context.Context) error {
	if h.Init == nil {
		clock.InitThread()
		return nil
	}
	return h.Init(ctx)
}

func (h Hooks) body(ctx context.Context) error {
	if h.Body == nil {
		return nil
	}
	return h.Body(ctx)
}

func (h Hooks) exit(ctx context.Context, bodyErr error) {
	if h.Exit == nil {
		return
	}
	h.Exit(ctx, bodyErr)
}

// LoggerLabel is the registry label the logger worker registers under.
// Every lifecycle run waits for this thread's state unless it IS this
// thread.
const LoggerLabel = "logger"

// Launch performs step 1 (install thread-local label, via groutine.Go) and
// then runs the remaining eight steps inside the labeled goroutine. entry
// must already be registered (registry.Register creates its mailbox,
// satisfying step 4 by construction).
func Launch(parentCtx context.Context, reg *registry.Registry, entry *registry.Entry, hooks Hooks) {
	groutine.Go(parentCtx, entry.Label, func(ctx context.Context) {
		Run(ctx, reg, entry, hooks)
	})
}

// Run executes steps 2-9 of §4.F for entry, which must already be
// registered. Intended to be called from inside a labeled goroutine
// (normally via Launch); exposed directly for tests. The main thread does
// not go through Run: cmd/relaycore updates its state itself.
func Run(ctx context.Context, reg *registry.Registry, entry *registry.Entry, hooks Hooks) error {
	label := entry.Label

	// Step 2: initialise this thread's timestamp subsystem.
	clock.InitThread()

	// Step 3: mark RUNNING.
	if err := reg.UpdateState(label, registry.Running); err != nil {
		return err
	}

	// Step 4: the mailbox already exists; registry.Register created it.

	// Step 5: wait for the logger, unless this thread is the logger.
	if label != LoggerLabel {
		if !waitForLogger(reg) {
			reg.UpdateState(label, registry.Failed)
			return ErrLoggerTimeout
		}
	}

	// Step 6: init hook.
	if err := hooks.init(ctx); err != nil {
		reg.UpdateState(label, registry.Failed)
		return err
	}

	// Step 7: body hook.
	bodyErr := hooks.body(ctx)

	// Step 8: exit hook, regardless of body outcome.
	hooks.exit(ctx, bodyErr)

	// Step 9: mark TERMINATED and return the body's result, regardless of
	// whether it errored — only an init-hook failure routes to FAILED.
	reg.UpdateState(label, registry.Terminated)
	return bodyErr
}

func waitForLogger(reg *registry.Registry) bool {
	deadline := time.Now().Add(loggerWaitTimeout)
	for {
		if reg.GetState(LoggerLabel) == registry.Running {
			return true
		}
		if time.Now().After(deadline) {
			return reg.GetState(LoggerLabel) == registry.Running
		}
		time.Sleep(loggerWaitPoll)
	}
}
