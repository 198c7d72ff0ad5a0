package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/srgg/relaycore/internal/configsource"
	"github.com/srgg/relaycore/internal/core/clock"
	"github.com/srgg/relaycore/internal/core/diagnostics"
	"github.com/srgg/relaycore/internal/core/launcher"
	"github.com/srgg/relaycore/internal/core/lifecycle"
	"github.com/srgg/relaycore/internal/core/logring"
	"github.com/srgg/relaycore/internal/core/loggerworker"
	"github.com/srgg/relaycore/internal/core/record"
	"github.com/srgg/relaycore/internal/core/registry"
	"github.com/srgg/relaycore/internal/core/shutdown"
	"github.com/srgg/relaycore/internal/sink"

	"github.com/spf13/cobra"
)

const diagnosticsBufferSize = 4096

func loadConfig(path string) (*configsource.Config, error) {
	if path == "" {
		return configsource.Parse([]byte{})
	}
	return configsource.Load(path)
}

// runServe wires components A-H into a running process: load configuration,
// build the sink and log ring, install the signal-driven shutdown latch,
// launch the logger plus any other registered thread bodies, and block
// until every launched thread has terminated.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var loggingMu sync.Mutex
	snk, err := sink.New(sink.Config{
		Destination:        sink.ParseDestination(cfg.Logger.LogDestination),
		FilePath:           cfg.Logger.LogFilePath,
		FileName:           cfg.Logger.LogFileName,
		FileSizeBytes:      cfg.Logger.LogFileSize,
		Granularity:        clock.ParseGranularity(cfg.Logger.TimestampGranularity),
		AnsiColours:        cfg.Logger.AnsiColours,
		PurgeLogsOnRestart: cfg.Logger.PurgeLogsOnRestart,
		PerLabelFileNames:  cfg.PerLabelFileNames(),
	}, &loggingMu)
	if err != nil {
		return err
	}
	defer snk.Close()

	minSeverity, ok := record.ParseSeverity(strings.ToUpper(cfg.Logger.LogLevel))
	if !ok {
		minSeverity = record.Info
	}

	diagCh := make(chan diagnostics.Event, diagnosticsBufferSize)
	ring := logring.New(&loggingMu, snk, logring.WithDiagnostics(diagCh), logring.WithMinSeverity(minSeverity))
	collector, err := diagnostics.NewCollector(diagCh, diagnosticsBufferSize, nil)
	if err != nil {
		return err
	}

	reg := registry.New()
	latch := &shutdown.Latch{}

	// §3: "the main thread is always entry 0." Registered here, not run
	// through lifecycle.Run, since main is this very goroutine, not a
	// worker body the launcher owns; it marks itself TERMINATED just
	// before blocking on WaitAll so that call observes a consistent
	// table rather than waiting on its own completion.
	mainEntry, err := reg.Init(1024)
	if err != nil {
		return fmt.Errorf("registry init: %w", err)
	}
	if err := reg.UpdateState(mainEntry.Label, registry.Running); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		latch.Signal()
	}()

	worker := &loggerworker.Worker{Ring: ring, Sink: snk, Registry: reg, Latch: latch, Collector: collector}
	l := launcher.New(reg, cfg.Debug.SuppressThreads)

	table := []launcher.Entry{
		{
			Label:           lifecycle.LoggerLabel,
			Essential:       true,
			MailboxCapacity: 1024,
			Hooks:           lifecycle.Hooks{Body: worker.Body},
		},
	}

	ring.Log(mainEntry.Label, record.Info, "starting up")

	if err := l.Launch(ctx, table); err != nil {
		return err
	}

	if err := reg.UpdateState(mainEntry.Label, registry.Terminated); err != nil {
		return err
	}
	reg.WaitAll(0) // infinite: block until every launched thread has terminated
	return nil
}
