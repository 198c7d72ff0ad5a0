package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "relaycore",
	Short: "Relay process concurrency substrate",
	Long: `relaycore runs the core of a multi-threaded network relay process:
a thread lifecycle registry, a bounded lock-free log-message ring drained
by a single logger worker, and a cooperative shutdown protocol.

Everything else (socket I/O, protocol handling) registers as a thread body
through the launcher's declarative start table; this binary only owns the
substrate those threads run on.`,
	Version: version,
	RunE:    runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
}

var configPath string
