// Command otlpmmap inspects and drains otlp-mmap transport files: the
// shared-memory telemetry channel left behind by an instrumented process,
// including one that crashed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jsuereth/otlp-mmap/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "otlpmmap",
	Short: "Inspect and drain otlp-mmap transport files",
	Long: `otlpmmap works with memory-mapped telemetry transport files.

Transport files hold lock-free ring buffers and append-only dictionaries
shared between an instrumented producer process and a collector. Because
the records live in file-backed pages, they survive a producer crash and
can be inspected or drained here post mortem.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the command logger honoring --verbose.
func newLogger() (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return logging.Init(level)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
