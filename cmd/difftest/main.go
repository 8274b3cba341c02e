package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"difftest/internal/failure"
	"difftest/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "difftest",
	Short: "Differential test harness for compilers",
	Long: `difftest compiles small source sets under controlled options, runs the
results in an isolated child process and compares diagnostics, program
output and disassembly with expected baselines`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupCommand,
}

// teardown stops the profilers and flushes the tracer installed by
// setupCommand.
var teardown func()

func init() {
	rootCmd.Version = version.Get().Version

	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runnerCmd)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show per-step timings")
	flags.String("config", "", "path to difftest.toml (default: search upwards)")
	flags.String("log-level", "warning", "log level (panic|fatal|error|warning|info|debug|trace)")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace mode (stream|ring|both)")
	flags.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if teardown != nil {
		teardown()
	}
	if err != nil {
		os.Exit(report(err))
	}
}

func setupCommand(cmd *cobra.Command, _ []string) error {
	color.NoColor = !useColor(cmd, os.Stdout)
	if err := setupLogging(cmd); err != nil {
		return err
	}
	traceCleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	profCleanup, err := setupProfiling(cmd)
	if err != nil {
		traceCleanup()
		return err
	}
	teardown = func() {
		profCleanup()
		traceCleanup()
	}
	return nil
}

// exitError carries an exit status. A nil err means the command already
// reported what went wrong.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// report prints err and returns the process exit code for it.
func report(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "difftest:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "difftest:", err)
	if class, ok := failure.ClassOf(err); ok {
		return class.ExitCode()
	}
	return 1
}

func useColor(cmd *cobra.Command, f *os.File) bool {
	colorFlag, _ := cmd.Root().PersistentFlags().GetString("color")
	switch colorFlag {
	case "on":
		return true
	case "off":
		return false
	}
	return isTerminal(f)
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
