// Package verifier runs compiled programs in a separate, long-lived child
// process and reports what they printed.
//
// A Session owns at most one child at a time. The child is started by Start,
// fed artifacts with Load and asked to run entry points with Execute. Its
// output is drained continuously while a program runs; a watchdog kills it
// when output stops for longer than the configured timeout. A crashed child
// is replaced and the request retried once before the failure is reported.
package verifier

import (
	"fmt"
	"os"
	"time"

	"difftest/internal/failure"
)

// State is the session life-cycle state.
type State uint8

const (
	Idle State = iota
	Loaded
	Executing
	Completed
	Crashed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Crashed:
		return "crashed"
	case TimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Defaults used when Config leaves a field zero.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultStartTimeout = 10 * time.Second
	DefaultGrace        = 2 * time.Second
)

// Config describes the child process.
type Config struct {
	// Command is the child's argv. Empty means this executable with the
	// "runner" subcommand.
	Command []string
	// Env is appended to the parent's environment.
	Env []string
	Dir string
	// Timeout is the longest a running program may stay silent.
	Timeout time.Duration
	// RunLimit caps a single execution regardless of output; 0 disables it.
	RunLimit time.Duration
	// StartTimeout bounds the child's handshake and load replies.
	StartTimeout time.Duration
	// Grace is how long Shutdown waits for a clean exit before killing.
	Grace time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if len(c.Command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return c, failure.Wrap(failure.InternalError, -1, "locate runner executable", err)
		}
		c.Command = []string{exe, "runner"}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	return c, nil
}

// Invocation is one program run.
type Invocation struct {
	Entry string
	Args  []string
	// Flags are VM flags such as -Dname=value.
	Flags []string
}

// Result is what one execution produced.
type Result struct {
	Entry   string
	Outcome State // Completed, Crashed or TimedOut
	Exit    int
	Stdout  string
	Stderr  string
	// Output interleaves both streams in arrival order.
	Output string
	// ChildLog is raw text the child process wrote to its own stderr.
	ChildLog string
	// Fault describes a crash: the child's fatal message or exit status.
	Fault   string
	Elapsed time.Duration
	// Launch counts child processes started by the session, this one included.
	Launch int
	// Previous is the crashed first attempt when the request was retried.
	Previous *Result
}

// ChildError reports a child whose retry after a crash did not complete, or a
// protocol failure the session could not recover from.
type ChildError struct {
	Op      string
	Partial *Result
	Err     error
}

func (e *ChildError) Error() string {
	msg := fmt.Sprintf("verifier %s: child process failed", e.Op)
	if e.Partial != nil && e.Partial.Fault != "" {
		msg += ": " + e.Partial.Fault
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChildError) Unwrap() []error {
	errs := []error{failure.New(failure.ChildProcessFailure, -1, e.Op)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// LoadError is a load the child rejected. The child is discarded.
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string {
	return "verifier load: " + e.Message
}

func (e *LoadError) Unwrap() error {
	return failure.New(failure.MalformedInput, -1, e.Message)
}

// ErrClosed is returned by operations on a shut down session.
var ErrClosed = failure.New(failure.InternalError, -1, "verifier session is shut down")
