// Package child is the verifier's child-process side: a loop that loads
// artifacts and runs entry points on request, streaming program output back
// as frames.
package child

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"fortio.org/safecast"

	"difftest/internal/verifier/wire"
)

// Invocation is one program run.
type Invocation struct {
	Entry string
	Args  []string
	// Flags are VM-level flags, e.g. "-Dname=value".
	Flags []string
}

// Runtime executes loaded artifacts inside the child.
type Runtime interface {
	// Load makes artifacts available to later runs. A failure is reported to
	// the parent as a load error.
	Load(artifacts []wire.Artifact) error
	// Run executes inv, writing program output to stdout and stderr. A
	// non-nil error is an uncaught runtime fault, not a program exit status.
	Run(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (exitCode int, err error)
}

// Serve answers requests from in until in is exhausted or a quit frame
// arrives. It announces itself with a hello frame first.
func Serve(ctx context.Context, in io.Reader, out io.Writer, rt Runtime) error {
	enc := wire.NewEncoder(out)
	dec := wire.NewDecoder(in)

	if err := enc.Send(wire.Response{Kind: wire.KindHello, Message: fmt.Sprintf("pid %d", os.Getpid())}); err != nil {
		return err
	}

	for {
		var req wire.Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("child: read request: %w", err)
		}

		var resp wire.Response
		switch req.Kind {
		case wire.KindLoad:
			if err := rt.Load(req.Artifacts); err != nil {
				resp = wire.Response{Kind: wire.KindLoadFailed, Seq: req.Seq, Message: err.Error()}
			} else {
				resp = wire.Response{Kind: wire.KindLoaded, Seq: req.Seq}
			}
		case wire.KindRun:
			resp = run(ctx, enc, rt, req)
		case wire.KindQuit:
			return nil
		default:
			resp = wire.Response{Kind: wire.KindFatal, Seq: req.Seq, Message: fmt.Sprintf("unexpected request %s", req.Kind)}
		}
		if err := enc.Send(resp); err != nil {
			return err
		}
	}
}

func run(ctx context.Context, enc *wire.Encoder, rt Runtime, req wire.Request) wire.Response {
	stdout := wire.OutputWriter{Enc: enc, Seq: req.Seq, Stream: wire.Stdout}
	stderr := wire.OutputWriter{Enc: enc, Seq: req.Seq, Stream: wire.Stderr}
	inv := Invocation{Entry: req.Entry, Args: req.Args, Flags: req.Flags}

	code, err := rt.Run(ctx, inv, stdout, stderr)
	if err != nil {
		return wire.Response{Kind: wire.KindFatal, Seq: req.Seq, Message: err.Error()}
	}
	exit, err := safecast.Conv[int32](code)
	if err != nil {
		return wire.Response{Kind: wire.KindFatal, Seq: req.Seq, Message: fmt.Sprintf("exit status %d out of range", code)}
	}
	return wire.Response{Kind: wire.KindDone, Seq: req.Seq, Exit: exit}
}
