package suite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"difftest/internal/compiler"
	"difftest/internal/diagfmt"
	"difftest/internal/errlist"
	"difftest/internal/failure"
	"difftest/internal/nameenv"
	"difftest/internal/observ"
	"difftest/internal/source"
	"difftest/internal/trace"
	"difftest/internal/verifier"
)

// Context is what a test body works with. Each test gets a fresh one: its own
// sources, problem log and compiled artifacts, on top of the shared session.
type Context struct {
	ctx  context.Context
	s    *Session
	name string
	span uint64

	sources   []nameenv.Source
	artifacts *nameenv.ArtifactLibrary
	compiled  map[string]compiler.Artifact
	pending   []compiler.Artifact // compiled, not yet loaded into the verifier
	log       *diagfmt.Log
	last      *compiler.Result
	errPasses int // compile passes that reported errors
	run       *verifier.Result
	timer     *observ.Timer
}

func newContext(ctx context.Context, s *Session, name string, span uint64) *Context {
	return &Context{
		ctx:       ctx,
		s:         s,
		name:      name,
		span:      span,
		artifacts: nameenv.NewArtifactLibrary(name),
		compiled:  make(map[string]compiler.Artifact),
		log:       diagfmt.NewLog(s.cfg.Log),
		timer:     observ.NewTimer(),
	}
}

// Name returns the test's path in the suite tree.
func (c *Context) Name() string { return c.name }

// Context returns the context the test runs under.
func (c *Context) Context() context.Context { return c.ctx }

// Session returns the shared session.
func (c *Context) Session() *Session { return c.s }

// AddSource adds an in-memory file visible to later compilations.
func (c *Context) AddSource(path, text string) {
	c.sources = append(c.sources, nameenv.Source{Path: path, Text: text})
}

// Log returns the problem log accumulated over every compile pass.
func (c *Context) Log() string { return c.log.String() }

// LastCompile returns the result of the latest compile pass.
func (c *Context) LastCompile() *compiler.Result { return c.last }

// LastRun returns the result of the latest program run.
func (c *Context) LastRun() *verifier.Result { return c.run }

// Artifact returns the newest artifact compiled under name.
func (c *Context) Artifact(name string) (compiler.Artifact, bool) {
	a, ok := c.compiled[name]
	return a, ok
}

// Compile runs the compiler with a command line such as
// `-classpath "lib;other" -d out p/A.sh`. Types compiled by earlier passes
// of the same test resolve as binaries from their artifacts and are not
// compiled again unless the command line names their files. Problems go to
// the log; the returned error is reserved for malformed command lines and
// compiler failures.
func (c *Context) Compile(line string) (*compiler.Result, error) {
	step := c.timer.Begin("compile")
	span := trace.Begin(trace.FromContext(c.ctx), trace.ScopeStep, "suite.compile", c.span)
	res, err := c.compile(line)
	note := ""
	if res != nil {
		note = fmt.Sprintf("%d problem(s)", len(res.Problems))
	}
	c.timer.End(step, note)
	span.End(note)
	return res, err
}

func (c *Context) compile(line string) (res *compiler.Result, err error) {
	opts, err := compiler.ParseCommandLine(line, c.s.cfg.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", line, err)
	}
	cp, err := nameenv.Classpath(c.s.cfg.abs(opts.Classpath), c.s.cfg.Ext)
	if err != nil {
		return nil, err
	}

	libs := make([]nameenv.Lookup, 0, 1+len(cp)+len(c.s.libs))
	libs = append(libs, c.artifacts)
	libs = append(libs, cp...)
	libs = append(libs, c.s.libs...)
	env, err := nameenv.New(c.sourcesFor(opts.Files), libs...)
	if err != nil {
		_ = cleanup(cp)
		return nil, err
	}
	defer func() {
		if cerr := env.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	res, err = c.s.cfg.Compiler.Compile(c.ctx, env, opts)
	if err != nil {
		return nil, err
	}
	c.log.Append(res.Problems, env.Files())
	for _, a := range res.Artifacts {
		c.artifacts.Add(a.Name, a.Bytes)
		c.compiled[a.Name] = a
		c.pending = append(c.pending, a)
	}
	if res.HasErrors() {
		c.errPasses++
	}
	c.last = res
	return res, nil
}

// sourcesFor returns the in-memory sources of a compile pass. Units an
// earlier pass already turned into artifacts are left out unless files names
// them again, so later passes resolve them through c.artifacts.
func (c *Context) sourcesFor(files []string) []nameenv.Source {
	if len(c.compiled) == 0 {
		return c.sources
	}
	named := make(map[string]bool, len(files))
	for _, f := range files {
		named[source.NormalizePath(f)] = true
	}
	out := make([]nameenv.Source, 0, len(c.sources))
	for _, src := range c.sources {
		if !named[source.NormalizePath(src.Path)] {
			// malformed paths stay in so nameenv.New reports them
			if u, err := nameenv.NewUnit(src.Path, src.Text); err == nil {
				if _, done := c.compiled[u.QualifiedName()]; done {
					continue
				}
			}
		}
		out = append(out, src)
	}
	return out
}

// Run loads everything compiled so far into the verifier and runs entry.
// A child that crashed twice yields both the partial result and a
// *verifier.ChildError.
func (c *Context) Run(entry string, args, vmflags []string) (*verifier.Result, error) {
	vm := c.s.vm
	if len(c.pending) > 0 {
		if err := c.timer.Time("load", func() error { return vm.Load(c.ctx, c.pending...) }); err != nil {
			return nil, err
		}
		c.pending = nil
	}

	step := c.timer.Begin("execute")
	res, err := vm.Execute(c.ctx, verifier.Invocation{Entry: entry, Args: args, Flags: vmflags})
	note := ""
	if res != nil {
		note = res.Outcome.String()
	}
	c.timer.End(step, note)
	c.run = res

	var cerr *verifier.ChildError
	if errors.As(err, &cerr) {
		c.dumpTrace()
	}
	return res, err
}

// dumpTrace logs the recent trace history after a child crash.
func (c *Context) dumpTrace() {
	ring := trace.Ring(trace.FromContext(c.ctx))
	if ring == nil {
		return
	}
	var b strings.Builder
	if err := ring.Dump(&b, trace.FormatText); err != nil {
		log.Debugf("suite: trace dump: %v", err)
		return
	}
	log.Warnf("suite: %s: child crashed, recent trace:\n%s", c.name, b.String())
}

// ExpectLog compares the accumulated problem log with want.
func (c *Context) ExpectLog(want string) error {
	return expect("problem log", want, c.log.String())
}

// ExpectNoErrors fails when any compile pass reported an error.
func (c *Context) ExpectNoErrors() error {
	if c.last == nil {
		return failure.New(failure.MalformedInput, -1, "nothing was compiled")
	}
	if c.errPasses > 0 {
		return &MismatchError{What: "problem log (errors)", Want: "", Got: c.log.String()}
	}
	return nil
}

// ExpectOutput checks that the last run completed and printed exactly
// stdout and stderr.
func (c *Context) ExpectOutput(stdout, stderr string) error {
	if c.run == nil {
		return failure.New(failure.MalformedInput, -1, "no program has run")
	}
	if c.run.Outcome != verifier.Completed {
		got := c.run.Outcome.String()
		if c.run.Fault != "" {
			got += ": " + c.run.Fault
		}
		return &MismatchError{What: "outcome", Want: verifier.Completed.String(), Got: got}
	}
	var errs errlist.List
	errs = errs.Append(expect("stdout", stdout, c.run.Stdout))
	errs = errs.Append(expect("stderr", stderr, c.run.Stderr))
	return errs.ErrOrNil()
}

// ExpectDisassembly renders the artifact name and compares it with want.
func (c *Context) ExpectDisassembly(name, want string) error {
	if c.s.cfg.Disassembler == nil {
		return failure.New(failure.InternalError, -1, "suite: no disassembler configured")
	}
	a, ok := c.compiled[name]
	if !ok {
		return &MismatchError{What: "artifacts", Want: name + "\n", Got: strings.Join(c.artifacts.Names(), "\n") + "\n"}
	}
	got, err := c.s.cfg.Disassembler.Disassemble(a)
	if err != nil {
		return err
	}
	return expect("disassembly of "+name, want, got)
}
