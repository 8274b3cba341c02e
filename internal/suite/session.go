// Package suite runs differential tests: each test compiles in-memory sources
// with the compiler under test, optionally runs the result in the verifier
// child, and compares problem logs, program output and disassembly with
// expected baselines.
//
// A Session owns everything tests share: the library lookups built from the
// suite classpath and one verifier child. Tests are leaves of a tree of
// Groups and run one at a time through Run.
package suite

import (
	"context"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"difftest/internal/cmdline"
	"difftest/internal/compiler"
	"difftest/internal/diagfmt"
	"difftest/internal/errlist"
	"difftest/internal/failure"
	"difftest/internal/nameenv"
	"difftest/internal/trace"
	"difftest/internal/verifier"
)

// Config configures a Session.
type Config struct {
	// Dir resolves relative -classpath entries in compile command lines.
	Dir string
	// Tokenizer splits compile command lines and directives.
	Tokenizer cmdline.Tokenizer
	// Classpath entries shared by every compilation of the suite.
	Classpath []string
	// Ext is the source extension the classpath libraries look for.
	Ext string

	Compiler     compiler.Compiler
	Disassembler compiler.Disassembler
	Verifier     verifier.Config
	Log          diagfmt.Options
}

// Session is the state shared by the tests of one run.
type Session struct {
	cfg  Config
	libs []nameenv.Lookup
	vm   *verifier.Session

	closeOnce sync.Once
	closeErr  error
}

// Open builds the shared libraries and starts the verifier child.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Compiler == nil {
		return nil, failure.New(failure.InternalError, -1, "suite: no compiler configured")
	}
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeSession, "suite.open", 0)
	defer span.End("")

	libs, err := nameenv.Classpath(cfg.abs(cfg.Classpath), cfg.Ext)
	if err != nil {
		return nil, err
	}
	vm, err := verifier.Start(ctx, cfg.Verifier)
	if err != nil {
		_ = cleanup(libs)
		return nil, err
	}
	log.Debugf("suite: session open, %d shared librar(y/ies)", len(libs))
	return &Session{cfg: cfg, libs: libs, vm: vm}, nil
}

func (cfg Config) abs(entries []string) []string {
	if cfg.Dir == "" {
		return entries
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		if filepath.IsAbs(e) {
			out[i] = e
		} else {
			out[i] = filepath.Join(cfg.Dir, e)
		}
	}
	return out
}

func cleanup(libs []nameenv.Lookup) error {
	var errs errlist.List
	for _, l := range libs {
		errs = errs.Append(l.Cleanup())
	}
	return errs.ErrOrNil()
}

// Verifier returns the session's verifier.
func (s *Session) Verifier() *verifier.Session { return s.vm }

// Libraries returns the shared library lookups.
func (s *Session) Libraries() []nameenv.Lookup { return s.libs }

// Close shuts the verifier down and releases the libraries. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs errlist.List
		errs = errs.Append(s.vm.Shutdown())
		errs = errs.Append(cleanup(s.libs))
		s.closeErr = errs.ErrOrNil()
		log.Debugf("suite: session closed after %d child launch(es)", s.vm.Launches())
	})
	return s.closeErr
}
