package suite

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"difftest/internal/failure"
	"difftest/internal/observ"
	"difftest/internal/trace"
)

// Outcome is the result of one test.
type Outcome struct {
	Path    string
	Err     error
	Elapsed time.Duration
	Timings observ.Report
}

// Passed reports whether the test succeeded.
func (o Outcome) Passed() bool { return o.Err == nil }

// Run opens a session, runs every test under root in order and closes the
// session again. report is called after each test. The error is non-nil when
// the session could not be set up or torn down, when ctx is cancelled, or
// when any test failed.
func Run(ctx context.Context, cfg Config, root Node, report func(Outcome)) (err error) {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeSession, "suite.run", 0)
	defer span.End("")

	s, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var total, failed int
	werr := Walk(root, func(path string, t *Test) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := s.RunTest(ctx, path, t)
		total++
		if !o.Passed() {
			failed++
		}
		if report != nil {
			report(o)
		}
		return nil
	})
	span.WithExtra("tests", fmt.Sprint(total))
	if werr != nil {
		return werr
	}
	if failed > 0 {
		return failure.Newf(failure.ComparisonMismatch, "%d of %d test(s) failed", failed, total)
	}
	return nil
}

// RunTest runs one test body with a fresh Context. A panicking body fails the
// test instead of the run.
func (s *Session) RunTest(ctx context.Context, path string, t *Test) (o Outcome) {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeTest, "suite.test", 0)
	c := newContext(ctx, s, path, span.ID())
	started := time.Now()
	o.Path = path

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("suite: %s panicked: %v\n%s", path, r, debug.Stack())
			o.Err = failure.Newf(failure.InternalError, "test panicked: %v", r)
		}
		o.Elapsed = time.Since(started)
		o.Timings = c.timer.Report()
		status := "pass"
		if o.Err != nil {
			status = "fail"
		}
		span.End(path + " " + status)
	}()

	if t.Body == nil {
		return o
	}
	o.Err = t.Body(c)
	return o
}
