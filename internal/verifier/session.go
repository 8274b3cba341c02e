package verifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"difftest/internal/compiler"
	"difftest/internal/trace"
	"difftest/internal/verifier/wire"
)

// Session drives one child process at a time. Its methods are safe for
// concurrent use but run one at a time.
type Session struct {
	cfg Config

	mu          sync.Mutex
	proc        *process
	state       State
	loaded      []wire.Artifact // replayed into every new child
	seq         uint64
	launches    int
	lastFailure *Result
	closed      bool
}

// Start launches the child and waits for its handshake. The session is Idle
// on return.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastFailure returns the most recent crashed or timed-out result, with the
// output captured before the failure.
func (s *Session) LastFailure() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailure
}

// Launches returns how many child processes the session has started.
func (s *Session) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

func (s *Session) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// ensure returns a live child, launching one and replaying loaded artifacts
// when needed.
func (s *Session) ensure(ctx context.Context) (*process, error) {
	if s.proc != nil {
		return s.proc, nil
	}
	p, err := startProcess(s.cfg)
	if err != nil {
		return nil, &ChildError{Op: "launch", Err: err}
	}
	s.launches++
	s.proc = p
	s.state = Idle

	if _, err := s.await(ctx, p, 0, wire.KindHello); err != nil {
		s.discard()
		return nil, &ChildError{Op: "handshake", Err: err}
	}
	if len(s.loaded) > 0 {
		if err := s.loadInto(ctx, p, s.loaded); err != nil {
			s.discard()
			return nil, err
		}
		s.state = Loaded
	}
	return p, nil
}

// discard kills the current child, if any.
func (s *Session) discard() {
	if s.proc == nil {
		return
	}
	if err := s.proc.kill(); err != nil {
		log.Debugf("verifier: discarded child %d: %v", s.proc.pid, err)
	}
	s.proc = nil
}

// await waits for a response of kind with the given seq, ignoring stale
// frames, within the start timeout.
func (s *Session) await(ctx context.Context, p *process, seq uint64, kinds ...wire.Kind) (wire.Response, error) {
	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()
	for {
		frames, done, err := p.frames.drain()
		for _, f := range frames {
			if f.Seq != seq {
				continue
			}
			for _, k := range kinds {
				if f.Kind == k {
					return f, nil
				}
			}
			if f.Kind == wire.KindFatal {
				return f, fmt.Errorf("child fault: %s", f.Message)
			}
		}
		if done {
			if err == nil {
				err = fmt.Errorf("%s before %s", p.exitDescription(), kinds[0])
			}
			return wire.Response{}, err
		}
		select {
		case <-p.frames.notify:
		case <-timer.C:
			return wire.Response{}, fmt.Errorf("no %s from child within %s", kinds[0], s.cfg.StartTimeout)
		case <-ctx.Done():
			return wire.Response{}, ctx.Err()
		}
	}
}

func (s *Session) loadInto(ctx context.Context, p *process, arts []wire.Artifact) error {
	seq := s.nextSeq()
	if err := p.send(wire.Request{Kind: wire.KindLoad, Seq: seq, Artifacts: arts}); err != nil {
		return &ChildError{Op: "load", Err: err}
	}
	resp, err := s.await(ctx, p, seq, wire.KindLoaded, wire.KindLoadFailed)
	if err != nil {
		return &ChildError{Op: "load", Err: err}
	}
	if resp.Kind == wire.KindLoadFailed {
		return &LoadError{Message: resp.Message}
	}
	return nil
}

// Load ships compiled artifacts to the child. They stay loaded for the life
// of the session and are replayed into replacement children. A rejected load
// leaves the session Crashed with no child.
func (s *Session) Load(ctx context.Context, artifacts ...compiler.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStep, "verifier.load", 0)
	defer span.End("")

	arts := make([]wire.Artifact, len(artifacts))
	for i, a := range artifacts {
		arts[i] = wire.Artifact{Name: a.Name, Bytes: a.Bytes}
	}
	p, err := s.ensure(ctx)
	if err != nil {
		s.state = Crashed
		return err
	}
	if err := s.loadInto(ctx, p, arts); err != nil {
		log.Warnf("verifier: load failed: %v", err)
		s.discard()
		s.state = Crashed
		span.WithExtra("error", err.Error())
		return err
	}
	s.loaded = append(s.loaded, arts...)
	s.state = Loaded
	return nil
}

// Execute runs inv in the child and waits for it to finish, crash or time
// out. A crash relaunches the child and retries once; a retry that does not
// complete, whether it crashes again or times out, is returned as
// *ChildError together with its partial result. A timeout on the first
// attempt is a result, not an error: the child is killed and the next call
// starts a fresh one.
func (s *Session) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeStep, "verifier.execute", 0)
	defer span.End(inv.Entry)

	first, err := s.attempt(ctx, inv, span.ID())
	if err != nil {
		return first, err
	}
	span.WithExtra("outcome", first.Outcome.String())
	if first.Outcome != Crashed {
		return first, nil
	}

	log.Warnf("verifier: %s crashed (%s), relaunching", inv.Entry, first.Fault)
	second, err := s.attempt(ctx, inv, span.ID())
	if err != nil {
		return first, err
	}
	second.Previous = first
	span.WithExtra("outcome", second.Outcome.String())
	if second.Outcome != Completed {
		return second, &ChildError{Op: "execute " + inv.Entry, Partial: second}
	}
	return second, nil
}

func (s *Session) attempt(ctx context.Context, inv Invocation, parent uint64) (*Result, error) {
	p, err := s.ensure(ctx)
	if err != nil {
		s.state = Crashed
		return nil, err
	}
	started := time.Now()
	res := &Result{Entry: inv.Entry, Launch: s.launches}
	mark := p.stderr.Len()
	seq := s.nextSeq()
	s.state = Executing

	finish := func(outcome State) *Result {
		res.Outcome = outcome
		res.Elapsed = time.Since(started)
		s.state = outcome
		if outcome != Completed {
			// the child is not trusted after a crash or a hang
			s.discard()
			res.ChildLog = p.stderr.Since(mark)
			s.lastFailure = res
		}
		return res
	}

	req := wire.Request{Kind: wire.KindRun, Seq: seq, Entry: inv.Entry, Args: inv.Args, Flags: inv.Flags}
	if err := p.send(req); err != nil {
		res.Fault = "send run request: " + err.Error()
		return finish(Crashed), nil
	}

	var out, stdout, stderr strings.Builder
	defer func() {
		res.Output, res.Stdout, res.Stderr = out.String(), stdout.String(), stderr.String()
	}()

	idle := time.NewTimer(s.cfg.Timeout)
	defer idle.Stop()
	var hard <-chan time.Time
	if s.cfg.RunLimit > 0 {
		t := time.NewTimer(s.cfg.RunLimit)
		defer t.Stop()
		hard = t.C
	}
	tr := trace.FromContext(ctx)

	for {
		frames, done, rerr := p.frames.drain()
		for _, f := range frames {
			if f.Seq != seq {
				continue
			}
			switch f.Kind {
			case wire.KindOutput:
				out.Write(f.Data)
				if f.Stream == wire.Stderr {
					stderr.Write(f.Data)
				} else {
					stdout.Write(f.Data)
				}
				idle.Reset(s.cfg.Timeout)
				trace.Point(tr, trace.ScopeFrame, "verifier.output", fmt.Sprintf("%d bytes", len(f.Data)), parent)
			case wire.KindDone:
				res.Exit = int(f.Exit)
				return finish(Completed), nil
			case wire.KindFatal:
				res.Fault = f.Message
				return finish(Crashed), nil
			}
		}
		if done {
			res.Fault = p.exitDescription()
			if rerr != nil {
				res.Fault = "protocol error: " + rerr.Error()
			}
			return finish(Crashed), nil
		}
		select {
		case <-p.frames.notify:
		case <-idle.C:
			res.Fault = fmt.Sprintf("no output for %s", s.cfg.Timeout)
			log.Warnf("verifier: %s timed out, killing child %d", inv.Entry, p.pid)
			return finish(TimedOut), nil
		case <-hard:
			res.Fault = fmt.Sprintf("still running after %s", s.cfg.RunLimit)
			log.Warnf("verifier: %s exceeded run limit, killing child %d", inv.Entry, p.pid)
			return finish(TimedOut), nil
		case <-ctx.Done():
			res.Fault = ctx.Err().Error()
			finish(Crashed)
			return res, ctx.Err()
		}
	}
}

// Shutdown stops the child, asking it to quit first and killing it after the
// grace period. It is idempotent; later operations return ErrClosed.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = Idle
	p := s.proc
	if p == nil {
		return nil
	}
	s.proc = nil

	_ = p.send(wire.Request{Kind: wire.KindQuit, Seq: s.nextSeq()})
	_ = p.stdin.Close()
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			if _, done, _ := p.frames.drain(); done {
				return
			}
			<-p.frames.notify
		}
	}()
	select {
	case <-exited:
	case <-time.After(s.cfg.Grace):
		log.Warnf("verifier: child %d ignored quit, killing", p.pid)
	}
	// kill is harmless after a clean exit and reaps in both cases
	_ = p.kill()
	return nil
}
