package verifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"difftest/internal/verifier/wire"
)

// frameQueue is an unbounded queue between the stdout reader and the
// session. The reader never blocks on the session, so the child never
// blocks on a full pipe.
type frameQueue struct {
	mu     sync.Mutex
	items  []wire.Response
	closed bool
	err    error
	notify chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{notify: make(chan struct{}, 1)}
}

func (q *frameQueue) push(r wire.Response) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	q.signal()
}

func (q *frameQueue) close(err error) {
	q.mu.Lock()
	q.closed = true
	q.err = err
	q.mu.Unlock()
	q.signal()
}

func (q *frameQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain takes every queued frame. done is true once the stream has ended and
// nothing is left.
func (q *frameQueue) drain() (frames []wire.Response, done bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	frames, q.items = q.items, nil
	return frames, q.closed, q.err
}

// lockedBuffer collects the child's raw stderr.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *lockedBuffer) Since(mark int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark > b.buf.Len() {
		return ""
	}
	return string(b.buf.Bytes()[mark:])
}

// process is one running child.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *wire.Encoder
	frames *frameQueue
	stderr *lockedBuffer
	group  *errgroup.Group
	pid    int

	reapOnce sync.Once
	waitErr  error
}

func startProcess(cfg Config) (*process, error) {
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command[0], err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		enc:    wire.NewEncoder(stdin),
		frames: newFrameQueue(),
		stderr: &lockedBuffer{},
		group:  new(errgroup.Group),
		pid:    cmd.Process.Pid,
	}
	p.group.Go(func() error {
		dec := wire.NewDecoder(stdout)
		for {
			var r wire.Response
			if err := dec.Decode(&r); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
					err = nil
				}
				p.frames.close(err)
				return err
			}
			p.frames.push(r)
		}
	})
	p.group.Go(func() error {
		_, err := io.Copy(p.stderr, stderr)
		if errors.Is(err, os.ErrClosed) {
			err = nil
		}
		return err
	})
	log.Debugf("verifier: started child pid %d", p.pid)
	return p, nil
}

func (p *process) send(req wire.Request) error {
	return p.enc.Send(req)
}

// kill terminates the child with its process group and releases its pipes.
// Safe to call repeatedly.
func (p *process) kill() error {
	if err := killGroup(p.cmd.Process); err != nil {
		log.Debugf("verifier: kill child %d: %v", p.pid, err)
	}
	return p.reap()
}

// drainWait bounds how long reap lets the readers finish on their own.
const drainWait = 500 * time.Millisecond

// reap waits for both drain goroutines and the process. Readers normally hit
// EOF once the child is gone; when a grandchild keeps the pipes open, waiting
// on the process closes our ends and unblocks them.
func (p *process) reap() error {
	p.reapOnce.Do(func() {
		drained := make(chan error, 1)
		go func() { drained <- p.group.Wait() }()
		var drainErr error
		select {
		case drainErr = <-drained:
			p.waitErr = p.cmd.Wait()
		case <-time.After(drainWait):
			p.waitErr = p.cmd.Wait()
			drainErr = <-drained
		}
		if drainErr != nil {
			log.Debugf("verifier: child %d drain: %v", p.pid, drainErr)
		}
		_ = p.stdin.Close()
		log.Debugf("verifier: child %d reaped: %v", p.pid, p.waitErr)
	})
	return p.waitErr
}

func (p *process) exitDescription() string {
	if p.cmd.ProcessState == nil {
		return "child process ended"
	}
	return "child process " + p.cmd.ProcessState.String()
}
