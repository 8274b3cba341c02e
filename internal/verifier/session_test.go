package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"difftest/internal/compiler"
	"difftest/internal/failure"
	"difftest/internal/verifier/child"
	"difftest/internal/verifier/wire"
)

const helperEnv = "DIFFTEST_VERIFIER_HELPER"

// TestMain turns the test binary into a child runtime when re-executed with
// helperEnv set.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		if err := child.Serve(context.Background(), os.Stdin, os.Stdout, &fakeRuntime{}); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type fakeRuntime struct {
	loaded []string
}

func (r *fakeRuntime) Load(arts []wire.Artifact) error {
	for _, a := range arts {
		if a.Name == "bad" {
			return errors.New("bad artifact")
		}
		r.loaded = append(r.loaded, a.Name)
	}
	return nil
}

func (r *fakeRuntime) Run(_ context.Context, inv child.Invocation, stdout, stderr io.Writer) (int, error) {
	switch inv.Entry {
	case "echo":
		fmt.Fprintln(stdout, strings.Join(inv.Args, " "))
		return 0, nil
	case "fail":
		fmt.Fprintln(stdout, "out")
		fmt.Fprintln(stderr, "err")
		return 3, nil
	case "loaded":
		fmt.Fprintln(stdout, strings.Join(r.loaded, ","))
		return 0, nil
	case "hang":
		fmt.Fprintln(stdout, "partial")
		time.Sleep(time.Hour)
		return 0, nil
	case "chatty":
		for {
			fmt.Fprintln(stdout, "tick")
			time.Sleep(5 * time.Millisecond)
		}
	case "crash":
		fmt.Fprintln(stdout, "dying")
		fmt.Fprintln(os.Stderr, "raw crash trace")
		os.Exit(7)
	case "crashonce":
		marker := os.Getenv("CRASH_MARKER")
		if _, err := os.Stat(marker); err != nil {
			_ = os.WriteFile(marker, nil, 0o600)
			os.Exit(7)
		}
		fmt.Fprintln(stdout, "recovered")
		return 0, nil
	case "crashthenhang":
		marker := os.Getenv("CRASH_MARKER")
		if _, err := os.Stat(marker); err != nil {
			_ = os.WriteFile(marker, nil, 0o600)
			os.Exit(7)
		}
		fmt.Fprintln(stdout, "partial")
		time.Sleep(time.Hour)
		return 0, nil
	case "spawn":
		sleeper := exec.Command("sleep", "30")
		if err := sleeper.Start(); err != nil {
			return 1, err
		}
		_ = os.WriteFile(os.Getenv("SPAWN_PIDFILE"), []byte(strconv.Itoa(sleeper.Process.Pid)), 0o600)
		fmt.Fprintln(stdout, "partial")
		time.Sleep(time.Hour)
		return 0, nil
	case "fatal":
		return 0, errors.New("uncaught fault")
	}
	return 1, fmt.Errorf("unknown entry %s", inv.Entry)
}

func newSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	cfg.Command = []string{os.Args[0]}
	cfg.Env = append(cfg.Env, helperEnv+"=1")
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	s, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestExecuteCompletes(t *testing.T) {
	s := newSession(t, Config{})
	ctx := context.Background()
	if s.State() != Idle {
		t.Fatalf("initial state %s", s.State())
	}

	res, err := s.Execute(ctx, Invocation{Entry: "echo", Args: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Completed || res.Stdout != "a b\n" || res.Exit != 0 {
		t.Fatalf("result = %+v", res)
	}

	res, err = s.Execute(ctx, Invocation{Entry: "fail"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Exit != 3 || res.Stdout != "out\n" || res.Stderr != "err\n" || res.Output != "out\nerr\n" {
		t.Fatalf("result = %+v", res)
	}
	if s.State() != Completed || s.Launches() != 1 {
		t.Fatalf("state %s, launches %d", s.State(), s.Launches())
	}
}

func TestLoadAndReplayAfterCrash(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "crashed")
	t.Setenv("CRASH_MARKER", marker)
	s := newSession(t, Config{})
	ctx := context.Background()

	if err := s.Load(ctx, compiler.Artifact{Name: "p.A"}, compiler.Artifact{Name: "p.B"}); err != nil {
		t.Fatal(err)
	}
	if s.State() != Loaded {
		t.Fatalf("state after load = %s", s.State())
	}

	res, err := s.Execute(ctx, Invocation{Entry: "crashonce"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Completed || res.Stdout != "recovered\n" {
		t.Fatalf("retry result = %+v", res)
	}
	if res.Previous == nil || res.Previous.Outcome != Crashed {
		t.Fatalf("previous attempt = %+v", res.Previous)
	}
	if s.Launches() != 2 {
		t.Fatalf("launches = %d", s.Launches())
	}

	res, err = s.Execute(ctx, Invocation{Entry: "loaded"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "p.A,p.B\n" {
		t.Fatalf("artifacts not replayed: %q", res.Stdout)
	}
}

func TestDoubleCrashIsChildError(t *testing.T) {
	s := newSession(t, Config{})
	res, err := s.Execute(context.Background(), Invocation{Entry: "crash"})
	var cerr *ChildError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ChildError", err)
	}
	if !errors.Is(err, failure.Target(failure.ChildProcessFailure)) {
		t.Fatal("ChildError does not carry ChildProcessFailure")
	}
	if res == nil || res.Outcome != Crashed || res.Stdout != "dying\n" {
		t.Fatalf("partial result = %+v", res)
	}
	if !strings.Contains(res.ChildLog, "raw crash trace") {
		t.Fatalf("child log = %q", res.ChildLog)
	}
	if s.State() != Crashed || s.LastFailure() != res {
		t.Fatalf("state %s, last failure %+v", s.State(), s.LastFailure())
	}

	res, err = s.Execute(context.Background(), Invocation{Entry: "echo", Args: []string{"again"}})
	if err != nil || res.Stdout != "again\n" {
		t.Fatalf("session did not recover: %+v, %v", res, err)
	}
}

func TestFatalFrameCountsAsCrash(t *testing.T) {
	s := newSession(t, Config{})
	res, err := s.Execute(context.Background(), Invocation{Entry: "fatal"})
	if err == nil || res.Fault != "uncaught fault" {
		t.Fatalf("result %+v, err %v", res, err)
	}
}

func TestWatchdogKillsSilentChild(t *testing.T) {
	s := newSession(t, Config{Timeout: 200 * time.Millisecond})
	res, err := s.Execute(context.Background(), Invocation{Entry: "hang"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != TimedOut || res.Stdout != "partial\n" {
		t.Fatalf("result = %+v", res)
	}
	if s.State() != TimedOut || s.LastFailure() == nil {
		t.Fatalf("state %s", s.State())
	}

	res, err = s.Execute(context.Background(), Invocation{Entry: "echo", Args: []string{"next"}})
	if err != nil || res.Outcome != Completed || res.Launch != 2 {
		t.Fatalf("after timeout: %+v, %v", res, err)
	}
}

func TestTimeoutAfterCrashIsChildError(t *testing.T) {
	t.Setenv("CRASH_MARKER", filepath.Join(t.TempDir(), "crashed"))
	s := newSession(t, Config{Timeout: 300 * time.Millisecond})
	res, err := s.Execute(context.Background(), Invocation{Entry: "crashthenhang"})
	var cerr *ChildError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ChildError", err)
	}
	if res == nil || res.Outcome != TimedOut || res.Stdout != "partial\n" {
		t.Fatalf("retry result = %+v", res)
	}
	if res.Previous == nil || res.Previous.Outcome != Crashed {
		t.Fatalf("previous attempt = %+v", res.Previous)
	}
	if cerr.Partial != res {
		t.Fatal("ChildError does not carry the retry result")
	}
}

func TestRunLimitStopsChattyChild(t *testing.T) {
	s := newSession(t, Config{Timeout: time.Second, RunLimit: 300 * time.Millisecond})
	res, err := s.Execute(context.Background(), Invocation{Entry: "chatty"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != TimedOut || !strings.HasPrefix(res.Stdout, "tick\n") {
		t.Fatalf("result outcome %s, stdout %q", res.Outcome, res.Stdout)
	}
}

func TestLoadFailure(t *testing.T) {
	s := newSession(t, Config{})
	err := s.Load(context.Background(), compiler.Artifact{Name: "bad"})
	var lerr *LoadError
	if !errors.As(err, &lerr) || lerr.Message != "bad artifact" {
		t.Fatalf("error = %v", err)
	}
	if s.State() != Crashed {
		t.Fatalf("state = %s", s.State())
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := newSession(t, Config{})
	if _, err := s.Execute(context.Background(), Invocation{Entry: "echo"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Execute(context.Background(), Invocation{Entry: "echo"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Execute after Shutdown = %v", err)
	}
	if err := s.Load(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Load after Shutdown = %v", err)
	}
}

func TestLaunchFailure(t *testing.T) {
	_, err := Start(context.Background(), Config{Command: []string{filepath.Join(t.TempDir(), "missing")}})
	if !errors.Is(err, failure.Target(failure.ChildProcessFailure)) {
		t.Fatalf("error = %v", err)
	}
}
