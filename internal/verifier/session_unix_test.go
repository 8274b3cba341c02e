//go:build unix

package verifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestTimeoutKillsGrandchildren(t *testing.T) {
	pidfile := filepath.Join(t.TempDir(), "pid")
	t.Setenv("SPAWN_PIDFILE", pidfile)
	s := newSession(t, Config{Timeout: 300 * time.Millisecond})
	res, err := s.Execute(context.Background(), Invocation{Entry: "spawn"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != TimedOut {
		t.Fatalf("result = %+v", res)
	}

	data, err := os.ReadFile(pidfile)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	// the killed sleeper is a zombie of the dead child until init reaps it
	deadline := time.Now().Add(3 * time.Second)
	for {
		err := syscall.Kill(pid, 0)
		if errors.Is(err, syscall.ESRCH) || zombie(pid) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("grandchild %d still running: %v", pid, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// zombie reports whether pid has exited but not been reaped. Without /proc it
// reports false and the caller keeps waiting for ESRCH.
func zombie(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// the state field follows the parenthesized command name
	i := strings.LastIndexByte(string(stat), ')')
	return i >= 0 && i+2 < len(stat) && stat[i+2] == 'Z'
}
