//go:build !unix

package verifier

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op; kill reaches only the child itself.
func setProcessGroup(*exec.Cmd) {}

func killGroup(p *os.Process) error {
	return p.Kill()
}
