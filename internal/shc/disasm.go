package shc

import (
	"fmt"
	"strings"

	"difftest/internal/compiler"
	"difftest/internal/failure"
	"difftest/internal/shunit"
)

// Disassembler renders shell artifacts as a summary header followed by the
// canonical code.
type Disassembler struct{}

var _ compiler.Disassembler = Disassembler{}

// Disassemble implements compiler.Disassembler.
func (Disassembler) Disassemble(a compiler.Artifact) (string, error) {
	u, err := shunit.Parse(a.Name, string(a.Bytes))
	if err != nil {
		return "", failure.Wrap(failure.MalformedInput, -1, fmt.Sprintf("artifact %s", a.Name), err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "unit %s\n", u.Name)
	for _, m := range u.Members {
		if m.Deprecated {
			fmt.Fprintf(&sb, "  member %s deprecated\n", m.Name)
		} else {
			fmt.Fprintf(&sb, "  member %s\n", m.Name)
		}
	}
	fmt.Fprintf(&sb, "  main %d statement(s)\n", len(u.Main))
	sb.WriteString("code:\n")
	code, err := u.Print()
	if err != nil {
		return "", err
	}
	sb.Write(code)
	return sb.String(), nil
}
