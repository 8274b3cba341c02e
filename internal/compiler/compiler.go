// Package compiler declares what the harness needs from the compiler under
// test and from the disassembler that renders expected artifact fixtures.
package compiler

import (
	"context"

	"difftest/internal/diag"
	"difftest/internal/nameenv"
)

// Artifact is one compiled type: its qualified name and opaque bytes.
type Artifact struct {
	Name  string
	Bytes []byte
}

// Result is the outcome of one compilation.
type Result struct {
	Problems  []diag.Problem
	Artifacts []Artifact
}

// HasErrors reports whether any problem is an error.
func (r *Result) HasErrors() bool {
	if r == nil {
		return false
	}
	for _, p := range r.Problems {
		if p.IsError() {
			return true
		}
	}
	return false
}

// Artifact returns the artifact with the given qualified name.
func (r *Result) Artifact(name string) (Artifact, bool) {
	if r == nil {
		return Artifact{}, false
	}
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Compiler compiles the units of env selected by opts.Files (all units when
// empty). Problems are results, not errors; err is reserved for failures of
// the compiler itself.
type Compiler interface {
	Compile(ctx context.Context, env *nameenv.Environment, opts Options) (*Result, error)
}

// Disassembler renders an artifact as canonical text.
type Disassembler interface {
	Disassemble(a Artifact) (string, error)
}
