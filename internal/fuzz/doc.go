// Package fuzztests houses Go fuzz harnesses for the input-facing parts of
// the harness: command-line tokenizing, fixture archives, shell units and
// the verifier wire protocol. They guard against panics and runaway
// allocation on arbitrary input.
// Rejected input must surface as a MalformedInput failure.
//
// No harness here starts child processes or writes files.
package fuzztests
