// Package diagfmt renders compiler problems into the textual problem log
// that expected baselines are written in.
//
// A non-empty log looks like
//
//	----------
//	1. ERROR in p/A.sh (at line 2)
//		p.Missing run
//		^^^^^^^^^
//	p.Missing cannot be resolved to a type
//	----------
//
// Source lines are shown with leading blanks removed; the caret line keeps
// the tabs of the original line so the carets sit under the right columns.
package diagfmt

import (
	"fmt"
	"path"
	"strings"

	"difftest/internal/diag"
)

// Separator opens a log block and closes every entry.
const Separator = "----------"

// NoSource stands in for the source line when it cannot be found.
const NoSource = "<No source>"

// SourceLines resolves a 1-based line of a file. *source.FileSet implements it.
type SourceLines interface {
	Line(path string, line uint32) (string, bool)
}

// Format renders problems in order. An empty list renders as "".
func Format(problems []diag.Problem, src SourceLines, opts Options) string {
	if len(problems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(Separator)
	b.WriteByte('\n')
	for i, p := range problems {
		writeEntry(&b, i+1, p, src, opts)
	}
	return b.String()
}

func writeEntry(b *strings.Builder, n int, p diag.Problem, src SourceLines, opts Options) {
	fmt.Fprintf(b, "%d. %s in %s", n, p.Severity, displayPath(p.File, opts.PathMode))
	if p.Line > 0 {
		fmt.Fprintf(b, " (at line %d)", p.Line)
	}
	b.WriteByte('\n')

	writePointer(b, p, src)

	b.WriteString(p.Message)
	if opts.ShowCategory {
		fmt.Fprintf(b, " [category:%d]", p.Code)
	}
	b.WriteByte('\n')
	b.WriteString(Separator)
	b.WriteByte('\n')
}

// writePointer prints the trimmed source line and the caret underline.
func writePointer(b *strings.Builder, p diag.Problem, src SourceLines) {
	var (
		line string
		ok   bool
	)
	if src != nil && p.Line > 0 {
		line, ok = src.Line(p.File, p.Line)
	}
	if !ok {
		b.WriteByte('\t')
		b.WriteString(NoSource)
		b.WriteByte('\n')
		return
	}

	runes := []rune(strings.TrimRight(line, " \t\r"))
	lead := 0
	for lead < len(runes) && isBlank(runes[lead]) {
		lead++
	}

	b.WriteByte('\t')
	b.WriteString(string(runes[lead:]))
	b.WriteByte('\n')

	start, end := caretRange(p, lead, len(runes))
	b.WriteByte('\t')
	for k := lead; k < start && k < len(runes); k++ {
		if runes[k] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	// columns past the end of the line (problem at end of line)
	for k := len(runes); k < start; k++ {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Repeat("^", end-start+1))
	b.WriteByte('\n')
}

// caretRange converts the 1-based inclusive columns to 0-based rune indexes,
// clamped to the visible part of the line. It always yields at least one caret.
func caretRange(p diag.Problem, lead, width int) (start, end int) {
	start = int(p.ColumnStart) - 1
	if start < lead {
		start = lead
	}
	if start > width {
		start = width
	}
	end = int(p.ColumnEnd) - 1
	if end >= width {
		end = width - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

func displayPath(p string, mode PathMode) string {
	if mode == PathModeBasename {
		return path.Base(p)
	}
	return p
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t'
}
