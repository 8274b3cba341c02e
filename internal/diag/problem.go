package diag

import "fmt"

// Problem is one compiler diagnostic as the harness sees it. Columns are
// 1-based, inclusive character offsets into the source line.
type Problem struct {
	Severity    Severity
	File        string // originating file, slash-separated
	Line        uint32 // 1-based; 0 when the problem has no position
	ColumnStart uint32
	ColumnEnd   uint32
	Message     string
	Code        Code
}

// IsError reports whether the problem fails a compilation.
func (p Problem) IsError() bool {
	return p.Severity >= SevError
}

// String renders a compact single-line form, file:line:col: SEV message.
func (p Problem) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s", p.File, p.Line, p.ColumnStart, p.Severity, p.Message)
}
