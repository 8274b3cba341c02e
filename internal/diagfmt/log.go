package diagfmt

import (
	"strings"
	"sync"

	"difftest/internal/diag"
)

// Log accumulates formatted problems across compilations of one session.
// Each Append contributes its own block with its own numbering, which is what
// multi-pass expected logs are written against.
type Log struct {
	mu       sync.Mutex
	opts     Options
	sb       strings.Builder
	problems int
}

// NewLog creates an empty Log.
func NewLog(opts Options) *Log {
	return &Log{opts: opts}
}

// Append formats problems and adds the block to the log. It returns the block.
func (l *Log) Append(problems []diag.Problem, src SourceLines) string {
	block := Format(problems, src, l.opts)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sb.WriteString(block)
	l.problems += len(problems)
	return block
}

// String returns everything appended so far.
func (l *Log) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sb.String()
}

// Problems returns the number of problems appended so far.
func (l *Log) Problems() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.problems
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sb.Reset()
	l.problems = 0
}
