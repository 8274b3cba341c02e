package diag

import (
	"fmt"
	"sort"
)

// Bag collects problems with an optional cap.
type Bag struct {
	items []Problem
	max   int
}

// NewBag creates a Bag holding at most max problems; max <= 0 means unlimited.
func NewBag(max int) *Bag {
	capHint := max
	if capHint <= 0 || capHint > 64 {
		capHint = 16
	}
	return &Bag{
		items: make([]Problem, 0, capHint),
		max:   max,
	}
}

// Add appends p unless the bag is full. It reports whether p was kept.
func (b *Bag) Add(p Problem) bool {
	if b.max > 0 && len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, p)
	return true
}

// HasErrors reports whether any problem is at least an error.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any problem is at least a warning.
func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the problems. Callers must not modify the slice.
func (b *Bag) Items() []Problem {
	return b.items
}

// Merge appends every problem from other, growing the cap if needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	if b.max > 0 && len(b.items)+len(other.items) > b.max {
		b.max = len(b.items) + len(other.items)
	}
	b.items = append(b.items, other.items...)
}

// Sort orders problems by file, line, column, severity (desc), code.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		pi, pj := b.items[i], b.items[j]
		if pi.File != pj.File {
			return pi.File < pj.File
		}
		if pi.Line != pj.Line {
			return pi.Line < pj.Line
		}
		if pi.ColumnStart != pj.ColumnStart {
			return pi.ColumnStart < pj.ColumnStart
		}
		if pi.Severity != pj.Severity {
			return pi.Severity > pj.Severity
		}
		return pi.Code < pj.Code
	})
}

// Dedup drops repeated problems with the same code, position and message.
func (b *Bag) Dedup() {
	seen := make(map[string]bool)
	out := make([]Problem, 0, len(b.items))
	for _, p := range b.items {
		key := fmt.Sprintf("%d:%s:%d:%d:%d:%s", p.Code, p.File, p.Line, p.ColumnStart, p.ColumnEnd, p.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	b.items = out
}
