package diag

type dedupKey struct {
	code     Code
	sev      Severity
	file     string
	line     uint32
	colStart uint32
	colEnd   uint32
	msg      string
}

// DedupReporter wraps another Reporter and suppresses duplicate problems
// with the same code, severity, position and message.
type DedupReporter struct {
	next Reporter
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique problems to next.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(p Problem) {
	if r == nil {
		return
	}
	key := dedupKey{
		code:     p.Code,
		sev:      p.Severity,
		file:     p.File,
		line:     p.Line,
		colStart: p.ColumnStart,
		colEnd:   p.ColumnEnd,
		msg:      p.Message,
	}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(p)
	}
}
