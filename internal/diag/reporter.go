package diag

// Reporter receives problems from the compiler as they are found.
type Reporter interface {
	Report(p Problem)
}

// BagReporter adds every problem to Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(p Problem) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(p)
}

// FilterReporter drops problems the compile options switched off.
type FilterReporter struct {
	Next Reporter
	// NoWarn drops every warning.
	NoWarn bool
	// NoDeprecation drops warnings in the deprecation group.
	NoDeprecation bool
}

func (r FilterReporter) Report(p Problem) {
	if r.Next == nil {
		return
	}
	if p.Severity == SevWarning {
		if r.NoWarn || (r.NoDeprecation && p.Code.IsDeprecation()) {
			return
		}
	}
	r.Next.Report(p)
}

// ReportError is a shortcut for SevError problems.
func ReportError(r Reporter, code Code, file string, line, colStart, colEnd uint32, msg string) {
	r.Report(Problem{Severity: SevError, Code: code, File: file, Line: line, ColumnStart: colStart, ColumnEnd: colEnd, Message: msg})
}

// ReportWarning is a shortcut for SevWarning problems.
func ReportWarning(r Reporter, code Code, file string, line, colStart, colEnd uint32, msg string) {
	r.Report(Problem{Severity: SevWarning, Code: code, File: file, Line: line, ColumnStart: colStart, ColumnEnd: colEnd, Message: msg})
}
