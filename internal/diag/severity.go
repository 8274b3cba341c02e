// Package diag is the problem model shared by the compiler adapters and the
// log formatter.
package diag

// Severity defines the importance of a problem.
type Severity uint8

const (
	// SevInfo is for informational problems; they never fail a test.
	SevInfo Severity = iota
	// SevWarning is for warnings.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}
