package suite

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"difftest/internal/failure"
)

// MismatchError is a failed expectation. Want and Got hold the complete
// texts; Error renders a line diff of them.
type MismatchError struct {
	What string
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch (-want +got):\n%s", e.What, cmp.Diff(e.Want, e.Got))
}

func (e *MismatchError) Unwrap() error {
	return failure.New(failure.ComparisonMismatch, -1, e.What)
}

// Detail prints both texts in full, for reports that want them verbatim.
func (e *MismatchError) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- expected %s ---\n%s", e.What, e.Want)
	if e.Want != "" && !strings.HasSuffix(e.Want, "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "--- actual %s ---\n%s", e.What, e.Got)
	if e.Got != "" && !strings.HasSuffix(e.Got, "\n") {
		b.WriteByte('\n')
	}
	return b.String()
}

func expect(what, want, got string) error {
	if want == got {
		return nil
	}
	return &MismatchError{What: what, Want: want, Got: got}
}
