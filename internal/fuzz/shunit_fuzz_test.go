package fuzztests

import (
	"testing"

	"difftest/internal/shunit"
)

func FuzzParseUnit(f *testing.F) {
	unitSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		if len(input) > maxSeedBytes {
			input = input[:maxSeedBytes]
		}
		u, err := shunit.Parse("p.Fuzz", string(input))
		if err != nil {
			return
		}
		for _, r := range u.Refs() {
			if r.Type == "" {
				t.Fatalf("ref without a type: %+v", r)
			}
		}
		u.StripComments()
		if _, err := u.Print(); err != nil {
			t.Fatalf("Print: %v", err)
		}
	})
}
