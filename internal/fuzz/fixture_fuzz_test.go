package fuzztests

import (
	"errors"
	"testing"

	"difftest/internal/cmdline"
	"difftest/internal/failure"
	"difftest/internal/suite"
)

func FuzzParseFixture(f *testing.F) {
	fixtureSeeds(f)
	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > maxSeedBytes {
			data = data[:maxSeedBytes]
		}
		fx, err := suite.ParseFixture("fuzz", data, cmdline.Default)
		if err != nil {
			if !errors.Is(err, failure.Target(failure.MalformedInput)) {
				t.Fatalf("error class: %v", err)
			}
			return
		}
		if len(fx.Compile) == 0 {
			t.Fatal("fixture without compile directives accepted")
		}
		if fx.Kind != suite.Conform && fx.Kind != suite.Negative {
			t.Fatalf("kind = %q", fx.Kind)
		}
	})
}
