package compiler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"difftest/internal/cmdline"
	"difftest/internal/diag"
	"difftest/internal/failure"
)

func TestParseCommandLine(t *testing.T) {
	cases := []struct {
		line string
		want Options
	}{
		{
			line: `-d none p/X.sh`,
			want: Options{OutDir: "none", Deprecation: true, Files: []string{"p/X.sh"}},
		},
		{
			line: `-cp "lib folder";"x;y.jar" -source 1.8 -g -warn:-deprecation "src dir/A.sh" B.sh`,
			want: Options{
				Classpath: []string{"lib folder", "x;y.jar"},
				Source:    "1.8",
				Debug:     true,
				Files:     []string{"src dir/A.sh", "B.sh"},
			},
		},
		{
			line: `-nowarn -proceedOnError -encoding UTF-8 -target 11 -g:none -classpath a -cp b`,
			want: Options{
				Classpath:      []string{"a", "b"},
				Encoding:       "UTF-8",
				Target:         "11",
				NoWarn:         true,
				ProceedOnError: true,
				Deprecation:    true,
			},
		},
	}
	for _, c := range cases {
		got, err := ParseCommandLine(c.line, cmdline.Default)
		if err != nil {
			t.Fatalf("ParseCommandLine(%q): %v", c.line, err)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("ParseCommandLine(%q) (-want,+got):\n%s", c.line, diff)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{`-d`, `-bogus X.sh`, `-cp "unterminated`} {
		_, err := ParseCommandLine(line, cmdline.Default)
		if !errors.Is(err, failure.Target(failure.MalformedInput)) {
			t.Errorf("ParseCommandLine(%q) error = %v, want MalformedInput", line, err)
		}
	}
}

func TestParseArgsSplitsOnSeparator(t *testing.T) {
	got, err := ParseArgs([]string{"-cp", "/a:/b", "X.sh"}, ':')
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/a", "/b"}, got.Classpath); diff != "" {
		t.Fatalf("classpath (-want,+got):\n%s", diff)
	}
	if !got.EmitArtifacts() {
		t.Fatal("EmitArtifacts = false without -d none")
	}
}

func TestResultHelpers(t *testing.T) {
	r := &Result{
		Problems:  []diag.Problem{{Severity: diag.SevWarning}},
		Artifacts: []Artifact{{Name: "p.X", Bytes: []byte("x")}},
	}
	if r.HasErrors() {
		t.Fatal("warnings counted as errors")
	}
	r.Problems = append(r.Problems, diag.Problem{Severity: diag.SevError})
	if !r.HasErrors() {
		t.Fatal("error not detected")
	}
	if a, ok := r.Artifact("p.X"); !ok || string(a.Bytes) != "x" {
		t.Fatalf("Artifact(p.X) = %+v, %v", a, ok)
	}
	var nilResult *Result
	if nilResult.HasErrors() {
		t.Fatal("nil result has errors")
	}
}
