package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"difftest/internal/cmdline"
	"difftest/internal/compiler"
	"difftest/internal/failure"
	"difftest/internal/nameenv"
	"difftest/internal/shc"
	"difftest/internal/shrt"
	"difftest/internal/verifier"
	"difftest/internal/verifier/child"
)

const helperEnv = "DIFFTEST_SUITE_HELPER"

// TestMain doubles as the verifier child when re-executed with helperEnv.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		if err := child.Serve(context.Background(), os.Stdin, os.Stdout, shrt.New()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dir:          t.TempDir(),
		Tokenizer:    cmdline.Default,
		Ext:          shc.Ext,
		Compiler:     shc.New(),
		Disassembler: shc.Disassembler{},
		Verifier: verifier.Config{
			Command: []string{os.Args[0]},
			Env:     []string{helperEnv + "=1"},
		},
	}
}

const toolSource = `greet() { echo "hello $1"; }

# @deprecated
old() { echo legacy; }
`

func TestWalkVisitsLeavesInOrder(t *testing.T) {
	root := (&Group{Name: "all"}).Add(
		&Test{Name: "a"},
		(&Group{Name: "neg"}).Add(&Test{Name: "b"}, &Test{Name: "c"}),
		&Group{Name: "empty"},
		&Test{Name: "d"},
	)
	var got []string
	err := Walk(root, func(path string, _ *Test) error {
		got = append(got, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"all/a", "all/neg/b", "all/neg/c", "all/d"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paths (-want,+got):\n%s", diff)
	}
	if Count(root) != 4 {
		t.Fatalf("Count = %d", Count(root))
	}

	stop := errors.New("stop")
	calls := 0
	err = Walk(root, func(string, *Test) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("Walk did not stop: %v after %d calls", err, calls)
	}
}

func TestDeprecatedMemberEndToEnd(t *testing.T) {
	body := func(c *Context) error {
		c.AddSource("p/Tool.sh", toolSource)
		c.AddSource("app/Main.sh", "p.Tool.old\np.Tool.greet world\n")

		// the second pass sees p.Tool through the first pass's artifacts
		if _, err := c.Compile("-d bin p/Tool.sh"); err != nil {
			return err
		}
		if _, err := c.Compile("-d bin app/Main.sh"); err != nil {
			return err
		}
		err := c.ExpectLog("----------\n" +
			"1. WARNING in app/Main.sh (at line 1)\n" +
			"\tp.Tool.old\n" +
			"\t^^^^^^^^^^\n" +
			"The function old from the type p.Tool is deprecated\n" +
			"----------\n")
		if err != nil {
			return err
		}
		if _, err := c.Run("app.Main", nil, nil); err != nil {
			return err
		}
		return c.ExpectOutput("legacy\nhello world\n", "")
	}

	var outcomes []Outcome
	err := Run(context.Background(), testConfig(t), &Test{Name: "deprecated", Body: body}, func(o Outcome) {
		outcomes = append(outcomes, o)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || !outcomes[0].Passed() {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	var steps []string
	for _, s := range outcomes[0].Timings.Steps {
		steps = append(steps, s.Name)
	}
	if diff := cmp.Diff([]string{"compile", "compile", "load", "execute"}, steps); diff != "" {
		t.Fatalf("timed steps (-want,+got):\n%s", diff)
	}
}

// kindRecorder notes how one type resolves at the start of every pass.
type kindRecorder struct {
	compiler.Compiler
	name  string
	kinds []nameenv.Kind
}

func (k *kindRecorder) Compile(ctx context.Context, env *nameenv.Environment, opts compiler.Options) (*compiler.Result, error) {
	k.kinds = append(k.kinds, env.FindType(k.name).Kind)
	return k.Compiler.Compile(ctx, env, opts)
}

func TestLaterPassesResolveArtifacts(t *testing.T) {
	rec := &kindRecorder{Compiler: shc.New(), name: "p.Tool"}
	cfg := testConfig(t)
	cfg.Compiler = rec

	var reemitted bool
	body := func(c *Context) error {
		c.AddSource("p/Tool.sh", toolSource)
		c.AddSource("app/Main.sh", "p.Tool.greet you\n")
		if _, err := c.Compile("p/Tool.sh"); err != nil {
			return err
		}
		if _, err := c.Compile("app/Main.sh"); err != nil {
			return err
		}
		// no file list: only units without artifacts are compiled
		res, err := c.Compile("")
		if err != nil {
			return err
		}
		_, reemitted = res.Artifact("p.Tool")
		// naming the file again compiles it from source
		if _, err := c.Compile("p/Tool.sh"); err != nil {
			return err
		}
		return c.ExpectNoErrors()
	}
	if err := Run(context.Background(), cfg, &Test{Name: "passes", Body: body}, nil); err != nil {
		t.Fatal(err)
	}
	want := []nameenv.Kind{nameenv.SourceKind, nameenv.BinaryKind, nameenv.BinaryKind, nameenv.SourceKind}
	if diff := cmp.Diff(want, rec.kinds); diff != "" {
		t.Fatalf("p.Tool kinds per pass (-want,+got):\n%s", diff)
	}
	if reemitted {
		t.Fatal("a pass without files compiled p.Tool again")
	}
}

func TestExpectationsReportMismatches(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	o := s.RunTest(ctx, "mismatch", &Test{Name: "mismatch", Body: func(c *Context) error {
		c.AddSource("m/Say.sh", "echo one\necho two >&2\n")
		if _, err := c.Compile("m/Say.sh"); err != nil {
			return err
		}
		if err := c.ExpectNoErrors(); err != nil {
			return err
		}
		if err := c.ExpectDisassembly("m.Nope", ""); err == nil {
			return errors.New("missing artifact matched")
		}
		if _, err := c.Run("m.Say", nil, nil); err != nil {
			return err
		}
		return c.ExpectOutput("one\n", "three\n")
	}})

	var mm *MismatchError
	if !errors.As(o.Err, &mm) {
		t.Fatalf("error = %v, want *MismatchError", o.Err)
	}
	if mm.What != "stderr" || mm.Want != "three\n" || mm.Got != "two\n" {
		t.Fatalf("mismatch = %+v", mm)
	}
	if !errors.Is(o.Err, failure.Target(failure.ComparisonMismatch)) {
		t.Fatal("mismatch is not a ComparisonMismatch")
	}
	if !strings.Contains(mm.Error(), "-want +got") || !strings.Contains(mm.Detail(), "--- actual stderr ---\ntwo\n") {
		t.Fatalf("rendering:\n%s\n%s", mm.Error(), mm.Detail())
	}

	o = s.RunTest(ctx, "panics", &Test{Name: "panics", Body: func(*Context) error { panic("boom") }})
	if !errors.Is(o.Err, failure.Target(failure.InternalError)) {
		t.Fatalf("panic outcome = %v", o.Err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close = %v", err)
	}
}

func TestSharedClasspath(t *testing.T) {
	cfg := testConfig(t)
	lib := filepath.Join(cfg.Dir, "lib", "p")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(lib, "Tool.sh"), []byte(toolSource), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Classpath = []string{"lib"}

	body := func(c *Context) error {
		c.AddSource("Use.sh", "p.Tool.greet x\np.Tool.shout x\n")
		if _, err := c.Compile("-d none Use.sh"); err != nil {
			return err
		}
		return c.ExpectLog("----------\n" +
			"1. ERROR in Use.sh (at line 2)\n" +
			"\tp.Tool.shout x\n" +
			"\t^^^^^^^^^^^^\n" +
			"The function shout is undefined for the type p.Tool\n" +
			"----------\n")
	}
	if err := Run(context.Background(), cfg, &Test{Name: "cp", Body: body}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRunReportsFailures(t *testing.T) {
	root := (&Group{Name: "g"}).Add(
		&Test{Name: "ok", Body: func(*Context) error { return nil }},
		&Test{Name: "bad", Body: func(c *Context) error { return c.ExpectLog("x") }},
	)
	var failed []string
	err := Run(context.Background(), testConfig(t), root, func(o Outcome) {
		if !o.Passed() {
			failed = append(failed, o.Path)
		}
	})
	if !errors.Is(err, failure.Target(failure.ComparisonMismatch)) {
		t.Fatalf("Run = %v", err)
	}
	if diff := cmp.Diff([]string{"g/bad"}, failed); diff != "" {
		t.Fatalf("failed (-want,+got):\n%s", diff)
	}
}

func TestOpenWithoutCompiler(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	if !errors.Is(err, failure.Target(failure.InternalError)) {
		t.Fatalf("Open = %v", err)
	}
}
