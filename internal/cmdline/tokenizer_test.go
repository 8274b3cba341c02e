package cmdline

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"difftest/internal/failure"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		line string
		want []string
	}{
		{"empty", "", nil},
		{"blank", " \t\n ", nil},
		{"plain", "-d none X.java", []string{"-d", "none", "X.java"}},
		{"runs of whitespace", "  a \t\tb  ", []string{"a", "b"}},
		{"quoted classpath joined", `-cp "a folder";"b folder" X.java`, []string{"-cp", "a folder;b folder", "X.java"}},
		{"bare then quoted", `d:/jars/rt.jar;"d:/tmp A"`, []string{"d:/jars/rt.jar;d:/tmp A"}},
		{"quoted then bare", `"d:/tmp A/"A.java`, []string{"d:/tmp A/A.java"}},
		{"quoted then separator", `xxx "aaa bbb";ccc yyy`, []string{"xxx", "aaa bbb;ccc", "yyy"}},
		{"separator inside quotes", `xxx "aaa bbb;ccc" yyy`, []string{"xxx", "aaa bbb;ccc", "yyy"}},
		{"glued on both sides", `xxx/"aaa bbb";"ccc" yyy`, []string{"xxx/aaa bbb;ccc", "yyy"}},
		{"empty quotes", `a "" b`, []string{"a", "", "b"}},
		{"backslashes kept", `C:\jdk\lib "C:\Program Files\x"`, []string{`C:\jdk\lib`, `C:\Program Files\x`}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Tokenize(c.line)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", c.line, err)
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("Tokenize(%q) mismatch (-want,+got):\n%s", c.line, diff)
			}
		})
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	_, err := Tokenize(`-cp "lib folder X.java`)
	if err == nil {
		t.Fatal("expected error for unterminated quote")
	}
	if !errors.Is(err, ErrUnterminatedQuote) {
		t.Fatalf("error %v does not wrap ErrUnterminatedQuote", err)
	}
	if !errors.Is(err, failure.Target(failure.MalformedInput)) {
		t.Fatalf("error %v is not MalformedInput", err)
	}
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Offset != 4 {
		t.Fatalf("offset = %+v, want 4", fe)
	}
}

func TestSplitPathListKeepsQuotedSeparators(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{`"a folder";"b folder"`, []string{"a folder", "b folder"}},
		{`d:/jars/rt.jar;"d:/tmp A"`, []string{"d:/jars/rt.jar", "d:/tmp A"}},
		{`"x;y";z`, []string{"x;y", "z"}},
		{`a;;b;`, []string{"a", "b"}},
	}
	for _, c := range cases {
		toks, err := Default.Scan(c.line)
		if err != nil {
			t.Fatalf("Scan(%q): %v", c.line, err)
		}
		if len(toks) != 1 {
			t.Fatalf("Scan(%q) produced %d tokens", c.line, len(toks))
		}
		if diff := cmp.Diff(c.want, toks[0].SplitPathList()); diff != "" {
			t.Errorf("SplitPathList(%q) (-want,+got):\n%s", c.line, diff)
		}
	}
}

func TestCustomConvention(t *testing.T) {
	tk, err := New('\'', ':')
	if err != nil {
		t.Fatal(err)
	}
	toks, err := tk.Scan(`-cp '/opt/my lib':/usr/lib X "y"`)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(toks))
	for i, tok := range toks {
		got[i] = tok.String()
	}
	want := []string{"-cp", "/opt/my lib:/usr/lib", "X", `"y"`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want,+got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/opt/my lib", "/usr/lib"}, toks[1].SplitPathList()); diff != "" {
		t.Fatalf("path list (-want,+got):\n%s", diff)
	}
	if toks[2].Offset != 27 {
		t.Fatalf("offset of X = %d, want 27", toks[2].Offset)
	}
}

func TestNewRejectsBadConvention(t *testing.T) {
	if _, err := New(';', ';'); err == nil {
		t.Fatal("same quote and separator accepted")
	}
	if _, err := New(' ', ';'); err == nil {
		t.Fatal("whitespace quote accepted")
	}
}

func TestSplitPathList(t *testing.T) {
	got := SplitPathList("a;b;;c", ';')
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("(-want,+got):\n%s", diff)
	}
}
