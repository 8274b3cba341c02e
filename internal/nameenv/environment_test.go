package nameenv

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"difftest/internal/failure"
)

// fakeLookup records calls and answers from a fixed table.
type fakeLookup struct {
	types    map[string]string
	packages map[string]bool
	finds    []string
	cleanups int
	err      error
}

func (f *fakeLookup) FindType(name string) Answer {
	f.finds = append(f.finds, name)
	if text, ok := f.types[name]; ok {
		return BinaryAnswer(&Binary{Name: name, Origin: "fake", Bytes: []byte(text)})
	}
	return Answer{}
}

func (f *fakeLookup) IsPackage(name string) bool { return f.packages[name] }

func (f *fakeLookup) Cleanup() error {
	f.cleanups++
	return f.err
}

func TestNewUnit(t *testing.T) {
	cases := []struct {
		path      string
		wantPkg   string
		wantName  string
		wantError bool
	}{
		{path: "p/q/X.sh", wantPkg: "p.q", wantName: "X"},
		{path: "X.sh", wantPkg: "", wantName: "X"},
		{path: "./p/Y.java", wantPkg: "p", wantName: "Y"},
		{path: "p/X", wantError: true},
		{path: "p/.sh", wantError: true},
		{path: "p.q/X.sh", wantError: true},
		{path: "p/X.y.sh", wantError: true},
		{path: "/abs/X.sh", wantError: true},
		{path: "../X.sh", wantError: true},
		{path: "", wantError: true},
	}
	for _, c := range cases {
		u, err := NewUnit(c.path, "")
		if c.wantError {
			if err == nil {
				t.Errorf("NewUnit(%q) = %+v, want error", c.path, u)
			} else if !errors.Is(err, failure.Target(failure.MalformedInput)) {
				t.Errorf("NewUnit(%q) error %v is not MalformedInput", c.path, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewUnit(%q) error: %v", c.path, err)
			continue
		}
		if u.Package != c.wantPkg || u.Name != c.wantName {
			t.Errorf("NewUnit(%q) = %s/%s, want %s/%s", c.path, u.Package, u.Name, c.wantPkg, c.wantName)
		}
	}
}

func TestMemoryShadowsLibraries(t *testing.T) {
	first := &fakeLookup{types: map[string]string{"p.X": "from first", "q.Y": "first Y"}}
	second := &fakeLookup{types: map[string]string{"q.Y": "second Y", "r.Z": "second Z"}}
	env, err := New([]Source{{Path: "p/X.sh", Text: "in memory"}}, first, second)
	if err != nil {
		t.Fatal(err)
	}

	a := env.FindType("p.X")
	if a.Kind != SourceKind || a.Unit.Text != "in memory" {
		t.Fatalf("FindType(p.X) = %+v, want the in-memory unit", a)
	}
	if len(first.finds) != 0 {
		t.Fatalf("library consulted for an in-memory name: %v", first.finds)
	}

	if got := env.FindType("q.Y").Text(); got != "first Y" {
		t.Fatalf("FindType(q.Y) = %q, want the first library's answer", got)
	}
	if got := env.FindType("r.Z").Text(); got != "second Z" {
		t.Fatalf("FindType(r.Z) = %q", got)
	}
	if a := env.FindType("nope.W"); a.Found() {
		t.Fatalf("FindType(nope.W) = %+v, want NotFound", a)
	}
	if diff := cmp.Diff([]string{"q.Y", "r.Z", "nope.W"}, first.finds); diff != "" {
		t.Fatalf("first library probes (-want,+got):\n%s", diff)
	}
}

func TestIsPackage(t *testing.T) {
	lib := &fakeLookup{packages: map[string]bool{"lib.pkg": true}}
	env, err := New([]Source{{Path: "a/b/c/X.sh"}}, lib)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "a.b", "a.b.c", "lib.pkg"} {
		if !env.IsPackage(name) {
			t.Errorf("IsPackage(%q) = false", name)
		}
	}
	for _, name := range []string{"", "a.b.c.X", "z"} {
		if env.IsPackage(name) {
			t.Errorf("IsPackage(%q) = true", name)
		}
	}
}

func TestDuplicateUnitRejected(t *testing.T) {
	_, err := New([]Source{{Path: "p/X.sh"}, {Path: "p/X.java"}})
	if !errors.Is(err, failure.Target(failure.MalformedInput)) {
		t.Fatalf("New with duplicate key error = %v, want MalformedInput", err)
	}
}

func TestCleanup(t *testing.T) {
	lib := &fakeLookup{types: map[string]string{"lib.L": "x"}}
	env, err := New([]Source{{Path: "p/X.sh", Text: "mem"}}, lib)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if err := env.Cleanup(); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
	if lib.cleanups != 2 {
		t.Fatalf("library cleanups = %d, want 2", lib.cleanups)
	}
	if a := env.FindType("p.X"); a.Found() {
		t.Fatalf("FindType after Cleanup = %+v, want NotFound", a)
	}
	if env.IsPackage("p") {
		t.Fatal("package survived Cleanup")
	}
	if len(env.Units()) != 0 {
		t.Fatal("units survived Cleanup")
	}
	if _, ok := env.Files().Line("p/X.sh", 1); ok {
		t.Fatal("source text survived Cleanup")
	}

	lib.err = errors.New("close failed")
	if err := env.Cleanup(); err == nil {
		t.Fatal("library cleanup error swallowed")
	}
}

func TestUnitsAndFiles(t *testing.T) {
	env, err := New([]Source{{Path: "p/B.sh", Text: "b\n"}, {Path: "p/A.sh", Text: "a1\na2\n"}})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, u := range env.Units() {
		names = append(names, u.QualifiedName())
	}
	if diff := cmp.Diff([]string{"p.B", "p.A"}, names); diff != "" {
		t.Fatalf("Units order (-want,+got):\n%s", diff)
	}
	line, ok := env.Files().Line("p/A.sh", 2)
	if !ok || line != "a2" {
		t.Fatalf("Files().Line = %q, %v", line, ok)
	}
	if u, ok := env.Unit("./p/B.sh"); !ok || u.Name != "B" {
		t.Fatalf("Unit(./p/B.sh) = %+v, %v", u, ok)
	}
}

func TestEmptySegmentsNeverResolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "p"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"X.sh", filepath.Join("p", ".sh")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("on disk"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fake := &fakeLookup{types: map[string]string{".X": "x", "p.": "p"}, packages: map[string]bool{"p.": true}}
	env, err := New([]Source{{Path: "X.sh", Text: "mem"}}, DirLibrary{Root: dir, Ext: ".sh"}, fake)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Cleanup()

	for _, name := range []string{".X", "p.", "p..X", "."} {
		if a := env.FindType(name); a.Found() {
			t.Errorf("FindType(%q) = %+v, want NotFound", name, a)
		}
		if env.IsPackage(name) {
			t.Errorf("IsPackage(%q) = true", name)
		}
	}
	if len(fake.finds) != 0 {
		t.Fatalf("libraries asked for %q", fake.finds)
	}
	if got := env.FindType("X").Text(); got != "mem" {
		t.Fatalf("FindType(X) = %q", got)
	}
}

func TestDirAndArchiveLibraries(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "classes")
	if err := os.MkdirAll(filepath.Join(dir, "lib", "util"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lib", "util", "Strings.sh"), []byte("dir version"), 0o644); err != nil {
		t.Fatal(err)
	}

	jar := filepath.Join(root, "rt.jar")
	writeZip(t, jar, map[string]string{
		"lib/util/Strings.sh": "jar version",
		"rt/Sys.sh":           "sys",
	})

	libs, err := Classpath([]string{dir, filepath.Join(root, "missing"), jar}, ".sh")
	if err != nil {
		t.Fatal(err)
	}
	if len(libs) != 2 {
		t.Fatalf("Classpath built %d libraries, want 2", len(libs))
	}
	env, err := New(nil, libs...)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Cleanup()

	if got := env.FindType("lib.util.Strings").Text(); got != "dir version" {
		t.Fatalf("lib.util.Strings = %q, want the directory entry first", got)
	}
	a := env.FindType("rt.Sys")
	if a.Kind != BinaryKind || a.Binary.Origin != filepath.ToSlash(jar)+"!rt/Sys.sh" {
		t.Fatalf("rt.Sys = %+v", a)
	}
	if !env.IsPackage("rt") || !env.IsPackage("lib.util") {
		t.Fatal("archive or directory packages not visible")
	}

	archive := libs[1].(*ArchiveLibrary)
	if err := env.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if archive.reader != nil {
		t.Fatal("archive still open after Cleanup")
	}
	if got := archive.FindType("rt.Sys").Text(); got != "sys" {
		t.Fatalf("archive not reopened after Cleanup: %q", got)
	}
	if err := archive.Cleanup(); err != nil {
		t.Fatal(err)
	}
}

func TestArtifactLibrary(t *testing.T) {
	lib := NewArtifactLibrary("pass 1")
	lib.Add("p.q.X", []byte("v1"))
	lib.Add("p.q.X", []byte("v2"))
	lib.Add("p.A", []byte("a"))

	if got := lib.FindType("p.q.X").Text(); got != "v2" {
		t.Fatalf("FindType = %q, want latest", got)
	}
	if !lib.IsPackage("p") || !lib.IsPackage("p.q") {
		t.Fatal("packages missing")
	}
	if diff := cmp.Diff([]string{"p.A", "p.q.X"}, lib.Names()); diff != "" {
		t.Fatalf("Names (-want,+got):\n%s", diff)
	}
}

func writeZip(t *testing.T, name string, files map[string]string) {
	t.Helper()
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for n, body := range files {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}
