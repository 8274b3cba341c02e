package suite

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/txtar"

	"difftest/internal/cmdline"
	"difftest/internal/errlist"
	"difftest/internal/failure"
	"difftest/internal/nameenv"
	"difftest/internal/source"
)

// FixtureExt is the extension of fixture archives.
const FixtureExt = ".txtar"

// Kind selects what a fixture checks.
type Kind string

const (
	// Conform fixtures must compile without errors; the program's output is
	// compared when a run directive is present.
	Conform Kind = "conform"
	// Negative fixtures compare the problem log only.
	Negative Kind = "negative"
)

// Expected baseline file names inside a fixture.
const (
	ExpectedLog = "expected.log"
	ExpectedOut = "expected.out"
	ExpectedErr = "expected.err"
	ExpectedDis = "expected.dis"
)

// Fixture is a parsed fixture archive. The comment section holds one
// directive per line:
//
//	compile: -d none p/A.sh      (repeatable, one pass each)
//	run: p.A arg1 "arg 2"
//	vmflags: -Dmode=fast
//	disasm: p.A
//	kind: conform | negative
//
// Lines starting with '#' are comments. Archive files named expected.* are
// baselines; every other file is an in-memory source.
type Fixture struct {
	Name     string
	Kind     Kind
	Compile  []string
	Entry    string
	Args     []string
	VMFlags  []string
	Disasm   string
	Sources  []nameenv.Source
	Expected map[string]string
}

// ParseFixture parses archive data. Baselines and sources are normalized the
// same way source files are: BOM dropped, CRLF folded, NFC.
func ParseFixture(name string, data []byte, tk cmdline.Tokenizer) (*Fixture, error) {
	ar := txtar.Parse(data)
	f := &Fixture{Name: name, Expected: make(map[string]string)}

	if err := f.parseDirectives(ar.Comment, tk); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ar.Files))
	for _, file := range ar.Files {
		if seen[file.Name] {
			return nil, malformedFixture(name, "duplicate file %s", file.Name)
		}
		seen[file.Name] = true
		text, _ := source.Normalize(file.Data)
		if strings.HasPrefix(file.Name, "expected.") {
			f.Expected[file.Name] = string(text)
			continue
		}
		f.Sources = append(f.Sources, nameenv.Source{Path: file.Name, Text: string(text)})
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func malformedFixture(name, format string, args ...any) error {
	return failure.Newf(failure.MalformedInput, "fixture %s: %s", name, fmt.Sprintf(format, args...))
}

func (f *Fixture) parseDirectives(comment []byte, tk cmdline.Tokenizer) error {
	sc := bufio.NewScanner(strings.NewReader(string(comment)))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return malformedFixture(f.Name, "line %d: expected \"directive: value\"", n)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "compile":
			f.Compile = append(f.Compile, value)
		case "run":
			if f.Entry != "" {
				return malformedFixture(f.Name, "line %d: more than one run directive", n)
			}
			toks, err := tk.Tokenize(value)
			if err != nil {
				return malformedFixture(f.Name, "line %d: run: %v", n, err)
			}
			if len(toks) == 0 {
				return malformedFixture(f.Name, "line %d: run needs an entry point", n)
			}
			f.Entry, f.Args = toks[0], toks[1:]
		case "vmflags":
			toks, err := tk.Tokenize(value)
			if err != nil {
				return malformedFixture(f.Name, "line %d: vmflags: %v", n, err)
			}
			f.VMFlags = append(f.VMFlags, toks...)
		case "disasm":
			if f.Disasm != "" {
				return malformedFixture(f.Name, "line %d: more than one disasm directive", n)
			}
			f.Disasm = value
		case "kind":
			switch k := Kind(value); k {
			case Conform, Negative:
				f.Kind = k
			default:
				return malformedFixture(f.Name, "line %d: unknown kind %q", n, value)
			}
		default:
			return malformedFixture(f.Name, "line %d: unknown directive %q", n, key)
		}
	}
	return sc.Err()
}

func (f *Fixture) validate() error {
	if len(f.Compile) == 0 {
		return malformedFixture(f.Name, "no compile directive")
	}
	if f.Kind == "" {
		f.Kind = Negative
		if f.Entry != "" {
			f.Kind = Conform
		}
	}
	has := func(name string) bool { _, ok := f.Expected[name]; return ok }
	switch f.Kind {
	case Negative:
		if f.Entry != "" {
			return malformedFixture(f.Name, "negative fixtures cannot run")
		}
		if !has(ExpectedLog) {
			return malformedFixture(f.Name, "negative fixture without %s", ExpectedLog)
		}
	case Conform:
		if f.Entry != "" && !has(ExpectedOut) {
			return malformedFixture(f.Name, "run directive without %s", ExpectedOut)
		}
	}
	if f.Disasm != "" && !has(ExpectedDis) {
		return malformedFixture(f.Name, "disasm directive without %s", ExpectedDis)
	}
	if len(f.VMFlags) > 0 && f.Entry == "" {
		return malformedFixture(f.Name, "vmflags without a run directive")
	}
	return nil
}

// Test turns the fixture into a suite test.
func (f *Fixture) Test() *Test {
	return &Test{Name: f.Name, Body: f.run}
}

func (f *Fixture) run(c *Context) error {
	for _, s := range f.Sources {
		c.AddSource(s.Path, s.Text)
	}
	for _, line := range f.Compile {
		if _, err := c.Compile(line); err != nil {
			return err
		}
	}

	var errs errlist.List
	if f.Kind == Conform {
		if err := c.ExpectNoErrors(); err != nil {
			return err
		}
	}
	if want, ok := f.Expected[ExpectedLog]; ok {
		errs = errs.Append(c.ExpectLog(want))
	}
	if f.Disasm != "" {
		errs = errs.Append(c.ExpectDisassembly(f.Disasm, f.Expected[ExpectedDis]))
	}
	if f.Entry != "" {
		if _, err := c.Run(f.Entry, f.Args, f.VMFlags); err != nil {
			return errs.Append(err).ErrOrNil()
		}
		errs = errs.Append(c.ExpectOutput(f.Expected[ExpectedOut], f.Expected[ExpectedErr]))
	}
	return errs.ErrOrNil()
}

// LoadFixture reads and parses one archive. The fixture is named after the
// file without its extension.
func LoadFixture(path string, tk cmdline.Tokenizer) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), FixtureExt)
	return ParseFixture(name, data, tk)
}

// Discover loads every fixture under dir into a tree that mirrors the
// directories, in lexical order. Directories without fixtures are left out;
// so are hidden ones.
func Discover(dir string, tk cmdline.Tokenizer) (*Group, error) {
	g, err := discover(dir, filepath.Base(dir), tk)
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = &Group{Name: filepath.Base(dir)}
	}
	return g, nil
}

func discover(dir, name string, tk cmdline.Tokenizer) (*Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	g := &Group{Name: name}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		switch {
		case strings.HasPrefix(e.Name(), "."):
			continue
		case e.IsDir():
			sub, err := discover(p, e.Name(), tk)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				g.Add(sub)
			}
		case filepath.Ext(e.Name()) == FixtureExt:
			f, err := LoadFixture(p, tk)
			if err != nil {
				return nil, err
			}
			g.Add(f.Test())
		}
	}
	if len(g.Children) == 0 {
		return nil, nil
	}
	return g, nil
}
