// Package shrt runs compiled shell units inside the verifier child.
//
// Each invocation gets a fresh interpreter with the unit's members defined.
// Dotted commands inside a program are dispatched to other loaded units,
// then to the classpath libraries; anything else runs as a normal command.
package shrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"difftest/internal/nameenv"
	"difftest/internal/shunit"
	"difftest/internal/verifier/child"
	"difftest/internal/verifier/wire"
)

// MaxDepth bounds nested unit calls.
const MaxDepth = 64

// Runtime holds loaded units for the life of the child.
type Runtime struct {
	// Dir is the working directory of programs; empty means the child's.
	Dir string
	// BaseEnv seeds every program environment; nil means os.Environ().
	BaseEnv []string

	mu     sync.Mutex
	loaded map[string]*shunit.Unit
	libs   []nameenv.Lookup
	cache  map[string]*shunit.Unit
}

var _ child.Runtime = (*Runtime)(nil)

// New returns a runtime falling back to libs for types that were not loaded.
func New(libs ...nameenv.Lookup) *Runtime {
	return &Runtime{
		loaded: make(map[string]*shunit.Unit),
		libs:   libs,
		cache:  make(map[string]*shunit.Unit),
	}
}

// Load parses every artifact and makes them callable. Nothing is loaded when
// any artifact is broken. A later load of the same name replaces it.
func (r *Runtime) Load(artifacts []wire.Artifact) error {
	parsed := make([]*shunit.Unit, 0, len(artifacts))
	for _, a := range artifacts {
		u, err := shunit.Parse(a.Name, string(a.Bytes))
		if err != nil {
			return fmt.Errorf("load %s: %w", a.Name, err)
		}
		parsed = append(parsed, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range parsed {
		r.loaded[u.Name] = u
	}
	log.Debugf("shrt: loaded %d unit(s)", len(parsed))
	return nil
}

// Loaded returns the number of loaded units.
func (r *Runtime) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loaded)
}

var errNoType = errors.New("type not found")

func (r *Runtime) resolve(name string) (*shunit.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.loaded[name]; ok {
		return u, nil
	}
	if u, ok := r.cache[name]; ok {
		return u, nil
	}
	for _, lib := range r.libs {
		ans := lib.FindType(name)
		if !ans.Found() {
			continue
		}
		u, err := shunit.Parse(name, ans.Text())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		r.cache[name] = u
		return u, nil
	}
	return nil, errNoType
}

type stdio struct {
	in          io.Reader
	out, errOut io.Writer
}

// Run executes inv. The entry is "p.Type" for the unit's main body or
// "p.Type.member" for one member. Flags of the form -Dname=value become
// environment variables.
func (r *Runtime) Run(ctx context.Context, inv child.Invocation, stdout, stderr io.Writer) (int, error) {
	base := r.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env := append([]string(nil), base...)
	for _, f := range inv.Flags {
		kv, ok := strings.CutPrefix(f, "-D")
		if !ok || kv == "" {
			fmt.Fprintf(stderr, "Unrecognized option: %s\n", f)
			return 1, nil
		}
		if !strings.Contains(kv, "=") {
			kv += "="
		}
		env = append(env, kv)
	}

	typ, member, ok := shunit.ClassifyRef(inv.Entry)
	if !ok {
		typ = inv.Entry
	}
	err := r.invoke(ctx, stdio{out: stdout, errOut: stderr}, expand.ListEnviron(env...), r.Dir, typ, member, inv.Args)
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, errNoType):
		fmt.Fprintf(stderr, "Error: Could not find or load main class %s\n", typ)
		return 1, nil
	case errors.Is(err, errNoMember):
		fmt.Fprintf(stderr, "Error: function %s not found in %s\n", member, typ)
		return 1, nil
	case errors.Is(err, errTooDeep):
		fmt.Fprintf(stderr, "Exception in thread \"main\" StackOverflowError: %s\n", inv.Entry)
		return 1, nil
	}
	if code, ok := interp.IsExitStatus(err); ok {
		return int(code), nil
	}
	return 0, err
}

var (
	errNoMember = errors.New("member not found")
	errTooDeep  = errors.New("call depth exceeded")
)

type depthKey struct{}

func (r *Runtime) invoke(ctx context.Context, sio stdio, env expand.Environ, dir, typ, member string, args []string) error {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= MaxDepth {
		return errTooDeep
	}
	u, err := r.resolve(typ)
	if err != nil {
		return err
	}

	file := &syntax.File{Name: typ, Stmts: u.MemberStmts()}
	if member == "" {
		file.Stmts = append(file.Stmts, u.Main...)
	} else {
		if _, ok := u.Member(member); !ok {
			return errNoMember
		}
		call, err := callStmt(member)
		if err != nil {
			return err
		}
		file.Stmts = append(file.Stmts, call)
	}

	opts := []interp.RunnerOption{
		interp.StdIO(sio.in, sio.out, sio.errOut),
		interp.Env(env),
		interp.Params(append([]string{"--"}, args...)...),
		interp.ExecHandlers(r.dispatch),
	}
	if dir != "" {
		opts = append(opts, interp.Dir(dir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return err
	}
	return runner.Run(context.WithValue(ctx, depthKey{}, depth+1), file)
}

func callStmt(member string) (*syntax.Stmt, error) {
	f, err := syntax.NewParser().Parse(strings.NewReader(member+` "$@"`), "")
	if err != nil {
		return nil, err
	}
	return f.Stmts[0], nil
}

// dispatch routes dotted commands to units. Failures to find the unit are
// reported like a missing command so the calling program keeps control.
func (r *Runtime) dispatch(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		typ, member, ok := shunit.ClassifyRef(args[0])
		if !ok {
			return next(ctx, args)
		}
		hc := interp.HandlerCtx(ctx)
		err := r.invoke(ctx, stdio{in: hc.Stdin, out: hc.Stdout, errOut: hc.Stderr}, hc.Env, hc.Dir, typ, member, args[1:])
		switch {
		case errors.Is(err, errNoType):
			fmt.Fprintf(hc.Stderr, "%s: type not found\n", args[0])
			return interp.NewExitStatus(127)
		case errors.Is(err, errNoMember):
			fmt.Fprintf(hc.Stderr, "%s: function not found\n", args[0])
			return interp.NewExitStatus(127)
		}
		return err
	}
}
