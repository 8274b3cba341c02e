// Package nameenv answers "where is type X defined?" for a compiler run.
//
// An Environment layers in-memory units over an ordered list of library
// lookups. Memory always wins; libraries are probed in registration order
// and the first hit is returned. Nothing here touches the disk except the
// library implementations themselves.
package nameenv

import (
	"fmt"
	"sync"

	"difftest/internal/errlist"
	"difftest/internal/failure"
	"difftest/internal/source"
)

// Lookup is the capability every resolver layer provides.
type Lookup interface {
	// FindType resolves a qualified type name such as "p.q.X".
	FindType(qualifiedName string) Answer
	// IsPackage reports whether the qualified package name exists.
	IsPackage(qualifiedPackageName string) bool
	// Cleanup releases held resources. It must be idempotent.
	Cleanup() error
}

// Environment is the layered resolver for one compilation.
type Environment struct {
	mu       sync.RWMutex
	units    map[string]map[string]*Unit // package -> simple name -> unit
	order    []*Unit
	packages map[string]struct{}
	libs     []Lookup
	files    *source.FileSet
}

var _ Lookup = (*Environment)(nil)

// New builds an Environment from in-memory sources and library lookups.
// Every source path must be well formed and (package, name) must be unique.
func New(sources []Source, libs ...Lookup) (*Environment, error) {
	env := &Environment{
		units:    make(map[string]map[string]*Unit),
		packages: make(map[string]struct{}),
		libs:     append([]Lookup(nil), libs...),
		files:    source.NewFileSet(),
	}
	for _, src := range sources {
		u, err := NewUnit(src.Path, src.Text)
		if err != nil {
			return nil, err
		}
		if err := env.add(u); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func (env *Environment) add(u *Unit) error {
	byName := env.units[u.Package]
	if byName == nil {
		byName = make(map[string]*Unit)
		env.units[u.Package] = byName
	}
	if prev, dup := byName[u.Name]; dup {
		return failure.Newf(failure.MalformedInput, "duplicate unit %s: %s and %s", u.QualifiedName(), prev.Path, u.Path)
	}
	byName[u.Name] = u
	env.order = append(env.order, u)
	env.files.Add(u.Path, []byte(u.Text))

	// a package implies all of its parents
	for pkg := u.Package; pkg != ""; pkg, _ = SplitQualified(pkg) {
		env.packages[pkg] = struct{}{}
	}
	return nil
}

// FindType resolves name against memory first, then each library in order.
func (env *Environment) FindType(name string) Answer {
	if !validName(name) {
		return Answer{}
	}
	pkg, simple := SplitQualified(name)

	env.mu.RLock()
	u := env.units[pkg][simple]
	libs := env.libs
	env.mu.RUnlock()

	if u != nil {
		return SourceAnswer(u)
	}
	for _, lib := range libs {
		if a := lib.FindType(name); a.Found() {
			return a
		}
	}
	return Answer{}
}

// IsPackage reports whether name is a package in memory or in any library.
func (env *Environment) IsPackage(name string) bool {
	if !validName(name) {
		return false
	}
	env.mu.RLock()
	_, ok := env.packages[name]
	libs := env.libs
	env.mu.RUnlock()
	if ok {
		return true
	}
	for _, lib := range libs {
		if lib.IsPackage(name) {
			return true
		}
	}
	return false
}

// Cleanup releases every library and forgets the in-memory units and their
// texts. Calling it again is harmless.
func (env *Environment) Cleanup() error {
	env.mu.Lock()
	env.units = make(map[string]map[string]*Unit)
	env.packages = make(map[string]struct{})
	env.order = nil
	env.files = source.NewFileSet()
	libs := env.libs
	env.mu.Unlock()

	var errs errlist.List
	for _, lib := range libs {
		if err := lib.Cleanup(); err != nil {
			errs = errs.Append(fmt.Errorf("cleanup %T: %w", lib, err))
		}
	}
	return errs.ErrOrNil()
}

// Units returns the in-memory units in the order they were given.
func (env *Environment) Units() []*Unit {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return append([]*Unit(nil), env.order...)
}

// Unit returns the in-memory unit stored under a virtual path.
func (env *Environment) Unit(p string) (*Unit, bool) {
	norm := source.NormalizePath(p)
	env.mu.RLock()
	defer env.mu.RUnlock()
	for _, u := range env.order {
		if u.Path == norm {
			return u, true
		}
	}
	return nil, false
}

// Files exposes the unit texts with line indexes, for rendering problems.
func (env *Environment) Files() *source.FileSet {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return env.files
}

// Libraries returns the library lookups in probe order.
func (env *Environment) Libraries() []Lookup {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return append([]Lookup(nil), env.libs...)
}
