// Package shc is the reference toolchain the harness runs against: a
// compiler for shell units and the matching disassembler. It resolves every
// dotted reference through the name environment and reports problems the way
// a JDT-style batch compiler would.
package shc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"mvdan.cc/sh/v3/syntax"

	"difftest/internal/compiler"
	"difftest/internal/diag"
	"difftest/internal/nameenv"
	"difftest/internal/shunit"
	"difftest/internal/trace"
)

// Ext is the source file extension of shell units.
const Ext = ".sh"

// Compiler compiles shell units.
type Compiler struct{}

var _ compiler.Compiler = Compiler{}

// New returns the reference compiler.
func New() Compiler { return Compiler{} }

type compilation struct {
	env   *nameenv.Environment
	opts  compiler.Options
	rep   diag.Reporter
	types map[string]*shunit.Unit // parsed referenced types; nil for unreadable ones
}

// Compile implements compiler.Compiler.
func (Compiler) Compile(ctx context.Context, env *nameenv.Environment, opts compiler.Options) (*compiler.Result, error) {
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStep, "shc.compile", 0)
	defer span.End("")

	bag := diag.NewBag(0)
	c := &compilation{
		env:  env,
		opts: opts,
		rep: diag.FilterReporter{
			Next:          diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
			NoWarn:        opts.NoWarn,
			NoDeprecation: !opts.Deprecation,
		},
		types: make(map[string]*shunit.Unit),
	}

	if enc := opts.Encoding; enc != "" && !isUTF8(enc) {
		diag.ReportError(c.rep, diag.OptUnreadable, "", 0, 0, 0, fmt.Sprintf("Unsupported encoding %s", enc))
	}

	var compiled []*shunit.Unit
	for _, u := range c.selectUnits() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed := c.compileUnit(u)
		if parsed != nil {
			compiled = append(compiled, parsed)
		}
	}

	res := &compiler.Result{Problems: bag.Items()}
	if !opts.EmitArtifacts() || (bag.HasErrors() && !opts.ProceedOnError) {
		return res, nil
	}
	for _, u := range compiled {
		if !opts.Debug {
			u.StripComments()
		}
		data, err := u.Print()
		if err != nil {
			return nil, err
		}
		res.Artifacts = append(res.Artifacts, compiler.Artifact{Name: u.Name, Bytes: data})
	}
	log.Debugf("shc: %d unit(s), %d problem(s), %d artifact(s)", len(compiled), len(res.Problems), len(res.Artifacts))
	return res, nil
}

func isUTF8(enc string) bool {
	switch strings.ToUpper(enc) {
	case "UTF-8", "UTF8":
		return true
	}
	return false
}

func (c *compilation) selectUnits() []*nameenv.Unit {
	if len(c.opts.Files) == 0 {
		return c.env.Units()
	}
	var out []*nameenv.Unit
	for _, f := range c.opts.Files {
		u, ok := c.env.Unit(f)
		if !ok {
			diag.ReportError(c.rep, diag.OptMissingFile, f, 0, 0, 0, fmt.Sprintf("File %s is missing", f))
			continue
		}
		out = append(out, u)
	}
	return out
}

func (c *compilation) compileUnit(u *nameenv.Unit) *shunit.Unit {
	parsed, err := shunit.Parse(u.QualifiedName(), u.Text)
	if err != nil {
		c.reportSyntax(u, err)
		return nil
	}
	for _, ref := range parsed.Refs() {
		c.checkRef(u, ref)
	}
	return parsed
}

func (c *compilation) reportSyntax(u *nameenv.Unit, err error) {
	var (
		pos  syntax.Pos
		msg  string
		code = diag.SynParseError
	)
	var perr syntax.ParseError
	var lerr syntax.LangError
	switch {
	case errors.As(err, &perr):
		pos, msg = perr.Pos, "Syntax error, "+perr.Text
		if perr.Incomplete {
			code = diag.SynIncomplete
		}
	case errors.As(err, &lerr):
		pos, msg = lerr.Pos, fmt.Sprintf("Syntax error, %s is not supported", lerr.Feature)
	default:
		diag.ReportError(c.rep, diag.InternalFault, u.Path, 0, 0, 0, err.Error())
		return
	}
	line, cs, ce := shunit.Columns(u.Text, pos, pos)
	diag.ReportError(c.rep, code, u.Path, line, cs, ce, msg)
}

func (c *compilation) checkRef(u *nameenv.Unit, ref shunit.Ref) {
	line, cs, ce := shunit.Columns(u.Text, ref.Pos, ref.End)
	target, ok := c.lookup(ref.Type)
	if !ok {
		msg := fmt.Sprintf("%s cannot be resolved to a type", ref.Type)
		code := diag.TypeUnresolved
		if c.env.IsPackage(ref.Type) {
			code = diag.TypeNotAUnit
		}
		diag.ReportError(c.rep, code, u.Path, line, cs, ce, msg)
		return
	}
	if ref.Member == "" {
		return
	}
	m, ok := target.Member(ref.Member)
	switch {
	case !ok:
		diag.ReportError(c.rep, diag.MemberUndefined, u.Path, line, cs, ce,
			fmt.Sprintf("The function %s is undefined for the type %s", ref.Member, ref.Type))
	case m.Deprecated:
		diag.ReportWarning(c.rep, diag.DeprecatedMember, u.Path, line, cs, ce,
			fmt.Sprintf("The function %s from the type %s is deprecated", ref.Member, ref.Type))
	}
}

// lookup resolves and parses a referenced type once per compilation. Types
// whose definition does not parse count as unresolved.
func (c *compilation) lookup(name string) (*shunit.Unit, bool) {
	if u, seen := c.types[name]; seen {
		return u, u != nil
	}
	ans := c.env.FindType(name)
	var parsed *shunit.Unit
	if ans.Found() {
		u, err := shunit.Parse(name, ans.Text())
		if err != nil {
			log.Warnf("shc: definition of %s does not parse: %v", name, err)
		} else {
			parsed = u
		}
	}
	c.types[name] = parsed
	return parsed, parsed != nil
}
