// Package shunit reads the shell units used by the reference toolchain.
//
// A unit is a bash file. Its top-level function declarations are the unit's
// members; every other top-level statement is the unit's main body. A member
// is deprecated when a "# @deprecated" comment is attached to its
// declaration. Commands spelled as dotted names refer to other units:
// "p.q.Tool" runs the main body of type p.q.Tool and "p.q.Tool.greet" calls
// its greet member.
package shunit

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"mvdan.cc/sh/v3/syntax"
)

// DeprecatedMarker is the comment text that deprecates a member.
const DeprecatedMarker = "@deprecated"

// Member is one function declared by a unit.
type Member struct {
	Name       string
	Deprecated bool
	Stmt       *syntax.Stmt
}

// Unit is a parsed shell unit.
type Unit struct {
	Name    string // qualified type name
	File    *syntax.File
	Members []Member
	Main    []*syntax.Stmt
}

// Parse parses text as the unit called name. The returned error is the
// parser's syntax.ParseError or syntax.LangError.
func Parse(name, text string) (*Unit, error) {
	parser := syntax.NewParser(syntax.KeepComments(true), syntax.Variant(syntax.LangBash))
	f, err := parser.Parse(strings.NewReader(text), name)
	if err != nil {
		return nil, err
	}
	u := &Unit{Name: name, File: f}
	for _, st := range f.Stmts {
		fn, ok := st.Cmd.(*syntax.FuncDecl)
		if !ok {
			u.Main = append(u.Main, st)
			continue
		}
		u.Members = append(u.Members, Member{
			Name:       fn.Name.Value,
			Deprecated: hasMarker(st.Comments),
			Stmt:       st,
		})
	}
	return u, nil
}

// Member returns the member called name.
func (u *Unit) Member(name string) (Member, bool) {
	for _, m := range u.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// MemberStmts returns the declaration statements of every member.
func (u *Unit) MemberStmts() []*syntax.Stmt {
	out := make([]*syntax.Stmt, len(u.Members))
	for i, m := range u.Members {
		out[i] = m.Stmt
	}
	return out
}

func hasMarker(comments []syntax.Comment) bool {
	for _, c := range comments {
		if isMarker(c) {
			return true
		}
	}
	return false
}

func isMarker(c syntax.Comment) bool {
	return strings.TrimSpace(c.Text) == DeprecatedMarker
}

// StripComments drops every comment except deprecation markers, in place.
func (u *Unit) StripComments() {
	syntax.Walk(u.File, func(node syntax.Node) bool {
		if st, ok := node.(*syntax.Stmt); ok {
			st.Comments = keepMarkers(st.Comments)
		}
		return true
	})
	u.File.Last = nil
}

func keepMarkers(comments []syntax.Comment) []syntax.Comment {
	var out []syntax.Comment
	for _, c := range comments {
		if isMarker(c) {
			out = append(out, c)
		}
	}
	return out
}

// Print renders the unit in canonical form.
func (u *Unit) Print() ([]byte, error) {
	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.Indent(2)).Print(&buf, u.File); err != nil {
		return nil, fmt.Errorf("print %s: %w", u.Name, err)
	}
	return buf.Bytes(), nil
}

// Ref is a dotted command name naming another unit.
type Ref struct {
	Text string
	// Type is the qualified type being referred to.
	Type string
	// Member is empty for a reference to the type itself.
	Member string
	Pos    syntax.Pos
	End    syntax.Pos
}

// Refs returns every reference made by the unit, in source order.
func (u *Unit) Refs() []Ref {
	var refs []Ref
	syntax.Walk(u.File, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		w := call.Args[0]
		lit := w.Lit()
		if lit == "" {
			return true
		}
		typ, member, ok := ClassifyRef(lit)
		if !ok {
			return true
		}
		refs = append(refs, Ref{Text: lit, Type: typ, Member: member, Pos: w.Pos(), End: w.End()})
		return true
	})
	return refs
}

// ClassifyRef splits a dotted command name into the type it names and an
// optional member. Names need at least two identifier segments and a
// capitalized type segment: "p.Tool" and "p.Tool.run" qualify, "a.b" does not.
func ClassifyRef(word string) (typ, member string, ok bool) {
	segs := strings.Split(word, ".")
	if len(segs) < 2 {
		return "", "", false
	}
	for _, s := range segs {
		if !isIdent(s) {
			return "", "", false
		}
	}
	last := segs[len(segs)-1]
	if isTypeName(last) {
		return word, "", true
	}
	owner := segs[len(segs)-2]
	if !isTypeName(owner) {
		return "", "", false
	}
	return strings.Join(segs[:len(segs)-1], "."), last, true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func isTypeName(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// Columns converts a parser position range into a 1-based line and inclusive
// character columns on that line. The parser counts bytes; problems count
// characters. A range spilling onto later lines is cut at the end of the
// first one.
func Columns(text string, pos, end syntax.Pos) (line, colStart, colEnd uint32) {
	if !pos.IsValid() {
		return 0, 0, 0
	}
	line = uint32(pos.Line())
	src := lineText(text, line)
	colStart = runeCol(src, pos.Col())
	colEnd = colStart
	if end.IsValid() && end.Line() == pos.Line() && end.Col() > pos.Col() {
		colEnd = runeCol(src, end.Col()) - 1
	} else if end.IsValid() && end.Line() > pos.Line() {
		colEnd = uint32(utf8.RuneCountInString(src))
	}
	if colEnd < colStart {
		colEnd = colStart
	}
	return line, colStart, colEnd
}

func lineText(text string, line uint32) string {
	for n := uint32(1); n < line; n++ {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			return ""
		}
		text = text[i+1:]
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSuffix(text, "\r")
}

// runeCol maps a 1-based byte column to a 1-based character column.
func runeCol(line string, byteCol uint) uint32 {
	off := int(byteCol) - 1
	if off > len(line) {
		off = len(line)
	}
	if off < 0 {
		off = 0
	}
	return uint32(utf8.RuneCountInString(line[:off])) + 1
}
