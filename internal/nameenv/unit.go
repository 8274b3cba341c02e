package nameenv

import (
	"fmt"
	"path"
	"strings"

	"difftest/internal/failure"
	"difftest/internal/source"
)

// Source is an in-memory file handed to New: a virtual path and its text.
type Source struct {
	Path string
	Text string
}

// Unit is an in-memory compilation unit. Its package and simple name are
// derived from the virtual path: "p/q/X.sh" is type X in package p.q.
type Unit struct {
	Path    string
	Package string
	Name    string
	Text    string
}

// QualifiedName returns "pkg.Name", or just Name in the default package.
func (u *Unit) QualifiedName() string {
	return Qualify(u.Package, u.Name)
}

// Qualify joins a package and a simple name.
func Qualify(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// validName reports whether a qualified name has no empty segment, so ".X",
// "p." and "p..X" are never looked up.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

// SplitQualified splits "p.q.X" into ("p.q", "X").
func SplitQualified(name string) (pkg, simple string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// NewUnit derives a Unit from a virtual path. The path must carry an
// extension, a non-empty stem, and package segments without dots.
func NewUnit(p, text string) (*Unit, error) {
	norm := source.NormalizePath(p)
	if norm == "." || norm == "" || strings.HasPrefix(norm, "/") || strings.HasPrefix(norm, "../") || norm == ".." {
		return nil, malformedPath(p, "must be a relative path inside the source set")
	}
	dir, base := path.Split(norm)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	switch {
	case ext == "":
		return nil, malformedPath(p, "has no extension")
	case stem == "":
		return nil, malformedPath(p, "has an empty file stem")
	case strings.Contains(stem, "."):
		return nil, malformedPath(p, "has a dotted file stem")
	}

	dir = strings.TrimSuffix(dir, "/")
	var pkg string
	if dir != "" {
		segs := strings.Split(dir, "/")
		for _, s := range segs {
			if s == "" || strings.Contains(s, ".") {
				return nil, malformedPath(p, fmt.Sprintf("has an invalid package segment %q", s))
			}
		}
		pkg = strings.Join(segs, ".")
	}
	return &Unit{Path: norm, Package: pkg, Name: stem, Text: text}, nil
}

func malformedPath(p, why string) error {
	return failure.Newf(failure.MalformedInput, "unit path %q %s", p, why)
}

// TypePath turns a qualified type name into a relative slash path with ext,
// "p.q.X" -> "p/q/X.sh".
func TypePath(qualified, ext string) string {
	return strings.ReplaceAll(qualified, ".", "/") + ext
}

// PackagePath turns "p.q" into "p/q".
func PackagePath(pkg string) string {
	return strings.ReplaceAll(pkg, ".", "/")
}
