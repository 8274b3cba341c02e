package diag

import (
	"fmt"
)

// Code is the numeric category id attached to every problem. The harness
// only uses it for filtering and optional display; pass/fail is decided by
// Severity.
type Code uint16

const (
	UnknownCode Code = 0

	// Syntax
	SynInfo       Code = 1000
	SynParseError Code = 1001
	SynIncomplete Code = 1002

	// Type resolution
	TypeInfo         Code = 2000
	TypeUnresolved   Code = 2001
	TypeNotAUnit     Code = 2002
	TypeAmbiguousRef Code = 2003

	// Members
	MemberInfo      Code = 3000
	MemberUndefined Code = 3001

	// Deprecation
	DeprecatedInfo   Code = 4000
	DeprecatedMember Code = 4001
	DeprecatedType   Code = 4002

	// Compiler options
	OptInfo        Code = 5000
	OptUnreadable  Code = 5001
	OptMissingFile Code = 5002

	InternalFault Code = 9000
)

var codeTitles = map[Code]string{
	UnknownCode:      "Unknown problem",
	SynParseError:    "Syntax error",
	SynIncomplete:    "Incomplete construct at end of file",
	TypeUnresolved:   "Type cannot be resolved",
	TypeNotAUnit:     "Name resolves to a package, not a type",
	TypeAmbiguousRef: "Ambiguous type reference",
	MemberUndefined:  "Member is undefined for the type",
	DeprecatedMember: "Reference to a deprecated member",
	DeprecatedType:   "Reference to a deprecated type",
	OptUnreadable:    "Source file cannot be read",
	OptMissingFile:   "Source file not found",
	InternalFault:    "Internal compiler fault",
}

// ID returns the stable textual id, e.g. "SYN1001".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("TYP%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("MEM%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("DEP%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("OPT%04d", ic)
	case ic >= 9000:
		return fmt.Sprintf("INT%04d", ic)
	}
	return "E0000"
}

// Title returns a short human description of the category.
func (c Code) Title() string {
	if t, ok := codeTitles[c]; ok {
		return t
	}
	return codeTitles[UnknownCode]
}

func (c Code) String() string {
	return c.ID()
}

// IsDeprecation reports whether c belongs to the deprecation group, which
// -warn:-deprecation switches off.
func (c Code) IsDeprecation() bool {
	return c >= DeprecatedInfo && c < OptInfo
}
