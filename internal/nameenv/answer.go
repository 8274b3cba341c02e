package nameenv

// Kind tags the variant held by an Answer.
type Kind uint8

const (
	// NotFound is a resolution miss. It is a normal outcome, not an error.
	NotFound Kind = iota
	// SourceKind answers carry an in-memory Unit.
	SourceKind
	// BinaryKind answers carry an opaque compiled descriptor from a library.
	BinaryKind
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case SourceKind:
		return "source"
	case BinaryKind:
		return "binary"
	}
	return "unknown"
}

// Binary is a compiled type found in a library. Bytes are not interpreted
// by the resolver.
type Binary struct {
	Name   string // qualified type name
	Origin string // where it came from, e.g. "lib/p/X.sh" or "rt.jar!p/X.sh"
	Bytes  []byte
}

// Answer is the result of FindType. The zero value is NotFound.
type Answer struct {
	Kind   Kind
	Unit   *Unit
	Binary *Binary
}

// Found reports whether the answer holds a definition.
func (a Answer) Found() bool {
	return a.Kind != NotFound
}

// SourceAnswer wraps an in-memory unit.
func SourceAnswer(u *Unit) Answer {
	return Answer{Kind: SourceKind, Unit: u}
}

// BinaryAnswer wraps a library definition.
func BinaryAnswer(b *Binary) Answer {
	return Answer{Kind: BinaryKind, Binary: b}
}

// Text returns the definition text of either variant, or "" for a miss.
func (a Answer) Text() string {
	switch a.Kind {
	case SourceKind:
		return a.Unit.Text
	case BinaryKind:
		return string(a.Binary.Bytes)
	}
	return ""
}
