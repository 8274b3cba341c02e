package diagfmt

// PathMode specifies how file paths are displayed in entry headers.
type PathMode uint8

const (
	// PathModeAsIs prints the path recorded on the problem.
	PathModeAsIs PathMode = iota
	// PathModeBasename prints only the last path element.
	PathModeBasename
)

// Options configures log rendering. The zero value produces the canonical
// baseline format.
type Options struct {
	PathMode PathMode
	// ShowCategory appends " [category:N]" after each message.
	ShowCategory bool
}
