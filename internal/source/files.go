package source

import (
	"fmt"
	"sort"
	"sync"

	"fortio.org/safecast"
)

// File is one named text with a line index.
type File struct {
	Path   string
	Text   []byte
	starts []int // byte offset of every line start
}

func newFile(path string, text []byte) *File {
	f := &File{Path: path, Text: text, starts: []int{0}}
	for i, b := range text {
		if b == '\n' && i+1 < len(text) {
			f.starts = append(f.starts, i+1)
		}
	}
	return f
}

// LineCount returns the number of lines. A trailing newline does not open a
// new line; empty text has none.
func (f *File) LineCount() uint32 {
	if len(f.Text) == 0 {
		return 0
	}
	n, err := safecast.Conv[uint32](len(f.starts))
	if err != nil {
		panic(fmt.Errorf("line count overflow: %w", err))
	}
	return n
}

// Line returns the 1-based line n without its newline.
func (f *File) Line(n uint32) (string, bool) {
	if n == 0 || n > f.LineCount() {
		return "", false
	}
	start := f.starts[n-1]
	end := len(f.Text)
	if int(n) < len(f.starts) {
		end = f.starts[n] - 1
	} else if end > start && f.Text[end-1] == '\n' {
		end--
	}
	return string(f.Text[start:end]), true
}

// FileSet maps unit paths to their text. It is safe for concurrent use.
type FileSet struct {
	mu    sync.RWMutex
	files map[string]*File
}

// NewFileSet returns an empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{files: make(map[string]*File)}
}

// Add stores text under the normalized path, replacing an earlier file.
func (fs *FileSet) Add(path string, text []byte) *File {
	f := newFile(NormalizePath(path), text)
	fs.mu.Lock()
	fs.files[f.Path] = f
	fs.mu.Unlock()
	return f
}

// File returns the file stored under path.
func (fs *FileSet) File(path string) (*File, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	f, ok := fs.files[NormalizePath(path)]
	return f, ok
}

// Paths returns the stored paths in lexical order.
func (fs *FileSet) Paths() []string {
	fs.mu.RLock()
	out := make([]string, 0, len(fs.files))
	for p := range fs.files {
		out = append(out, p)
	}
	fs.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Line returns line n (1-based) of the file stored under path.
func (fs *FileSet) Line(path string, n uint32) (string, bool) {
	f, ok := fs.File(path)
	if !ok {
		return "", false
	}
	return f.Line(n)
}
