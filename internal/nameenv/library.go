package nameenv

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DirLibrary resolves types from a classpath directory: "p.X" is the file
// <Root>/p/X<Ext>.
type DirLibrary struct {
	Root string
	Ext  string
}

var _ Lookup = DirLibrary{}

// FindType implements Lookup.
func (d DirLibrary) FindType(name string) Answer {
	if !validName(name) {
		return Answer{}
	}
	p := filepath.Join(d.Root, filepath.FromSlash(TypePath(name, d.Ext)))
	// #nosec G304 -- classpath entries are supplied by the harness configuration
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warningf("classpath %s: reading %s: %v", d.Root, p, err)
		}
		return Answer{}
	}
	return BinaryAnswer(&Binary{Name: name, Origin: filepath.ToSlash(p), Bytes: data})
}

// IsPackage implements Lookup.
func (d DirLibrary) IsPackage(name string) bool {
	if !validName(name) {
		return false
	}
	st, err := os.Stat(filepath.Join(d.Root, filepath.FromSlash(PackagePath(name))))
	return err == nil && st.IsDir()
}

// Cleanup implements Lookup; a directory holds no resources.
func (DirLibrary) Cleanup() error { return nil }

// ArchiveLibrary resolves types from a zip or jar archive. The archive is
// opened on first use, closed by Cleanup, and reopened on demand afterwards,
// so one library can be shared by every test of a suite.
type ArchiveLibrary struct {
	Path string
	Ext  string

	mu       sync.Mutex
	reader   *zip.ReadCloser
	entries  map[string]*zip.File // "p/X.sh" -> entry
	packages map[string]struct{}  // "p.q"
}

var _ Lookup = (*ArchiveLibrary)(nil)

// NewArchiveLibrary returns a lazily opened archive library.
func NewArchiveLibrary(archivePath, ext string) *ArchiveLibrary {
	return &ArchiveLibrary{Path: archivePath, Ext: ext}
}

func (a *ArchiveLibrary) open() error {
	if a.reader != nil {
		return nil
	}
	r, err := zip.OpenReader(a.Path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", a.Path, err)
	}
	a.reader = r
	a.entries = make(map[string]*zip.File, len(r.File))
	a.packages = make(map[string]struct{})
	for _, f := range r.File {
		name := strings.TrimPrefix(path.Clean(f.Name), "/")
		if f.FileInfo().IsDir() {
			a.addPackage(name)
			continue
		}
		a.entries[name] = f
		if dir := path.Dir(name); dir != "." {
			a.addPackage(dir)
		}
	}
	log.Debugf("classpath: opened %s (%d entries)", a.Path, len(a.entries))
	return nil
}

func (a *ArchiveLibrary) addPackage(dir string) {
	for pkg := strings.ReplaceAll(dir, "/", "."); pkg != "" && pkg != "."; pkg, _ = SplitQualified(pkg) {
		a.packages[pkg] = struct{}{}
	}
}

// FindType implements Lookup.
func (a *ArchiveLibrary) FindType(name string) Answer {
	if !validName(name) {
		return Answer{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.open(); err != nil {
		log.Warningf("classpath: %v", err)
		return Answer{}
	}
	entry := TypePath(name, a.Ext)
	f, ok := a.entries[entry]
	if !ok {
		return Answer{}
	}
	rc, err := f.Open()
	if err != nil {
		log.Warningf("classpath: %s!%s: %v", a.Path, entry, err)
		return Answer{}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		log.Warningf("classpath: %s!%s: %v", a.Path, entry, err)
		return Answer{}
	}
	return BinaryAnswer(&Binary{Name: name, Origin: filepath.ToSlash(a.Path) + "!" + entry, Bytes: data})
}

// IsPackage implements Lookup.
func (a *ArchiveLibrary) IsPackage(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.open(); err != nil {
		log.Warningf("classpath: %v", err)
		return false
	}
	_, ok := a.packages[name]
	return ok
}

// Cleanup closes the archive if it is open.
func (a *ArchiveLibrary) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reader == nil {
		return nil
	}
	err := a.reader.Close()
	a.reader = nil
	a.entries = nil
	a.packages = nil
	log.Debugf("classpath: closed %s", a.Path)
	return err
}

// ArtifactLibrary serves artifacts produced by an earlier compile pass.
type ArtifactLibrary struct {
	Origin string

	mu       sync.RWMutex
	types    map[string][]byte
	packages map[string]struct{}
}

var _ Lookup = (*ArtifactLibrary)(nil)

// NewArtifactLibrary creates an empty library labelled with origin.
func NewArtifactLibrary(origin string) *ArtifactLibrary {
	return &ArtifactLibrary{
		Origin:   origin,
		types:    make(map[string][]byte),
		packages: make(map[string]struct{}),
	}
}

// Add records a compiled type. A later Add for the same name replaces it.
func (l *ArtifactLibrary) Add(name string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types[name] = data
	pkg, _ := SplitQualified(name)
	for ; pkg != ""; pkg, _ = SplitQualified(pkg) {
		l.packages[pkg] = struct{}{}
	}
}

// Names returns the recorded type names, sorted.
func (l *ArtifactLibrary) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.types))
	for n := range l.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FindType implements Lookup.
func (l *ArtifactLibrary) FindType(name string) Answer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.types[name]
	if !ok {
		return Answer{}
	}
	return BinaryAnswer(&Binary{Name: name, Origin: l.Origin, Bytes: data})
}

// IsPackage implements Lookup.
func (l *ArtifactLibrary) IsPackage(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.packages[name]
	return ok
}

// Cleanup implements Lookup. Artifacts stay available: the library belongs to
// the test, not to a single compilation.
func (l *ArtifactLibrary) Cleanup() error { return nil }

// Classpath builds library lookups from path-list entries, in order.
// Directories become DirLibrary, .zip and .jar files become ArchiveLibrary.
// Missing entries are skipped with a warning, like a compiler would.
func Classpath(entries []string, ext string) ([]Lookup, error) {
	var libs []Lookup
	for _, e := range entries {
		st, err := os.Stat(e)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Warningf("classpath: skipping missing entry %s", e)
				continue
			}
			return nil, fmt.Errorf("classpath entry %s: %w", e, err)
		}
		switch {
		case st.IsDir():
			libs = append(libs, DirLibrary{Root: e, Ext: ext})
		case isArchive(e):
			libs = append(libs, NewArchiveLibrary(e, ext))
		default:
			log.Warningf("classpath: skipping %s (not a directory or archive)", e)
		}
	}
	return libs, nil
}

func isArchive(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".zip", ".jar":
		return true
	}
	return false
}
