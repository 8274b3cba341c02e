package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"difftest/internal/nameenv"
	"difftest/internal/source"
)

// readSources loads on-disk files as in-memory sources. Each entry is either
// "virtual/path=disk/file" or a path relative to root, which then doubles as
// the virtual path.
func readSources(root string, entries []string) ([]nameenv.Source, error) {
	out := make([]nameenv.Source, 0, len(entries))
	for _, entry := range entries {
		virtual, disk, ok := strings.Cut(entry, "=")
		if !ok {
			virtual, disk = entry, filepath.Join(root, filepath.FromSlash(entry))
		}
		data, err := os.ReadFile(disk)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		text, _ := source.Normalize(data)
		out = append(out, nameenv.Source{Path: source.NormalizePath(virtual), Text: string(text)})
	}
	return out, nil
}

// absPaths resolves relative entries against the working directory.
func absPaths(entries []string) ([]string, error) {
	out := make([]string, len(entries))
	for i, e := range entries {
		abs, err := filepath.Abs(e)
		if err != nil {
			return nil, err
		}
		out[i] = abs
	}
	return out, nil
}
