// Package source holds the text of in-memory units and the normalization
// every fixture and on-disk source goes through before it is compared.
package source

import (
	"bytes"
	"path"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Changes records which normalizations altered a text.
type Changes uint8

const (
	DroppedBOM Changes = 1 << iota
	FoldedCRLF
	// ComposedNFC marks content that changed under Unicode NFC composition.
	ComposedNFC
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Normalize drops a leading UTF-8 BOM, folds CRLF to LF (a lone CR stays)
// and composes valid UTF-8 to NFC, so that visually identical fixtures
// compare byte-for-byte equal.
func Normalize(content []byte) ([]byte, Changes) {
	var c Changes
	if rest, ok := bytes.CutPrefix(content, bom); ok {
		content, c = rest, c|DroppedBOM
	}
	if bytes.Contains(content, []byte("\r\n")) {
		content, c = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n")), c|FoldedCRLF
	}
	if utf8.Valid(content) && !norm.NFC.IsNormal(content) {
		content, c = norm.NFC.Bytes(content), c|ComposedNFC
	}
	return content, c
}

// NormalizePath gives a unit path its single slash-separated form.
func NormalizePath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}
