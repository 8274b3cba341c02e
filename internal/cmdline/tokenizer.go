// Package cmdline splits compiler command lines into arguments.
//
// The rules are deliberately small: whitespace separates tokens, a quoted
// span is taken literally with the quotes removed, and fragments that touch
// (no whitespace between them) are glued into one token. There are no escape
// characters, so Windows-style paths survive untouched. Path-list separators
// are ordinary characters to the tokenizer; Token keeps enough structure to
// split path lists afterwards without breaking quoted entries.
package cmdline

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"difftest/internal/failure"
)

// ErrUnterminatedQuote is the cause of the MalformedInput error returned for
// a quote that is never closed.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Tokenizer holds the quoting convention. The zero value uses the fixture
// convention: double quote and ';'.
type Tokenizer struct {
	Quote             rune
	PathListSeparator rune
}

// Default is the convention the fixtures are written in.
var Default = Tokenizer{Quote: '"', PathListSeparator: ';'}

// New validates a convention and returns a Tokenizer for it.
func New(quote, sep rune) (Tokenizer, error) {
	switch {
	case quote == sep:
		return Tokenizer{}, fmt.Errorf("quote and path-list separator must differ (both %q)", quote)
	case unicode.IsSpace(quote) || unicode.IsSpace(sep):
		return Tokenizer{}, fmt.Errorf("quote %q and separator %q must not be whitespace", quote, sep)
	case quote == utf8.RuneError || sep == utf8.RuneError:
		return Tokenizer{}, fmt.Errorf("invalid quote or separator rune")
	}
	return Tokenizer{Quote: quote, PathListSeparator: sep}, nil
}

func (t Tokenizer) quote() rune {
	if t.Quote == 0 {
		return Default.Quote
	}
	return t.Quote
}

func (t Tokenizer) sep() rune {
	if t.PathListSeparator == 0 {
		return Default.PathListSeparator
	}
	return t.PathListSeparator
}

// Fragment is a contiguous piece of a token, either quoted or bare.
type Fragment struct {
	Text   string
	Quoted bool
}

// Token is one argument together with the fragments it was glued from.
type Token struct {
	Fragments []Fragment
	Offset    int // byte offset of the token's first character in the line
	sep       rune
}

// String returns the argument value: all fragments concatenated, quotes removed.
func (tok Token) String() string {
	if len(tok.Fragments) == 1 {
		return tok.Fragments[0].Text
	}
	var sb strings.Builder
	for _, f := range tok.Fragments {
		sb.WriteString(f.Text)
	}
	return sb.String()
}

// SplitPathList splits the token into path-list entries. Separators inside
// quoted fragments do not split. Empty entries are dropped.
func (tok Token) SplitPathList() []string {
	sep := tok.sep
	if sep == 0 {
		sep = Default.PathListSeparator
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, f := range tok.Fragments {
		if f.Quoted {
			cur.WriteString(f.Text)
			continue
		}
		parts := strings.Split(f.Text, string(sep))
		for i, p := range parts {
			if i > 0 {
				flush()
			}
			cur.WriteString(p)
		}
	}
	flush()
	return out
}

// Tokenize splits line with the default convention.
func Tokenize(line string) ([]string, error) {
	return Default.Tokenize(line)
}

// Tokenize splits line into argument strings. Empty or blank input yields nil.
func (t Tokenizer) Tokenize(line string) ([]string, error) {
	toks, err := t.Scan(line)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}
	out := make([]string, len(toks))
	for i, tok := range toks {
		out[i] = tok.String()
	}
	return out, nil
}

// Scan splits line into tokens, keeping fragment structure.
func (t Tokenizer) Scan(line string) ([]Token, error) {
	quote, sep := t.quote(), t.sep()
	var (
		toks []Token
		cur  *Token
	)
	open := func(off int) {
		if cur == nil {
			toks = append(toks, Token{Offset: off, sep: sep})
			cur = &toks[len(toks)-1]
		}
	}

	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		switch {
		case r == quote:
			body := line[i+size:]
			end := strings.IndexRune(body, quote)
			if end < 0 {
				return nil, failure.Wrap(failure.MalformedInput, i,
					fmt.Sprintf("in command line %q", line), ErrUnterminatedQuote)
			}
			open(i)
			cur.Fragments = append(cur.Fragments, Fragment{Text: body[:end], Quoted: true})
			i += size + end + utf8.RuneLen(quote)
		case isBlank(r):
			cur = nil
			i += size
		default:
			j := i
			for j < len(line) {
				r2, s2 := utf8.DecodeRuneInString(line[j:])
				if r2 == quote || isBlank(r2) {
					break
				}
				j += s2
			}
			open(i)
			cur.Fragments = append(cur.Fragments, Fragment{Text: line[i:j]})
			i = j
		}
	}
	return toks, nil
}

// SplitPathList splits an already unquoted path-list value on sep, dropping
// empty entries.
func SplitPathList(value string, sep rune) []string {
	if sep == 0 {
		sep = Default.PathListSeparator
	}
	var out []string
	for _, p := range strings.Split(value, string(sep)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
