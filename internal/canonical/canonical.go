// Package canonical reduces announcement markup to canonical text and
// fingerprints it. Two markups that render to the same text produce the same
// fingerprint.
package canonical

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/width"
)

// HashPrefix tags fingerprints with the digest algorithm.
const HashPrefix = "md5:"

// ErrNoText is returned when markup yields no usable text.
var ErrNoText = errors.New("markup contains no text")

// Document is the canonical form of one markup snapshot.
type Document struct {
	Text        string
	Fingerprint string
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Dd: true, atom.Dt: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Head: true,
}

// Canonicalize extracts the visible text of markup, normalizes it and
// fingerprints the result. Malformed markup is tokenized best-effort. When no
// text survives, ErrNoText is returned together with a Document whose
// fingerprint covers the raw markup, so changes are still detectable.
func Canonicalize(markup string) (Document, error) {
	text := Normalize(visibleText(markup))
	if text == "" {
		return Document{Fingerprint: Fingerprint(markup)}, ErrNoText
	}
	return Document{Text: text, Fingerprint: Fingerprint(text)}, nil
}

// Fingerprint returns the "md5:<hex>" digest of text.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return HashPrefix + hex.EncodeToString(sum[:])
}

// Normalize folds full-width ASCII variants to their narrow forms, collapses
// whitespace runs within each line, trims lines and drops blank ones.
// Normalize is idempotent.
func Normalize(s string) string {
	s = width.Fold.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapseSpace(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	pendingSpace := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func visibleText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a read error; either way keep what was read.
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			a := tagAtom(z)
			if skippedElements[a] {
				skip++
			} else if blockElements[a] {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			if blockElements[tagAtom(z)] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			a := tagAtom(z)
			if skippedElements[a] {
				if skip > 0 {
					skip--
				}
			} else if blockElements[a] {
				b.WriteByte('\n')
			}
		}
	}
}

func tagAtom(z *html.Tokenizer) atom.Atom {
	name, _ := z.TagName()
	return atom.Lookup(name)
}
