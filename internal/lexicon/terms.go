package lexicon

import "strings"

// variantFolder maps character variants that appear interchangeably in
// notices onto one form. Each pair has the same UTF-8 length so byte offsets
// in folded text line up with the original.
var variantFolder = strings.NewReplacer("台", "臺")

// Fold maps variant characters onto their canonical form for matching.
func Fold(s string) string {
	return variantFolder.Replace(s)
}

// TermSet is an ordered list of literal terms. Text passed to its methods
// must already be folded.
type TermSet []string

// In reports whether any term occurs in s.
func (ts TermSet) In(s string) bool {
	for _, t := range ts {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Matches returns the terms that occur in s, in set order.
func (ts TermSet) Matches(s string) []string {
	var out []string
	for _, t := range ts {
		if strings.Contains(s, t) {
			out = append(out, t)
		}
	}
	return out
}

// First returns the term that occurs earliest in s and its byte offset. When
// several terms start at the same offset the longest wins.
func (ts TermSet) First(s string) (string, int, bool) {
	best, bestPos := "", -1
	for _, t := range ts {
		i := strings.Index(s, t)
		if i < 0 {
			continue
		}
		if bestPos < 0 || i < bestPos || (i == bestPos && len(t) > len(best)) {
			best, bestPos = t, i
		}
	}
	return best, bestPos, bestPos >= 0
}

// Mask overwrites every occurrence of the set's terms with NUL bytes of the
// same length, so later lookups cannot match inside them while byte offsets
// stay aligned with s.
func (ts TermSet) Mask(s string) string {
	for _, t := range ts {
		if strings.Contains(s, t) {
			s = strings.ReplaceAll(s, t, strings.Repeat("\x00", len(t)))
		}
	}
	return s
}
