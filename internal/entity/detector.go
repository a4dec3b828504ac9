// Package entity finds known character and setting names in the editor
// context and prefetches the matching knowledge documents.
package entity

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/flemzord/writenow/internal/knowledge"
)

// Candidate is a name the detector looks for.
type Candidate struct {
	// Name is the text to match, either a file stem or an alias.
	Name string
	// Stem is the file stem of the document the name refers to.
	Stem string
	Kind knowledge.SourceKind
}

// Match is one detected candidate and where it first occurs.
type Match struct {
	Candidate
	Offset int
}

// Detector matches candidate names against free text. Matching is
// case-sensitive and only accepts whole tokens: "Ann" does not match
// inside "Anna".
type Detector struct {
	candidates []Candidate
}

// NewDetector creates a Detector. Blank names are dropped; longer names are
// tried first so "New York" wins over "York" at the same offset.
func NewDetector(candidates []Candidate) *Detector {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Name) == "" || c.Stem == "" {
			continue
		}
		kept = append(kept, c)
	}
	slices.SortStableFunc(kept, func(a, b Candidate) int {
		return cmp.Compare(len(b.Name), len(a.Name))
	})
	return &Detector{candidates: kept}
}

// CandidatesFrom lists every name of docs as candidates of the given kind.
func CandidatesFrom(kind knowledge.SourceKind, docs []knowledge.Document) []Candidate {
	var out []Candidate
	for _, d := range docs {
		for _, name := range d.Names() {
			out = append(out, Candidate{Name: name, Stem: d.Name, Kind: kind})
		}
	}
	return out
}

// Detect returns one match per distinct document found in text, ordered by
// first occurrence, then kind, then stem.
func (d *Detector) Detect(text string) []Match {
	if text == "" {
		return nil
	}
	type key struct {
		kind knowledge.SourceKind
		stem string
	}
	best := make(map[key]Match)
	for _, c := range d.candidates {
		off := findToken(text, c.Name)
		if off < 0 {
			continue
		}
		k := key{c.Kind, c.Stem}
		if m, ok := best[k]; ok && m.Offset <= off {
			continue
		}
		best[k] = Match{Candidate: c, Offset: off}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Match) int {
		return cmp.Or(
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Stem, b.Stem),
		)
	})
	return out
}

// findToken returns the byte offset of the first occurrence of name in text
// that is not glued to a surrounding word character, or -1. Scripts written
// without spaces (Han, kana, Hangul) have no word boundaries, so a join
// where either side is such a rune always counts as one.
func findToken(text, name string) int {
	first, _ := utf8.DecodeRuneInString(name)
	last, _ := utf8.DecodeLastRuneInString(name)
	from := 0
	for from <= len(text)-len(name) {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(name)
		if boundaryBefore(text, start, first) && boundaryAfter(text, end, last) {
			return start
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return -1
}

func boundaryBefore(text string, i int, edge rune) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !glued(r, edge)
}

func boundaryAfter(text string, i int, edge rune) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !glued(edge, r)
}

// glued reports whether a and b read as one word.
func glued(a, b rune) bool {
	return isWordRune(a) && isWordRune(b) && !unspaced(a) && !unspaced(b)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func unspaced(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
