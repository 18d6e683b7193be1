// Package keywords classifies postings as relevant or excluded based on
// case-insensitive substring matching over normalized title and snippet text.
package keywords

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultIncludes is the built-in include-keyword set for construction and
// short-term casual work. Configured keywords extend this set unless the
// caller explicitly replaces it.
var DefaultIncludes = []string{
	"건설",
	"잡부",
	"데몰리션",
	"현장",
	"컨스트럭션",
	"construction",
	"demolition",
	"labour",
	"labor",
	"casual",
	"short term",
	"day job",
	"단기",
	"단기 알바",
	"단기알바",
	"캐주얼",
}

// DefaultExcludes is the built-in exclusion blacklist. A posting matching any
// of these is dropped even when it also matches an include keyword.
var DefaultExcludes = []string{
	"주방",
	"키친",
	"kitchen",
	"kitchen hand",
	"dishwasher",
	"설거지",
	"서빙",
	"홀서빙",
	"barista",
	"바리스타",
	"chef",
	"셰프",
}

// ErrNoIncludeKeywords is returned when the effective include set is empty.
// An empty include set is a configuration error; the filter never falls back
// to passing everything.
var ErrNoIncludeKeywords = errors.New("keywords: include set is empty")

// Normalize folds text for matching: NFKC normalization, casefold, and all
// non-letter/digit runs collapsed to single spaces.
func Normalize(value string) string {
	folded := strings.ToLower(norm.NFKC.String(value))
	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ParseCSV splits a comma-separated keyword list, trimming blanks.
func ParseCSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// buildSet normalizes and dedupes a keyword list, dropping entries that
// normalize to nothing.
func buildSet(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		n := Normalize(w)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Filter classifies postings by include/exclude keyword sets. The zero value
// is not usable; construct with NewFilter.
type Filter struct {
	includes []string
	excludes []string
}

// NewFilter builds a Filter from raw keyword lists. Keywords are normalized
// and deduplicated. Returns ErrNoIncludeKeywords if no include keyword
// survives normalization.
func NewFilter(includes, excludes []string) (*Filter, error) {
	inc := buildSet(includes)
	if len(inc) == 0 {
		return nil, ErrNoIncludeKeywords
	}
	return &Filter{includes: inc, excludes: buildSet(excludes)}, nil
}

// Relevant reports whether a posting matches at least one include keyword and
// none of the exclude keywords. Exclusion takes precedence.
func (f *Filter) Relevant(title, snippet string) bool {
	haystack := Normalize(title + " " + snippet)
	for _, kw := range f.excludes {
		if strings.Contains(haystack, kw) {
			return false
		}
	}
	for _, kw := range f.includes {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Includes returns the normalized include set, mainly for diagnostics.
func (f *Filter) Includes() []string {
	return f.includes
}
