package filter

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// Rule is one pattern/replacement pair in a filter pipeline.
type Rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Set is an ordered filter pipeline. Rules run in registration order and
// each rule sees the output of the rules before it, so ordering is part of
// the contract: path masks must run before the numeric masks that would
// otherwise corrupt them.
type Set struct {
	rules []Rule
}

// NewSet creates an empty filter set.
func NewSet() *Set {
	return &Set{}
}

// Add compiles a regex pattern and appends it to the pipeline.
// Replacement may reference capture groups as ${1}, ${2}, etc.
// Panics on an invalid pattern; rule patterns are program constants.
func (s *Set) Add(pattern, replacement string) *Set {
	s.rules = append(s.rules, Rule{
		pattern:     regexp.MustCompile(pattern),
		replacement: replacement,
	})
	return s
}

// AddLiteral appends a verbatim-string substitution. The text is quoted so
// regex metacharacters in filesystem paths or user names have no effect.
// Empty literals are skipped: an empty pattern matches between every byte.
func (s *Set) AddLiteral(text, replacement string) *Set {
	if text == "" {
		return s
	}
	return s.Add(regexp.QuoteMeta(text), replacement)
}

// Filter applies every rule in order over the whole input, replacing all
// non-overlapping occurrences. Input is NFC-normalized first so transcripts
// written on platforms that emit decomposed Unicode compare byte-for-byte.
func (s *Set) Filter(input string) string {
	input = norm.NFC.String(input)
	for _, r := range s.rules {
		input = r.pattern.ReplaceAllString(input, r.replacement)
	}
	return input
}

// Len returns the number of rules in the pipeline.
func (s *Set) Len() int {
	return len(s.rules)
}
