// Package tokenize produces candidate tokens from product titles and
// attribute values. All functions are pure: same input, same output, no
// shared state beyond an internal compiled-regex cache.
package tokenize

import (
	"regexp"
	"strings"
	"sync"
)

// delimiters matches the separators used for word splitting: slash, dash,
// whitespace, comma, parentheses and colon.
var delimiters = regexp.MustCompile(`[/\-\s,():]+`)

// maxWholeStringLen caps the "emit the entire cleaned string" shortcut.
const maxWholeStringLen = 50

// Set is an unordered collection of tokens.
type Set map[string]struct{}

// Add inserts a token if non-empty.
func (s Set) Add(tok string) {
	if tok != "" {
		s[tok] = struct{}{}
	}
}

// Contains reports whether tok is in the set.
func (s Set) Contains(tok string) bool {
	_, ok := s[tok]
	return ok
}

// Intersect returns tokens present in both sets.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for tok := range s {
		if other.Contains(tok) {
			out.Add(tok)
		}
	}
	return out
}

// Words splits text on the delimiter set and returns every individual word
// (lower-cased), every contiguous window of up to three adjacent words joined
// by spaces (length >= 2), and, when the cleaned text is short enough, the
// whole string itself.
func Words(text string) Set {
	tokens := make(Set)
	clean := strings.TrimSpace(text)
	if clean == "" {
		return tokens
	}

	parts := delimiters.Split(clean, -1)
	var words []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			words = append(words, p)
		}
	}

	for _, w := range words {
		tokens.Add(strings.ToLower(w))
	}

	// Adjacent word combinations up to three words long.
	for i := 0; i < len(words); i++ {
		for j := i + 1; j <= len(words) && j <= i+3; j++ {
			combo := strings.Join(words[i:j], " ")
			if len(combo) >= 2 {
				tokens.Add(strings.ToLower(combo))
			}
		}
	}

	if len(clean) <= maxWholeStringLen {
		tokens.Add(strings.ToLower(clean))
	}

	return tokens
}

// Substrings generates every sliding-window substring of the lower-cased text
// with length in [minLen, maxLen]. It is the fallback candidate source when
// word tokenization finds no overlap.
func Substrings(text string, minLen, maxLen int) Set {
	tokens := make(Set)
	clean := strings.ToLower(strings.TrimSpace(text))
	if clean == "" || minLen < 1 {
		return tokens
	}

	for window := minLen; window <= maxLen && window <= len(clean); window++ {
		for i := 0; i+window <= len(clean); i++ {
			sub := strings.TrimSpace(clean[i : i+window])
			if len(sub) >= minLen {
				tokens.Add(sub)
			}
		}
	}

	return tokens
}

var (
	boundaryMu    sync.Mutex
	boundaryCache = make(map[string]*regexp.Regexp)
)

func boundaryPattern(word string) *regexp.Regexp {
	boundaryMu.Lock()
	defer boundaryMu.Unlock()
	if re, ok := boundaryCache[word]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	boundaryCache[word] = re
	return re
}

// WordInText reports whether word occurs in text at a word boundary,
// case-insensitively. The word is quoted, so it is safe for arbitrary input.
func WordInText(word, text string) bool {
	if word == "" || text == "" {
		return false
	}
	return boundaryPattern(word).MatchString(text)
}
