package rule

import (
	"sort"
	"strings"

	"github.com/shopmind/attrmatch/pkg/attrmatch/tokenize"
)

// substring fallback window bounds for Learn.
const (
	fallbackMinLen = MinLength
	fallbackMaxLen = 10
)

// Learn derives the most specific match rule that identifies value in title.
// The second return is false when no rule can be extracted: the value shares
// no usable lexical overlap with the title and is unlearnable from it.
func Learn(title, attribute, value string) (Rule, bool) {
	value = strings.TrimSpace(value)
	if title == "" || value == "" {
		return Rule{}, false
	}

	// Single-letter grade/condition values get a boundary regex instead of
	// failing the minimum-length floor.
	if len(value) == 1 && IsGradeOrCondition(attribute) {
		if !tokenize.WordInText(value, title) {
			return Rule{}, false
		}
		return Rule{Attribute: attribute, Value: value, Pattern: BoundaryRegexPattern(value)}, true
	}

	titleWords := tokenize.Words(title)
	valueWords := tokenize.Words(value)
	if pat, ok := extractBest(title, value, titleWords.Intersect(valueWords)); ok {
		return Rule{Attribute: attribute, Value: value, Pattern: pat}, true
	}

	// Fallback: sliding-window substrings for titles whose overlap does not
	// align with word boundaries in the value text.
	titleSubs := tokenize.Substrings(title, fallbackMinLen, fallbackMaxLen)
	valueSubs := tokenize.Substrings(value, fallbackMinLen, fallbackMaxLen)
	if pat, ok := extractBest(title, value, titleSubs.Intersect(valueSubs)); ok {
		return Rule{Attribute: attribute, Value: value, Pattern: pat}, true
	}

	return Rule{}, false
}

// extractBest picks a pattern for value against title, in priority order:
// exact contiguous match, all significant words present, longest overlapping
// candidate token. More specific shapes generalize more safely, so exact
// beats word-set beats generic token.
func extractBest(title, value string, candidates tokenize.Set) (Pattern, bool) {
	titleLower := strings.ToLower(title)
	valueLower := strings.ToLower(strings.TrimSpace(value))

	// Priority 1: the whole value appears verbatim.
	if len(valueLower) >= MinLength {
		if tokenize.WordInText(valueLower, titleLower) {
			return LiteralPattern(valueLower), true
		}
		// Multi-word values may abut punctuation that defeats the boundary
		// anchors; accept a plain substring hit for those.
		if strings.Contains(valueLower, " ") && strings.Contains(titleLower, valueLower) {
			return LiteralPattern(valueLower), true
		}
	}

	// Priority 2: every significant word of the value appears somewhere.
	significant := significantWords(value)
	if len(significant) >= 2 {
		all := true
		for _, w := range significant {
			if !tokenize.WordInText(w, titleLower) {
				all = false
				break
			}
		}
		if all {
			return AllOfPattern(significant), true
		}
	}

	// Priority 3: the longest shared token that stands at a word boundary.
	if len(candidates) == 0 {
		return Pattern{}, false
	}
	var valid []string
	for tok := range candidates {
		if len(tok) >= MinLength {
			valid = append(valid, tok)
		}
	}
	// Length descending, then lexicographic, so ties resolve the same way
	// on every run.
	sort.Slice(valid, func(i, j int) bool {
		if len(valid[i]) != len(valid[j]) {
			return len(valid[i]) > len(valid[j])
		}
		return valid[i] < valid[j]
	})
	for _, tok := range valid {
		if tokenize.WordInText(tok, titleLower) {
			return LiteralPattern(tok), true
		}
	}

	// No candidate survives whole-word matching. An arbitrary substring here
	// would produce junk rules like "la", so give up instead.
	return Pattern{}, false
}

// significantWords splits value on the tokenizer delimiters and keeps words
// long enough to carry a rule on their own.
func significantWords(value string) []string {
	words := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		switch r {
		case '/', '-', ',', '(', ')', ':', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})
	var out []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if len(w) >= MinLength {
			out = append(out, w)
		}
	}
	return out
}
