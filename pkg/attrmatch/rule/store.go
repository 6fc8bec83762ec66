package rule

import (
	"sort"
	"strings"

	"github.com/shopmind/attrmatch/pkg/attrmatch/tokenize"
)

// gradeFallbackLetters is tried when a grade/condition attribute has no
// matching rule and no known single-letter values.
var gradeFallbackLetters = []string{"A", "B", "C", "D", "E", "F", "G", "H"}

// Store holds learned rules per attribute name. It is owned state, not a
// package-level map; the processing loop is the only writer.
type Store struct {
	rules map[string][]Rule
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{rules: make(map[string][]Rule)}
}

// Add stores a rule. It returns false without storing when the pattern fails
// the minimum-length invariants or a rule with the same attribute, value and
// pattern already exists.
func (s *Store) Add(r Rule) bool {
	if r.Attribute == "" || !r.Pattern.Valid() {
		return false
	}
	for _, existing := range s.rules[r.Attribute] {
		if existing.Value == r.Value && existing.Pattern.Equal(r.Pattern) {
			return false
		}
	}
	s.rules[r.Attribute] = append(s.rules[r.Attribute], r)
	return true
}

// Len returns the total number of stored rules.
func (s *Store) Len() int {
	n := 0
	for _, list := range s.rules {
		n += len(list)
	}
	return n
}

// Attributes returns the attribute names with at least one rule, sorted.
func (s *Store) Attributes() []string {
	out := make([]string, 0, len(s.rules))
	for name := range s.rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether any rule exists for the attribute.
func (s *Store) Has(attribute string) bool {
	return len(s.rules[attribute]) > 0
}

// Rules returns the stored rules for one attribute.
func (s *Store) Rules(attribute string) []Rule {
	return s.rules[attribute]
}

// All returns every stored rule, ordered by attribute then insertion.
func (s *Store) All() []Rule {
	var out []Rule
	for _, name := range s.Attributes() {
		out = append(out, s.rules[name]...)
	}
	return out
}

// Apply matches stored rules against title and returns one predicted value
// per attribute. When required is nil, every attribute with a stored rule is
// considered. Attributes with no match are absent from the result.
//
// Among matching rules the most specific wins: AllOf patterns outrank regex
// patterns outrank literals, and within a kind the greatest total pattern
// length wins. First-match selection used to pick broad substrings over
// precise multi-word rules, which is why this ranks the full match set.
func (s *Store) Apply(title string, required []string) map[string]string {
	matched := make(map[string]string)
	if title == "" {
		return matched
	}

	attrs := required
	if attrs == nil {
		attrs = s.Attributes()
	}

	for _, attribute := range attrs {
		if best, ok := s.bestMatch(title, attribute); ok {
			matched[attribute] = best.Value
			continue
		}
		if IsGradeOrCondition(attribute) {
			if letter, ok := s.gradeLetterFallback(title, attribute); ok {
				matched[attribute] = letter
			}
		}
	}

	return matched
}

func (s *Store) bestMatch(title, attribute string) (Rule, bool) {
	var matching []Rule
	for _, r := range s.rules[attribute] {
		if r.Pattern.Matches(title) {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 {
		return Rule{}, false
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if ri, rj := kindRank(matching[i].Pattern.Kind), kindRank(matching[j].Pattern.Kind); ri != rj {
			return ri < rj
		}
		if li, lj := matching[i].Pattern.Length(), matching[j].Pattern.Length(); li != lj {
			return li > lj
		}
		return matching[i].Value < matching[j].Value
	})
	return matching[0], true
}

func kindRank(k Kind) int {
	switch k {
	case KindAllOf:
		return 0
	case KindRegex:
		return 1
	default:
		return 2
	}
}

// gradeLetterFallback tests standalone single letters against the title.
// Known single-letter values from stored rules narrow the alphabet; with no
// rules yet, the common grade letters are tried in order.
func (s *Store) gradeLetterFallback(title, attribute string) (string, bool) {
	var letters []string
	for _, r := range s.rules[attribute] {
		v := strings.TrimSpace(r.Value)
		if len(v) == 1 {
			letters = append(letters, strings.ToUpper(v))
		}
	}
	if len(letters) == 0 {
		letters = gradeFallbackLetters
	} else {
		sort.Strings(letters)
	}

	for _, letter := range letters {
		if tokenize.WordInText(letter, title) {
			return letter, true
		}
	}
	return "", false
}
