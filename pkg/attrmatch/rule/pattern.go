package rule

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopmind/attrmatch/pkg/attrmatch/tokenize"
)

// Kind discriminates the three pattern shapes a match rule can take.
type Kind int

const (
	// KindLiteral is a single contiguous token matched at word boundaries.
	KindLiteral Kind = iota
	// KindAllOf is a list of words that must all appear, in any order.
	KindAllOf
	// KindRegex is a raw case-insensitive regular expression. Used for
	// single-letter grade/condition values, where the boundary anchors do
	// the work the minimum-length floor does for literals.
	KindRegex
)

// MinLength is the minimum length of a literal pattern, of each word in an
// AllOf pattern, and of a regex expression. Word-boundary matching keeps
// short rules from over-matching, so the floor can stay permissive.
const MinLength = 2

// Pattern is the tagged union of match rule shapes.
type Pattern struct {
	Kind    Kind
	Literal string
	Words   []string
	Expr    string
}

// LiteralPattern builds a contiguous-token pattern.
func LiteralPattern(tok string) Pattern {
	return Pattern{Kind: KindLiteral, Literal: tok}
}

// AllOfPattern builds an order-independent multi-word pattern.
func AllOfPattern(words []string) Pattern {
	return Pattern{Kind: KindAllOf, Words: words}
}

// RegexPattern builds a raw regex pattern.
func RegexPattern(expr string) Pattern {
	return Pattern{Kind: KindRegex, Expr: expr}
}

// BoundaryRegexPattern builds a regex pattern matching value as a standalone
// word, the shape used for single-letter grade/condition rules.
func BoundaryRegexPattern(value string) Pattern {
	return RegexPattern(`\b` + regexp.QuoteMeta(strings.ToLower(value)) + `\b`)
}

// Matches reports whether the pattern matches the given title.
func (p Pattern) Matches(title string) bool {
	switch p.Kind {
	case KindLiteral:
		return tokenize.WordInText(p.Literal, title)
	case KindAllOf:
		if len(p.Words) == 0 {
			return false
		}
		for _, w := range p.Words {
			if !tokenize.WordInText(w, title) {
				return false
			}
		}
		return true
	case KindRegex:
		re, err := regexp.Compile(`(?i)` + p.Expr)
		if err != nil {
			return false
		}
		return re.MatchString(title)
	}
	return false
}

// Length is the total matched-character length, the specificity proxy used
// when several rules of the same kind match one title.
func (p Pattern) Length() int {
	switch p.Kind {
	case KindLiteral:
		return len(p.Literal)
	case KindAllOf:
		total := 0
		for _, w := range p.Words {
			total += len(w)
		}
		return total
	case KindRegex:
		return len(p.Expr)
	}
	return 0
}

// Valid reports whether the pattern satisfies the minimum-length invariants.
func (p Pattern) Valid() bool {
	switch p.Kind {
	case KindLiteral:
		return len(p.Literal) >= MinLength
	case KindAllOf:
		if len(p.Words) < 2 {
			return false
		}
		for _, w := range p.Words {
			if len(w) < MinLength {
				return false
			}
		}
		return true
	case KindRegex:
		return len(p.Expr) >= MinLength
	}
	return false
}

// Equal reports structural equality.
func (p Pattern) Equal(other Pattern) bool {
	if p.Kind != other.Kind {
		return false
	}
	switch p.Kind {
	case KindLiteral:
		return p.Literal == other.Literal
	case KindAllOf:
		if len(p.Words) != len(other.Words) {
			return false
		}
		for i := range p.Words {
			if p.Words[i] != other.Words[i] {
				return false
			}
		}
		return true
	case KindRegex:
		return p.Expr == other.Expr
	}
	return false
}

// String renders the pattern for logs.
func (p Pattern) String() string {
	switch p.Kind {
	case KindLiteral:
		return fmt.Sprintf("%q", p.Literal)
	case KindAllOf:
		return fmt.Sprintf("%v", p.Words)
	case KindRegex:
		return fmt.Sprintf("regex(%s)", p.Expr)
	}
	return "invalid"
}

type regexEnvelope struct {
	Regex string `json:"regex"`
}

// MarshalJSON encodes the pattern in its wire shape: a bare string for
// literals, an array for all-of lists, and {"regex": ...} for regexes.
func (p Pattern) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case KindLiteral:
		return json.Marshal(p.Literal)
	case KindAllOf:
		return json.Marshal(p.Words)
	case KindRegex:
		return json.Marshal(regexEnvelope{Regex: p.Expr})
	}
	return nil, fmt.Errorf("marshal pattern: unknown kind %d", p.Kind)
}

// UnmarshalJSON decodes any of the three wire shapes.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, `"`):
		var lit string
		if err := json.Unmarshal(data, &lit); err != nil {
			return err
		}
		*p = LiteralPattern(lit)
	case strings.HasPrefix(trimmed, `[`):
		var words []string
		if err := json.Unmarshal(data, &words); err != nil {
			return err
		}
		*p = AllOfPattern(words)
	case strings.HasPrefix(trimmed, `{`):
		var env regexEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		if env.Regex == "" {
			return fmt.Errorf("unmarshal pattern: empty regex envelope")
		}
		*p = RegexPattern(env.Regex)
	default:
		return fmt.Errorf("unmarshal pattern: unrecognized shape %s", trimmed)
	}
	return nil
}
