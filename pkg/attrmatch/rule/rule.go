// Package rule learns textual match rules from (title, attribute value)
// pairs and applies stored rules to predict attribute values from new titles.
package rule

import "strings"

// PreloadedSource marks rules derived from filter definition files rather
// than from a concrete SKU.
const PreloadedSource = "preloaded"

// Rule predicts one attribute value from a product title.
type Rule struct {
	Attribute   string  `json:"attribute"`
	Value       string  `json:"value"`
	Pattern     Pattern `json:"match_rule"`
	SourceSKU   string  `json:"source_sku,omitempty"`
	SourceTitle string  `json:"source_title,omitempty"`
}

// IsGradeOrCondition reports whether an attribute name denotes a condition
// grade. Feeds disagree on naming ("grade", "condition", "item_condition"),
// so this is a substring check on the lower-cased name.
func IsGradeOrCondition(attribute string) bool {
	name := strings.ToLower(strings.TrimSpace(attribute))
	if name == "" {
		return false
	}
	return strings.Contains(name, "grade") || strings.Contains(name, "condition")
}
