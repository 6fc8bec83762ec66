// Package report builds and persists the structured run artifact: summary
// counters, per-category coverage state, the full rule table, and the
// ordered per-SKU results. The file is rewritten after every SKU so a
// crashed run can resume from the last persisted SKU.
package report

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shopmind/attrmatch/pkg/attrmatch/rule"
)

// Summary aggregates run counters.
type Summary struct {
	TotalProcessed   int `json:"total_processed"`
	HTTPRequests     int `json:"http_requests"`
	RuleMatches      int `json:"rule_matches"`
	RulesLearned     int `json:"rules_learned"`
	UnlearnableCount int `json:"unlearnable_count"`
}

// CategoryReport is one category's requirement and coverage state.
type CategoryReport struct {
	Name         string   `json:"name"`
	Requirements []string `json:"requirements"`
	Covered      []string `json:"covered"`
	Skipped      []string `json:"skipped"`
	AlwaysFetch  []string `json:"always_fetch"`
	Complete     bool     `json:"complete"`
}

// Unlearnable is one attribute that could not be learned for a SKU.
type Unlearnable struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value,omitempty"`
	Reason    string `json:"reason"`
}

// Result is the per-SKU output record.
type Result struct {
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Category    string            `json:"category"`
	Source      string            `json:"source"`
	Attributes  map[string]string `json:"attributes"`
	Unlearnable []Unlearnable     `json:"unlearnable,omitempty"`
}

// Report is the full run artifact.
type Report struct {
	RunID         string                    `json:"run_id"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	Summary       Summary                   `json:"summary"`
	ProcessedSKUs []string                  `json:"processed_skus"`
	Categories    map[string]CategoryReport `json:"categories"`
	Rules         map[string][]rule.Rule    `json:"rules"`
	Results       []Result                  `json:"results"`
}

// Detail is the diagnostic record for one learning failure, written to the
// side file for manual review.
type Detail struct {
	SKU           string      `json:"sku"`
	Title         string      `json:"title"`
	AttributeName string      `json:"attribute_name"`
	ExpectedValue string      `json:"expected_value,omitempty"`
	Reason        string      `json:"reason"`
	TitleTokens   []string    `json:"title_tokens"`
	ValueTokens   []string    `json:"value_tokens"`
	Candidates    []string    `json:"candidate_matches"`
	ExistingRules []rule.Rule `json:"existing_rules_for_attribute,omitempty"`
	Suggestions   []string    `json:"suggestions,omitempty"`
}

// NewRunID produces a fresh ULID for the run.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

// Writer persists the report and its unlearnable-details side file.
type Writer struct {
	path  string
	runID string
}

// NewWriter creates a writer for the given output path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, runID: NewRunID()}
}

// RunID returns the identifier stamped on every write.
func (w *Writer) RunID() string { return w.runID }

// Path returns the report destination.
func (w *Writer) Path() string { return w.path }

// DetailsPath derives the side-file path from the report path.
func (w *Writer) DetailsPath() string {
	return detailsPath(w.path)
}

func detailsPath(path string) string {
	if strings.HasSuffix(path, ".json") {
		return strings.TrimSuffix(path, ".json") + "_unlearnable_details.json"
	}
	return path + "_unlearnable_details.json"
}

// Write persists the report atomically: the file either holds the previous
// snapshot or the new one, never a partial write.
func (w *Writer) Write(rep *Report) error {
	rep.RunID = w.runID
	rep.GeneratedAt = time.Now().UTC()
	return writeJSON(w.path, rep)
}

type detailsFile struct {
	Summary struct {
		TotalUnlearnable int `json:"total_unlearnable"`
		UniqueAttributes int `json:"unique_attributes"`
		UniqueSKUs       int `json:"unique_skus"`
	} `json:"summary"`
	Unlearnable []Detail `json:"unlearnable"`
}

// WriteDetails persists the unlearnable diagnostics next to the report.
func (w *Writer) WriteDetails(details []Detail) error {
	if len(details) == 0 {
		return nil
	}
	var out detailsFile
	attrs := make(map[string]struct{})
	skus := make(map[string]struct{})
	for _, d := range details {
		attrs[d.AttributeName] = struct{}{}
		skus[d.SKU] = struct{}{}
	}
	out.Summary.TotalUnlearnable = len(details)
	out.Summary.UniqueAttributes = len(attrs)
	out.Summary.UniqueSKUs = len(skus)
	out.Unlearnable = details
	return writeJSON(w.DetailsPath(), &out)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Load reads a previously written report. A missing file is not an error;
// it returns nil so callers can start fresh.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &rep, nil
}

// ProcessedSet returns the processed SKUs as a set for resume checks.
func (r *Report) ProcessedSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.ProcessedSKUs))
	for _, sku := range r.ProcessedSKUs {
		out[sku] = struct{}{}
	}
	return out
}
