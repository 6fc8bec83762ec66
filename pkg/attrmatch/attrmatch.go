// Package attrmatch is the attribute match-rule learning engine: given
// product titles and ground-truth attribute values from an external source,
// it derives minimal textual match rules and uses them to predict attributes
// for future SKUs without re-fetching.
package attrmatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/shopmind/attrmatch/pkg/attrmatch/category"
	"github.com/shopmind/attrmatch/pkg/attrmatch/config"
	"github.com/shopmind/attrmatch/pkg/attrmatch/report"
	"github.com/shopmind/attrmatch/pkg/attrmatch/rule"
	"github.com/shopmind/attrmatch/pkg/attrmatch/store"
	"github.com/shopmind/attrmatch/pkg/attrmatch/store/memstore"
)

// Source labels how a SKU result was produced.
type Source string

const (
	// SourceRuleMatch means every learnable required attribute was
	// predicted from stored rules without an external fetch.
	SourceRuleMatch Source = "rule_match"
	// SourceHTTP means an external fetch was performed (successfully or
	// not) for this SKU.
	SourceHTTP Source = "http"
	// SourceSkippedCategory means the SKU's category is excluded from
	// processing entirely.
	SourceSkippedCategory Source = "skipped_software_category"
)

// SKU is one listing to process.
type SKU struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// AttributeInfo is one attribute as reported by the external source.
type AttributeInfo struct {
	Name         string
	FriendlyName string
	Values       []string
}

// AttributeData is the ground-truth product detail for a SKU.
type AttributeData struct {
	CategoryID   int64
	CategoryName string
	Attributes   []AttributeInfo
}

// Fetcher is the remote product-detail lookup collaborator.
type Fetcher interface {
	FetchAttributeData(ctx context.Context, sku string) (AttributeData, error)
}

// DecisionAction enumerates advisor responses to a learning failure.
type DecisionAction int

const (
	// ActionSkip marks the attribute permanently skipped for the category.
	ActionSkip DecisionAction = iota
	// ActionAlwaysFetch marks the attribute un-teachable: every SKU in the
	// category keeps consulting the external source for it.
	ActionAlwaysFetch
	// ActionUseSuggestion stores the suggested pattern from the query.
	ActionUseSuggestion
	// ActionCustom stores the pattern carried in the decision.
	ActionCustom
)

// Decision is an advisor's answer for one unlearnable attribute.
type Decision struct {
	Action  DecisionAction
	Pattern rule.Pattern
}

// UnlearnableQuery describes a learning failure for an advisor.
type UnlearnableQuery struct {
	SKU           string
	Title         string
	CategoryName  string
	Attribute     string
	Value         string
	Suggestion    rule.Pattern
	HasSuggestion bool
}

// Advisor decides what to do when auto-learning fails. The automatic
// advisor always skips; an interactive implementation can plug in here.
type Advisor interface {
	OnUnlearnable(ctx context.Context, q UnlearnableQuery) Decision
}

type autoAdvisor struct{}

func (autoAdvisor) OnUnlearnable(context.Context, UnlearnableQuery) Decision {
	return Decision{Action: ActionSkip}
}

// AutoAdvisor returns the default non-interactive advisor.
func AutoAdvisor() Advisor { return autoAdvisor{} }

// Options configures a Processor.
type Options struct {
	Fetcher Fetcher
	Store   store.Store
	Report  *report.Writer
	Logger  *zap.Logger
	Advisor Advisor
	// ExcludedKeywords skips categories whose name contains any keyword
	// (case-insensitive). Defaults to {"software"}.
	ExcludedKeywords []string
	// Filters pre-seeds the rule store from filter definitions.
	Filters config.FilterDefinitions
}

// Processor drives the per-SKU decision loop. It owns the rule store and
// category tracker; all state flows through it rather than package globals.
// Not safe for concurrent use: one SKU is fully resolved before the next,
// since learning for SKU N+1 may depend on coverage just updated by SKU N.
type Processor struct {
	rules   *rule.Store
	cats    *category.Tracker
	fetch   Fetcher
	store   store.Store
	reportW *report.Writer
	log     *zap.Logger
	advisor Advisor

	excluded []string
	filters  config.FilterDefinitions
	friendly map[string]string

	results   []report.Result
	details   []report.Detail
	processed map[string]struct{}
	order     []string

	httpRequests int
	ruleMatches  int
}

// New creates a Processor.
func New(opts Options) *Processor {
	st := opts.Store
	if st == nil {
		st = memstore.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	advisor := opts.Advisor
	if advisor == nil {
		advisor = AutoAdvisor()
	}
	var excluded []string
	if opts.ExcludedKeywords == nil {
		excluded = []string{"software"}
	} else {
		excluded = make([]string, len(opts.ExcludedKeywords))
		for i, kw := range opts.ExcludedKeywords {
			excluded[i] = strings.ToLower(kw)
		}
	}
	filters := opts.Filters
	if filters == nil {
		filters = make(config.FilterDefinitions)
	}

	return &Processor{
		rules:     rule.NewStore(),
		cats:      category.NewTracker(),
		fetch:     opts.Fetcher,
		store:     st,
		reportW:   opts.Report,
		log:       logger,
		advisor:   advisor,
		excluded:  excluded,
		filters:   filters,
		friendly:  make(map[string]string),
		processed: make(map[string]struct{}),
	}
}

// Rules exposes the rule store, primarily for tests and reporting.
func (p *Processor) Rules() *rule.Store { return p.rules }

// Categories exposes the category tracker.
func (p *Processor) Categories() *category.Tracker { return p.cats }

// Results returns the ordered result records so far.
func (p *Processor) Results() []report.Result { return p.results }

// Details returns the unlearnable diagnostics so far.
func (p *Processor) Details() []report.Detail { return p.details }

// LoadState restores rules, category state, and processed SKUs from the
// persistence store, then derives rule coverage for every configured
// category the way a fresh run would.
func (p *Processor) LoadState(ctx context.Context) error {
	rules, err := p.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	for _, r := range rules {
		var pat rule.Pattern
		if err := json.Unmarshal([]byte(r.Pattern), &pat); err != nil {
			p.log.Warn("skipping undecodable stored rule",
				zap.String("attribute", r.AttributeName),
				zap.String("pattern", r.Pattern))
			continue
		}
		p.rules.Add(rule.Rule{
			Attribute:   r.AttributeName,
			Value:       r.AttributeValue,
			Pattern:     pat,
			SourceSKU:   r.SourceSKU,
			SourceTitle: r.SourceTitle,
		})
	}

	cats, err := p.store.LoadCategories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	for _, c := range cats {
		reqs, err := p.store.LoadRequirements(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("load requirements for category %d: %w", c.ID, err)
		}
		snap := category.State{
			Name:          c.Name,
			Configured:    c.Configured,
			VerifyStarted: c.VerifyStarted,
			VerifyCount:   c.VerifyCount,
			KnownAttrs:    c.KnownAttrs,
		}
		// Skipped attributes stay in the requirement list: requirements only
		// grow, and fetched ground truth is still recorded for them.
		for _, req := range reqs {
			snap.Requirements = append(snap.Requirements, req.AttributeName)
			switch {
			case req.Skipped:
				snap.Skipped = append(snap.Skipped, req.AttributeName)
			case req.AlwaysFetch:
				snap.AlwaysFetch = append(snap.AlwaysFetch, req.AttributeName)
			}
		}
		if len(snap.Requirements) > 0 {
			snap.Configured = true
		}
		p.cats.Restore(c.ID, snap)

		// Coverage is derived, not stored: any requirement that already has
		// a rule counts as covered.
		for _, attr := range snap.Requirements {
			if p.rules.Has(attr) {
				p.cats.MarkCovered(c.ID, attr)
			}
		}
	}

	results, err := p.store.LoadResults(ctx)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	for _, rec := range results {
		res := report.Result{
			SKU:        rec.SKU,
			Title:      rec.Title,
			Category:   rec.Category,
			Source:     rec.Source,
			Attributes: rec.Attributes,
		}
		for _, u := range rec.Unlearnable {
			res.Unlearnable = append(res.Unlearnable, report.Unlearnable{
				Attribute: u.Attribute,
				Value:     u.Value,
				Reason:    u.Reason,
			})
		}
		p.results = append(p.results, res)
		p.processed[rec.SKU] = struct{}{}
		p.order = append(p.order, rec.SKU)
		if Source(rec.Source) == SourceRuleMatch {
			p.ruleMatches++
		}
	}

	// The processed set is authoritative for resume even when a result row
	// predates the current record shape and did not replay above.
	processed, err := p.store.ProcessedSKUs(ctx)
	if err != nil {
		return fmt.Errorf("load processed skus: %w", err)
	}
	for sku := range processed {
		p.processed[sku] = struct{}{}
	}

	p.log.Info("state loaded",
		zap.Int("rules", p.rules.Len()),
		zap.Int("categories", len(cats)),
		zap.Int("processed_skus", len(p.processed)))
	return nil
}

// RegisterFriendlyNames records friendly-name -> attribute-name mappings
// from a ground-truth response; filter files key attributes by friendly
// name, so pre-seeding depends on these.
func (p *Processor) RegisterFriendlyNames(attrs []AttributeInfo) {
	for _, a := range attrs {
		if a.Name != "" && a.FriendlyName != "" {
			p.friendly[a.FriendlyName] = a.Name
		}
	}
}

// normalizeCategoryName flattens case, spaces, dashes and underscores so
// "Playstation3 Consoles" and "Playstation_3_Consoles" compare equal.
func normalizeCategoryName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, " ", "")
}

// findFilterCategory fuzzy-matches a category name against the loaded
// filter definitions.
func (p *Processor) findFilterCategory(name string) (string, bool) {
	want := normalizeCategoryName(name)
	keys := make([]string, 0, len(p.filters))
	for k := range p.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		have := normalizeCategoryName(k)
		if have == want || strings.Contains(want, have) || strings.Contains(have, want) {
			return k, true
		}
	}
	return "", false
}

// PreloadFilters pre-generates literal rules from the filter definitions for
// one category, so known allowed values match before any fetch-and-learn.
// Longer values are stored first so the longest rule wins tie-breaks.
// Returns the number of rules created.
func (p *Processor) PreloadFilters(ctx context.Context, categoryName string) (int, error) {
	filterCat, ok := p.findFilterCategory(categoryName)
	if !ok {
		return 0, nil
	}

	var created []store.Rule
	friendlyNames := make([]string, 0, len(p.filters[filterCat]))
	for fn := range p.filters[filterCat] {
		friendlyNames = append(friendlyNames, fn)
	}
	sort.Strings(friendlyNames)

	count := 0
	for _, friendly := range friendlyNames {
		attr, ok := p.friendly[friendly]
		if !ok {
			continue
		}
		values := append([]string(nil), p.filters[filterCat][friendly]...)
		sort.SliceStable(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

		for _, value := range values {
			pattern := strings.ToLower(value)
			if len(pattern) < rule.MinLength {
				continue
			}
			r := rule.Rule{
				Attribute:   attr,
				Value:       value,
				Pattern:     rule.LiteralPattern(pattern),
				SourceSKU:   rule.PreloadedSource,
				SourceTitle: "Filter: " + filterCat,
			}
			if p.rules.Add(r) {
				created = append(created, toStoreRule(r))
				count++
			}
		}
	}

	if len(created) > 0 {
		if err := p.store.SaveRules(ctx, created); err != nil {
			return count, fmt.Errorf("persist preloaded rules: %w", err)
		}
		p.log.Info("pre-generated rules from filter definitions",
			zap.String("category", filterCat), zap.Int("rules", count))
	}
	return count, nil
}

func toStoreRule(r rule.Rule) store.Rule {
	pat, err := json.Marshal(r.Pattern)
	if err != nil {
		// Patterns built by this package always marshal; an invalid kind
		// would be a programming error surfaced in tests.
		pat = []byte(`""`)
	}
	return store.Rule{
		AttributeName:  r.Attribute,
		AttributeValue: r.Value,
		Pattern:        string(pat),
		SourceSKU:      r.SourceSKU,
		SourceTitle:    r.SourceTitle,
	}
}

// BuildReport assembles the run artifact from current state.
func (p *Processor) BuildReport() *report.Report {
	rep := &report.Report{
		Summary: report.Summary{
			TotalProcessed: len(p.results),
			HTTPRequests:   p.httpRequests,
			RuleMatches:    p.ruleMatches,
			RulesLearned:   p.rules.Len(),
		},
		ProcessedSKUs: append([]string(nil), p.order...),
		Categories:    make(map[string]report.CategoryReport),
		Rules:         make(map[string][]rule.Rule),
		Results:       append([]report.Result(nil), p.results...),
	}
	for _, res := range p.results {
		rep.Summary.UnlearnableCount += len(res.Unlearnable)
	}
	for _, id := range p.cats.IDs() {
		reqs, _ := p.cats.Requirements(id)
		if reqs == nil {
			reqs = []string{}
		}
		rep.Categories[strconv.FormatInt(id, 10)] = report.CategoryReport{
			Name:         p.cats.Name(id),
			Requirements: reqs,
			Covered:      p.cats.Covered(id),
			Skipped:      p.cats.Skipped(id),
			AlwaysFetch:  p.cats.AlwaysFetch(id),
			Complete:     p.cats.IsComplete(id),
		}
	}
	for _, attr := range p.rules.Attributes() {
		rep.Rules[attr] = append([]rule.Rule(nil), p.rules.Rules(attr)...)
	}
	return rep
}
