package attrmatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shopmind/attrmatch/pkg/attrmatch/report"
	"github.com/shopmind/attrmatch/pkg/attrmatch/rule"
	"github.com/shopmind/attrmatch/pkg/attrmatch/store"
	"github.com/shopmind/attrmatch/pkg/attrmatch/tokenize"
)

var wordRe = regexp.MustCompile(`\b\w+\b`)

const (
	reasonNotInResponse = "required attribute not in response - cannot learn rule"
	reasonNoOverlap     = "auto-learning failed - no matching tokens between title and attribute value"
)

// Run processes listings sequentially. Already-processed SKUs are skipped,
// so an interrupted run resumes from the last persisted SKU. The loop stops
// cleanly between SKUs when the context is cancelled; no partial record is
// written for the interrupted SKU.
func (p *Processor) Run(ctx context.Context, categoryID int64, categoryName string, listings []SKU) error {
	p.cats.Register(categoryID, categoryName)

	// Existing categories pick up coverage from pre-seeded rules before any
	// SKU is touched.
	if reqs, ok := p.cats.Requirements(categoryID); ok {
		for _, attr := range reqs {
			if p.rules.Has(attr) {
				p.cats.MarkCovered(categoryID, attr)
			}
		}
	}

	for i, sku := range listings {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, done := p.processed[sku.ID]; done {
			continue
		}
		p.log.Info("processing sku",
			zap.Int("index", i+1), zap.Int("total", len(listings)),
			zap.String("sku", sku.ID), zap.String("title", sku.Title))
		if _, err := p.ProcessSKU(ctx, sku, categoryID, categoryName); err != nil {
			return fmt.Errorf("sku %s: %w", sku.ID, err)
		}
	}

	missing, ok := p.cats.Missing(categoryID)
	if ok && len(missing) == 0 {
		p.log.Info("category complete", zap.Int64("category", categoryID))
	} else if ok {
		p.log.Info("category still missing rules",
			zap.Int64("category", categoryID), zap.Strings("missing", missing))
	}
	return nil
}

// ProcessSKU resolves one SKU to a terminal result: rule match, external
// fetch (with learning), or category skip. Fetch failures are non-fatal and
// yield an http result with whatever partial data exists; only persistence
// failures and cancellation surface as errors.
func (p *Processor) ProcessSKU(ctx context.Context, sku SKU, categoryID int64, categoryName string) (report.Result, error) {
	res := report.Result{
		SKU:        sku.ID,
		Title:      sku.Title,
		Category:   categoryName,
		Attributes: make(map[string]string),
	}

	if p.categoryExcluded(categoryName) {
		res.Source = string(SourceSkippedCategory)
		return res, p.record(ctx, categoryID, res, nil)
	}

	forceFetch := false
	if p.cats.InVerification(categoryID) {
		remaining := p.cats.VerifyThreshold() - p.cats.VerifyCount(categoryID)
		p.log.Debug("category in verification phase",
			zap.Int64("category", categoryID), zap.Int("fetches_remaining", remaining))
		forceFetch = true
	}
	if always := p.cats.AlwaysFetch(categoryID); len(always) > 0 {
		p.log.Debug("forced fetch for always-fetch attributes",
			zap.Int64("category", categoryID), zap.Strings("attributes", always))
		forceFetch = true
	}

	// Rule-only path: every learnable required attribute must resolve from
	// stored rules. Skipped attributes stay absent rather than guessed.
	if required, ok := p.cats.Requirements(categoryID); ok && !forceFetch {
		matched := p.rules.Apply(sku.Title, required)
		var learnableMissing []string
		for _, attr := range required {
			if p.cats.IsAlwaysFetch(categoryID, attr) || p.cats.IsSkipped(categoryID, attr) {
				continue
			}
			if _, hit := matched[attr]; !hit {
				learnableMissing = append(learnableMissing, attr)
			}
		}
		if len(learnableMissing) == 0 {
			p.ruleMatches++
			res.Source = string(SourceRuleMatch)
			res.Attributes = matched
			p.log.Info("rule match", zap.String("sku", sku.ID), zap.Any("attributes", matched))
			return res, p.record(ctx, categoryID, res, nil)
		}
		p.log.Debug("rules incomplete, fetching",
			zap.String("sku", sku.ID), zap.Strings("missing", learnableMissing))
	}

	res.Source = string(SourceHTTP)
	p.httpRequests++

	data, err := p.fetch.FetchAttributeData(ctx, sku.ID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		p.log.Warn("fetch failed", zap.String("sku", sku.ID), zap.Error(err))
		return res, p.record(ctx, categoryID, res, nil)
	}

	if data.CategoryID != 0 && data.CategoryID != categoryID {
		p.log.Warn("category mismatch, continuing with expected category",
			zap.Int64("expected", categoryID), zap.String("expected_name", categoryName),
			zap.Int64("got", data.CategoryID), zap.String("got_name", data.CategoryName))
	}

	p.RegisterFriendlyNames(data.Attributes)

	newRules, err := p.learnFromFetch(ctx, sku, categoryID, categoryName, data, &res)
	if err != nil {
		return res, err
	}
	return res, p.record(ctx, categoryID, res, newRules)
}

// learnFromFetch folds a ground-truth response back into requirements,
// verification state, and the rule store.
func (p *Processor) learnFromFetch(ctx context.Context, sku SKU, categoryID int64, categoryName string, data AttributeData, res *report.Result) ([]store.Rule, error) {
	apiNames := make([]string, 0, len(data.Attributes))
	for _, a := range data.Attributes {
		if a.Name != "" {
			apiNames = append(apiNames, a.Name)
		}
	}

	// First contact with the category: take every reported attribute as
	// required and open the verification window.
	if _, ok := p.cats.Requirements(categoryID); !ok {
		p.cats.SetRequirements(categoryID, apiNames)
		p.cats.StartVerification(categoryID, apiNames)
		p.log.Info("category configured",
			zap.Int64("category", categoryID), zap.Strings("requirements", apiNames))
		if _, err := p.PreloadFilters(ctx, categoryName); err != nil {
			return nil, err
		}
		for _, attr := range apiNames {
			if p.rules.Has(attr) {
				p.cats.MarkCovered(categoryID, attr)
			}
		}
	}

	if len(data.Attributes) == 0 {
		p.log.Warn("no attribute data in response", zap.String("sku", sku.ID))
		if p.cats.InVerification(categoryID) {
			p.cats.IncrementVerify(categoryID)
		}
		return nil, nil
	}

	if p.cats.InVerification(categoryID) {
		if fresh := p.cats.NewAttributes(categoryID, apiNames); len(fresh) > 0 {
			current, _ := p.cats.Requirements(categoryID)
			p.cats.SetRequirements(categoryID, append(current, fresh...))
			p.log.Info("new attributes discovered during verification",
				zap.Int64("category", categoryID), zap.Strings("attributes", fresh))
		}
		p.cats.AddKnownAttributes(categoryID, apiNames)
		p.cats.IncrementVerify(categoryID)
		if p.cats.Verified(categoryID) {
			p.log.Info("verification complete",
				zap.Int64("category", categoryID), zap.Int("fetches", p.cats.VerifyCount(categoryID)))
		}
	}

	required, _ := p.cats.Requirements(categoryID)

	// Required attributes the source did not return at all: existing rules
	// may still predict them; otherwise the source will never teach us, so
	// stop re-fetching for them.
	inResponse := make(map[string]struct{}, len(apiNames))
	for _, n := range apiNames {
		inResponse[n] = struct{}{}
	}
	for _, attr := range required {
		if _, ok := inResponse[attr]; ok || p.cats.IsSkipped(categoryID, attr) || p.cats.IsAlwaysFetch(categoryID, attr) {
			continue
		}
		if matched := p.rules.Apply(sku.Title, []string{attr}); matched[attr] != "" {
			res.Attributes[attr] = matched[attr]
			continue
		}
		p.logDetail(sku, attr, "", reasonNotInResponse)
		res.Unlearnable = append(res.Unlearnable, report.Unlearnable{
			Attribute: attr, Reason: reasonNotInResponse,
		})
		p.cats.MarkSkipped(categoryID, attr)
		p.log.Info("attribute unlearnable: absent from source",
			zap.Int64("category", categoryID), zap.String("attribute", attr))
	}

	var newRules []store.Rule
	for _, attr := range data.Attributes {
		if attr.Name == "" || len(attr.Values) == 0 || !contains(required, attr.Name) {
			continue
		}
		value := attr.Values[0]
		res.Attributes[attr.Name] = value

		if p.cats.IsAlwaysFetch(categoryID, attr.Name) {
			continue
		}

		// Verification check: a stored rule only counts as coverage when
		// its prediction agrees with ground truth; a mismatch falls through
		// to a fresh extraction from the true value.
		if p.rules.Has(attr.Name) {
			matched := p.rules.Apply(sku.Title, []string{attr.Name})
			if matched[attr.Name] == value {
				p.cats.MarkCovered(categoryID, attr.Name)
				continue
			}
			if got, hit := matched[attr.Name]; hit {
				p.log.Warn("rule prediction disagrees with ground truth",
					zap.String("sku", sku.ID), zap.String("attribute", attr.Name),
					zap.String("predicted", got), zap.String("actual", value))
			}
		}

		if p.cats.IsSkipped(categoryID, attr.Name) {
			continue
		}

		learned, ok := rule.Learn(sku.Title, attr.Name, value)
		if !ok {
			p.logDetail(sku, attr.Name, value, reasonNoOverlap)
			res.Unlearnable = append(res.Unlearnable, report.Unlearnable{
				Attribute: attr.Name, Value: value, Reason: reasonNoOverlap,
			})
			learned, ok = p.consultAdvisor(ctx, sku, categoryID, categoryName, attr.Name, value)
			if !ok {
				continue
			}
		}

		stored := p.rules.Add(learned)
		p.cats.MarkCovered(categoryID, attr.Name)
		if stored {
			newRules = append(newRules, toStoreRule(withProvenance(learned, sku)))
			p.log.Info("learned rule",
				zap.String("attribute", attr.Name), zap.String("value", value),
				zap.String("pattern", learned.Pattern.String()))
		}
	}
	return newRules, nil
}

// consultAdvisor routes a learning failure through the advisor. The
// automatic advisor skips; interactive implementations may supply a pattern.
func (p *Processor) consultAdvisor(ctx context.Context, sku SKU, categoryID int64, categoryName, attribute, value string) (rule.Rule, bool) {
	q := UnlearnableQuery{
		SKU:          sku.ID,
		Title:        sku.Title,
		CategoryName: categoryName,
		Attribute:    attribute,
		Value:        value,
	}
	if first := firstWord(sku.Title); len(first) >= rule.MinLength {
		q.Suggestion = rule.LiteralPattern(first)
		q.HasSuggestion = true
	}

	decision := p.advisor.OnUnlearnable(ctx, q)
	switch decision.Action {
	case ActionAlwaysFetch:
		p.cats.MarkAlwaysFetch(categoryID, attribute)
		p.log.Info("attribute marked always-fetch",
			zap.Int64("category", categoryID), zap.String("attribute", attribute))
		return rule.Rule{}, false
	case ActionUseSuggestion:
		if q.HasSuggestion {
			return rule.Rule{Attribute: attribute, Value: value, Pattern: q.Suggestion}, true
		}
	case ActionCustom:
		if decision.Pattern.Valid() {
			return rule.Rule{Attribute: attribute, Value: value, Pattern: decision.Pattern}, true
		}
	}

	p.cats.MarkSkipped(categoryID, attribute)
	p.log.Info("attribute unlearnable: no token overlap",
		zap.Int64("category", categoryID), zap.String("attribute", attribute),
		zap.String("value", value))
	return rule.Rule{}, false
}

func withProvenance(r rule.Rule, sku SKU) rule.Rule {
	if r.SourceSKU == "" {
		r.SourceSKU = sku.ID
		r.SourceTitle = sku.Title
	}
	return r
}

// record persists the SKU result, any new rules, the category snapshot, and
// the rewritten report in that order. Persistence failure is the one fatal
// condition in the loop.
func (p *Processor) record(ctx context.Context, categoryID int64, res report.Result, newRules []store.Rule) error {
	p.results = append(p.results, res)
	p.processed[res.SKU] = struct{}{}
	p.order = append(p.order, res.SKU)

	if len(newRules) > 0 {
		if err := p.store.SaveRules(ctx, newRules); err != nil {
			return fmt.Errorf("persist rules: %w", err)
		}
	}
	if err := p.persistCategory(ctx, categoryID); err != nil {
		return err
	}

	rec := store.SkuRecord{
		SKU:        res.SKU,
		Title:      res.Title,
		Category:   res.Category,
		Source:     res.Source,
		Attributes: res.Attributes,
	}
	for _, u := range res.Unlearnable {
		rec.Unlearnable = append(rec.Unlearnable, store.Unlearnable{
			Attribute: u.Attribute, Value: u.Value, Reason: u.Reason,
		})
	}
	if err := p.store.AppendResult(ctx, rec); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	if p.reportW != nil {
		if err := p.reportW.Write(p.BuildReport()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if err := p.reportW.WriteDetails(p.details); err != nil {
			return fmt.Errorf("write unlearnable details: %w", err)
		}
	}
	return nil
}

func (p *Processor) persistCategory(ctx context.Context, categoryID int64) error {
	snap := p.cats.Snapshot(categoryID)
	cat := store.Category{
		ID:            categoryID,
		Name:          snap.Name,
		Configured:    snap.Configured,
		VerifyStarted: snap.VerifyStarted,
		VerifyCount:   snap.VerifyCount,
		KnownAttrs:    snap.KnownAttrs,
	}

	var reqs []store.Requirement
	skippedInReqs := make(map[string]struct{})
	for _, attr := range snap.Requirements {
		req := store.Requirement{AttributeName: attr}
		if p.cats.IsSkipped(categoryID, attr) {
			req.Skipped = true
			skippedInReqs[attr] = struct{}{}
		} else if p.cats.IsAlwaysFetch(categoryID, attr) {
			req.AlwaysFetch = true
		}
		reqs = append(reqs, req)
	}
	for _, attr := range snap.Skipped {
		if _, dup := skippedInReqs[attr]; dup {
			continue
		}
		if !contains(snap.Requirements, attr) {
			reqs = append(reqs, store.Requirement{AttributeName: attr, Skipped: true})
		}
	}

	if err := p.store.SaveCategory(ctx, cat, reqs); err != nil {
		return fmt.Errorf("persist category %d: %w", categoryID, err)
	}
	return nil
}

// logDetail captures the diagnostic context of a learning failure: the
// tokens tried, the candidate overlap, and what a reviewer might do.
func (p *Processor) logDetail(sku SKU, attribute, value, reason string) {
	titleTokens := tokenize.Words(sku.Title)
	valueTokens := tokenize.Words(value)
	candidates := titleTokens.Intersect(valueTokens)

	d := report.Detail{
		SKU:           sku.ID,
		Title:         sku.Title,
		AttributeName: attribute,
		ExpectedValue: value,
		Reason:        reason,
		TitleTokens:   sortedTokens(titleTokens, 30),
		ValueTokens:   sortedTokens(valueTokens, 0),
		Candidates:    sortedTokens(candidates, 0),
	}
	for _, r := range p.rules.Rules(attribute) {
		d.ExistingRules = append(d.ExistingRules, r)
	}

	if len(candidates) == 0 {
		d.Suggestions = append(d.Suggestions,
			"no common tokens found between title and value - value may not appear in title")
	} else {
		for _, c := range d.Candidates {
			if len(c) >= rule.MinLength {
				d.Suggestions = append(d.Suggestions, "try manual rule with: "+c)
				break
			}
		}
	}
	if value != "" {
		valueLower := strings.ToLower(value)
		if strings.Contains(strings.ToLower(sku.Title), valueLower) {
			d.Suggestions = append(d.Suggestions,
				fmt.Sprintf("value %q appears as substring in title - may need exact match rule", valueLower))
		}
	}

	p.details = append(p.details, d)
}

func sortedTokens(set tokenize.Set, limit int) []string {
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (p *Processor) categoryExcluded(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range p.excluded {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func firstWord(title string) string {
	return wordRe.FindString(strings.ToLower(title))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
