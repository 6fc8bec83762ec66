// Package category tracks per-category attribute requirements, rule
// coverage, and the verification window that forces ground-truth fetches
// after a category is first configured.
package category

import "sort"

// VerifyThreshold is the number of post-setup external fetches a category
// must see before rule-only matching is trusted. Learned rules can be subtly
// wrong (a "PS5" rule also matching "PS5 Pro" titles); the window catches
// those against ground truth.
const VerifyThreshold = 5

type stringSet map[string]struct{}

func (s stringSet) add(v string)           { s[v] = struct{}{} }
func (s stringSet) contains(v string) bool { _, ok := s[v]; return ok }

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type state struct {
	name string

	// requirements stays nil until the category is configured; nil is the
	// signal that the first SKU must take the fetch-and-setup path.
	requirements []string

	covered     stringSet
	skipped     stringSet
	alwaysFetch stringSet

	verifyStarted bool
	verifyCount   int
	knownAttrs    stringSet
}

func newState(name string) *state {
	return &state{
		name:        name,
		covered:     make(stringSet),
		skipped:     make(stringSet),
		alwaysFetch: make(stringSet),
		knownAttrs:  make(stringSet),
	}
}

// Tracker holds the per-category state for a processing run. It is owned by
// the single processing loop and is not safe for concurrent use.
type Tracker struct {
	categories map[int64]*state
	threshold  int
}

// NewTracker creates a tracker with the default verification threshold.
func NewTracker() *Tracker {
	return &Tracker{
		categories: make(map[int64]*state),
		threshold:  VerifyThreshold,
	}
}

func (t *Tracker) get(id int64) *state {
	st, ok := t.categories[id]
	if !ok {
		st = newState("")
		t.categories[id] = st
	}
	return st
}

// Register records a category's display name, initializing tracking for it.
func (t *Tracker) Register(id int64, name string) {
	st := t.get(id)
	if name != "" {
		st.name = name
	}
}

// Name returns the registered display name for a category.
func (t *Tracker) Name(id int64) string {
	if st, ok := t.categories[id]; ok {
		return st.name
	}
	return ""
}

// IDs returns every tracked category ID, sorted.
func (t *Tracker) IDs() []int64 {
	out := make([]int64, 0, len(t.categories))
	for id := range t.categories {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetRequirements declares the attribute set the category must satisfy.
// Idempotent; replaces any prior list.
func (t *Tracker) SetRequirements(id int64, attrs []string) {
	st := t.get(id)
	st.requirements = make([]string, len(attrs))
	copy(st.requirements, attrs)
}

// Requirements returns the required attributes and whether requirements have
// ever been configured for the category.
func (t *Tracker) Requirements(id int64) ([]string, bool) {
	st, ok := t.categories[id]
	if !ok || st.requirements == nil {
		return nil, false
	}
	out := make([]string, len(st.requirements))
	copy(out, st.requirements)
	return out, true
}

// MarkCovered records that a rule now predicts this attribute in this
// category.
func (t *Tracker) MarkCovered(id int64, attribute string) {
	t.get(id).covered.add(attribute)
}

// IsCovered reports whether the attribute has rule coverage.
func (t *Tracker) IsCovered(id int64, attribute string) bool {
	st, ok := t.categories[id]
	return ok && st.covered.contains(attribute)
}

// MarkSkipped declares the attribute unlearnable for the category. Skipped
// attributes count as handled for completeness but their values are left
// empty when no rule matches. There is no unskip.
func (t *Tracker) MarkSkipped(id int64, attribute string) {
	t.get(id).skipped.add(attribute)
}

// IsSkipped reports whether the attribute is skipped for the category.
func (t *Tracker) IsSkipped(id int64, attribute string) bool {
	st, ok := t.categories[id]
	return ok && st.skipped.contains(attribute)
}

// Skipped returns the skipped attributes, sorted.
func (t *Tracker) Skipped(id int64) []string {
	st, ok := t.categories[id]
	if !ok {
		return nil
	}
	return st.skipped.sorted()
}

// MarkAlwaysFetch declares the attribute un-teachable: the category must
// consult the external source for it on every SKU. The attribute stays in
// the requirement list so completeness still accounts for it.
func (t *Tracker) MarkAlwaysFetch(id int64, attribute string) {
	st := t.get(id)
	st.alwaysFetch.add(attribute)
	if st.requirements == nil {
		st.requirements = []string{}
	}
	for _, a := range st.requirements {
		if a == attribute {
			return
		}
	}
	st.requirements = append(st.requirements, attribute)
}

// IsAlwaysFetch reports whether the attribute forces external fetches.
func (t *Tracker) IsAlwaysFetch(id int64, attribute string) bool {
	st, ok := t.categories[id]
	return ok && st.alwaysFetch.contains(attribute)
}

// AlwaysFetch returns the always-fetch attributes, sorted.
func (t *Tracker) AlwaysFetch(id int64) []string {
	st, ok := t.categories[id]
	if !ok {
		return nil
	}
	return st.alwaysFetch.sorted()
}

// Covered returns the covered attributes, sorted.
func (t *Tracker) Covered(id int64) []string {
	st, ok := t.categories[id]
	if !ok {
		return nil
	}
	return st.covered.sorted()
}

// Missing returns the required attributes not yet covered, skipped, or
// marked always-fetch. The second return is false when requirements have
// never been configured, which callers must treat as "fetch and set up".
func (t *Tracker) Missing(id int64) ([]string, bool) {
	st, ok := t.categories[id]
	if !ok || st.requirements == nil {
		return nil, false
	}
	missing := []string{}
	for _, attr := range st.requirements {
		if st.covered.contains(attr) || st.skipped.contains(attr) || st.alwaysFetch.contains(attr) {
			continue
		}
		missing = append(missing, attr)
	}
	return missing, true
}

// IsComplete reports whether every requirement is covered, skipped, or
// always-fetch. Unconfigured categories are never complete.
func (t *Tracker) IsComplete(id int64) bool {
	missing, ok := t.Missing(id)
	return ok && len(missing) == 0
}

// StartVerification opens the verification window with the attribute names
// seen in the first ground-truth response.
func (t *Tracker) StartVerification(id int64, initialAttrs []string) {
	st := t.get(id)
	st.verifyStarted = true
	st.verifyCount = 0
	st.knownAttrs = make(stringSet)
	for _, a := range initialAttrs {
		st.knownAttrs.add(a)
	}
}

// InVerification reports whether the category still owes verification
// fetches. Categories that never started verification return false; the
// unconfigured-requirements path covers them instead.
func (t *Tracker) InVerification(id int64) bool {
	st, ok := t.categories[id]
	if !ok || !st.verifyStarted {
		return false
	}
	return st.verifyCount < t.threshold
}

// Verified reports whether the verification window has closed.
func (t *Tracker) Verified(id int64) bool {
	st, ok := t.categories[id]
	return ok && st.verifyStarted && st.verifyCount >= t.threshold
}

// IncrementVerify counts one verification fetch.
func (t *Tracker) IncrementVerify(id int64) {
	st := t.get(id)
	st.verifyStarted = true
	st.verifyCount++
}

// VerifyCount returns the verification fetches performed so far.
func (t *Tracker) VerifyCount(id int64) int {
	if st, ok := t.categories[id]; ok {
		return st.verifyCount
	}
	return 0
}

// VerifyThreshold returns the configured verification window size.
func (t *Tracker) VerifyThreshold() int {
	return t.threshold
}

// NewAttributes returns attributes present in seen but never observed for
// this category before, sorted.
func (t *Tracker) NewAttributes(id int64, seen []string) []string {
	st, ok := t.categories[id]
	fresh := make(stringSet)
	for _, a := range seen {
		if a == "" {
			continue
		}
		if !ok || !st.knownAttrs.contains(a) {
			fresh.add(a)
		}
	}
	return fresh.sorted()
}

// AddKnownAttributes extends the set of attributes observed for a category.
func (t *Tracker) AddKnownAttributes(id int64, attrs []string) {
	st := t.get(id)
	for _, a := range attrs {
		if a != "" {
			st.knownAttrs.add(a)
		}
	}
}

// KnownAttributes returns every attribute observed for a category, sorted.
func (t *Tracker) KnownAttributes(id int64) []string {
	st, ok := t.categories[id]
	if !ok {
		return nil
	}
	return st.knownAttrs.sorted()
}

// State is a serializable snapshot of one category's tracking data.
type State struct {
	Name          string
	Requirements  []string
	Covered       []string
	Skipped       []string
	AlwaysFetch   []string
	VerifyStarted bool
	VerifyCount   int
	KnownAttrs    []string
	Configured    bool
}

// Snapshot captures the category's state for persistence.
func (t *Tracker) Snapshot(id int64) State {
	st, ok := t.categories[id]
	if !ok {
		return State{}
	}
	snap := State{
		Name:          st.name,
		Covered:       st.covered.sorted(),
		Skipped:       st.skipped.sorted(),
		AlwaysFetch:   st.alwaysFetch.sorted(),
		VerifyStarted: st.verifyStarted,
		VerifyCount:   st.verifyCount,
		KnownAttrs:    st.knownAttrs.sorted(),
		Configured:    st.requirements != nil,
	}
	if st.requirements != nil {
		snap.Requirements = make([]string, len(st.requirements))
		copy(snap.Requirements, st.requirements)
	}
	return snap
}

// Restore loads a persisted snapshot into the tracker.
func (t *Tracker) Restore(id int64, snap State) {
	st := newState(snap.Name)
	if snap.Configured {
		st.requirements = make([]string, len(snap.Requirements))
		copy(st.requirements, snap.Requirements)
	}
	for _, a := range snap.Covered {
		st.covered.add(a)
	}
	for _, a := range snap.Skipped {
		st.skipped.add(a)
	}
	for _, a := range snap.AlwaysFetch {
		st.alwaysFetch.add(a)
	}
	st.verifyStarted = snap.VerifyStarted
	st.verifyCount = snap.VerifyCount
	for _, a := range snap.KnownAttrs {
		st.knownAttrs.add(a)
	}
	t.categories[id] = st
}
