// Package memstore is an in-memory implementation of store.Store for tests
// and for runs that do not need durability.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/shopmind/attrmatch/pkg/attrmatch/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu           sync.RWMutex
	rules        []store.Rule
	categories   map[int64]store.Category
	requirements map[int64][]store.Requirement
	results      []store.SkuRecord
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		categories:   make(map[int64]store.Category),
		requirements: make(map[int64][]store.Requirement),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveRules appends rules that are not already present.
func (s *Store) SaveRules(ctx context.Context, rules []store.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rules {
		if s.hasRule(r) {
			continue
		}
		s.rules = append(s.rules, r)
	}
	return nil
}

func (s *Store) hasRule(r store.Rule) bool {
	for _, existing := range s.rules {
		if existing.AttributeName == r.AttributeName &&
			existing.AttributeValue == r.AttributeValue &&
			existing.Pattern == r.Pattern {
			return true
		}
	}
	return false
}

// LoadRules returns all stored rules.
func (s *Store) LoadRules(ctx context.Context) ([]store.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// SaveCategory replaces the category row and its requirement list.
func (s *Store) SaveCategory(ctx context.Context, cat store.Category, reqs []store.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[cat.ID] = cat
	stored := make([]store.Requirement, len(reqs))
	copy(stored, reqs)
	s.requirements[cat.ID] = stored
	return nil
}

// LoadCategories returns all category rows, sorted by ID.
func (s *Store) LoadCategories(ctx context.Context) ([]store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadRequirements returns the requirement rows for one category.
func (s *Store) LoadRequirements(ctx context.Context, categoryID int64) ([]store.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqs := s.requirements[categoryID]
	out := make([]store.Requirement, len(reqs))
	copy(out, reqs)
	return out, nil
}

// AppendResult records one processed SKU, replacing any previous record for
// the same SKU.
func (s *Store) AppendResult(ctx context.Context, rec store.SkuRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.results {
		if existing.SKU == rec.SKU {
			s.results[i] = rec
			return nil
		}
	}
	s.results = append(s.results, rec)
	return nil
}

// LoadResults returns results in processing order.
func (s *Store) LoadResults(ctx context.Context) ([]store.SkuRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.SkuRecord, len(s.results))
	copy(out, s.results)
	return out, nil
}

// ProcessedSKUs returns the set of SKUs with a recorded result.
func (s *Store) ProcessedSKUs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.results))
	for _, r := range s.results {
		out[r.SKU] = struct{}{}
	}
	return out, nil
}
