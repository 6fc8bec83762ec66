// Package store defines the persistence contract for learned rules,
// category requirement state, and per-SKU results.
package store

import (
	"context"
	"time"
)

// Rule is a persisted match rule. Pattern carries the JSON wire shape of
// the pattern (string, array, or regex envelope).
type Rule struct {
	AttributeName  string
	AttributeValue string
	Pattern        string
	SourceSKU      string
	SourceTitle    string
}

// Requirement is one (category, attribute) row. A requirement is exactly one
// of plain-required, skipped, or always-fetch.
type Requirement struct {
	AttributeName string
	Skipped       bool
	AlwaysFetch   bool
}

// Category is the persisted per-category verification state.
type Category struct {
	ID            int64
	Name          string
	Configured    bool
	VerifyStarted bool
	VerifyCount   int
	KnownAttrs    []string
}

// Unlearnable records one attribute that could not be learned for a SKU.
type Unlearnable struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value,omitempty"`
	Reason    string `json:"reason"`
}

// SkuRecord is the per-SKU output row.
type SkuRecord struct {
	SKU         string
	Title       string
	Category    string
	Source      string
	Attributes  map[string]string
	Unlearnable []Unlearnable
	ProcessedAt time.Time
}

// Store persists rules, category state, and results. Implementations must
// make each call transactional: resuming from the store never observes a
// half-written rule set or requirement list.
type Store interface {
	Close() error

	// Rules
	SaveRules(ctx context.Context, rules []Rule) error
	LoadRules(ctx context.Context) ([]Rule, error)

	// Categories
	SaveCategory(ctx context.Context, cat Category, reqs []Requirement) error
	LoadCategories(ctx context.Context) ([]Category, error)
	LoadRequirements(ctx context.Context, categoryID int64) ([]Requirement, error)

	// Results
	AppendResult(ctx context.Context, rec SkuRecord) error
	LoadResults(ctx context.Context) ([]SkuRecord, error)
	ProcessedSKUs(ctx context.Context) (map[string]struct{}, error)
}
