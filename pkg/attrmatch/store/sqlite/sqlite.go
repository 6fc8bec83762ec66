// Package sqlite implements store.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shopmind/attrmatch/pkg/attrmatch/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and the schema
// initialized.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS match_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attribute_name TEXT NOT NULL,
	attribute_value TEXT NOT NULL,
	pattern TEXT NOT NULL,
	source_sku TEXT,
	source_title TEXT,
	UNIQUE(attribute_name, attribute_value, pattern)
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY,
	name TEXT,
	configured INTEGER NOT NULL DEFAULT 0,
	verify_started INTEGER NOT NULL DEFAULT 0,
	verify_count INTEGER NOT NULL DEFAULT 0,
	known_attrs TEXT
);

CREATE TABLE IF NOT EXISTS category_requirements (
	category_id INTEGER NOT NULL,
	attribute_name TEXT NOT NULL,
	is_skipped INTEGER NOT NULL DEFAULT 0,
	always_fetch INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL DEFAULT 0,
	UNIQUE(category_id, attribute_name),
	FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sku_results (
	sku TEXT PRIMARY KEY,
	title TEXT,
	category TEXT,
	source TEXT NOT NULL,
	attributes TEXT,
	unlearnable TEXT,
	processed_at TEXT,
	seq INTEGER
);

CREATE INDEX IF NOT EXISTS idx_match_rules_attr ON match_rules(attribute_name);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveRules inserts rules in one transaction, ignoring exact duplicates.
func (s *sqliteStore) SaveRules(ctx context.Context, rules []store.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO match_rules
		(attribute_name, attribute_value, pattern, source_sku, source_title)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rules {
		if _, err := stmt.ExecContext(ctx, r.AttributeName, r.AttributeValue, r.Pattern, r.SourceSKU, r.SourceTitle); err != nil {
			return fmt.Errorf("insert rule %s=%s: %w", r.AttributeName, r.AttributeValue, err)
		}
	}
	return tx.Commit()
}

// LoadRules returns all rules in insertion order.
func (s *sqliteStore) LoadRules(ctx context.Context) ([]store.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attribute_name, attribute_value, pattern, source_sku, source_title
		FROM match_rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Rule
	for rows.Next() {
		var r store.Rule
		var sku, title sql.NullString
		if err := rows.Scan(&r.AttributeName, &r.AttributeValue, &r.Pattern, &sku, &title); err != nil {
			return nil, err
		}
		r.SourceSKU = sku.String
		r.SourceTitle = title.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCategory replaces the category row and its requirement rows in one
// transaction.
func (s *sqliteStore) SaveCategory(ctx context.Context, cat store.Category, reqs []store.Requirement) error {
	known, err := json.Marshal(cat.KnownAttrs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO categories (id, name, configured, verify_started, verify_count, known_attrs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			configured=excluded.configured,
			verify_started=excluded.verify_started,
			verify_count=excluded.verify_count,
			known_attrs=excluded.known_attrs`,
		cat.ID, cat.Name, boolInt(cat.Configured), boolInt(cat.VerifyStarted), cat.VerifyCount, string(known)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_requirements WHERE category_id = ?`, cat.ID); err != nil {
		return err
	}
	for i, req := range reqs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO category_requirements (category_id, attribute_name, is_skipped, always_fetch, position)
			VALUES (?, ?, ?, ?, ?)`,
			cat.ID, req.AttributeName, boolInt(req.Skipped), boolInt(req.AlwaysFetch), i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadCategories returns all category rows.
func (s *sqliteStore) LoadCategories(ctx context.Context) ([]store.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, configured, verify_started, verify_count, known_attrs
		FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Category
	for rows.Next() {
		var c store.Category
		var name, known sql.NullString
		var configured, started int
		if err := rows.Scan(&c.ID, &name, &configured, &started, &c.VerifyCount, &known); err != nil {
			return nil, err
		}
		c.Name = name.String
		c.Configured = configured != 0
		c.VerifyStarted = started != 0
		if known.String != "" {
			if err := json.Unmarshal([]byte(known.String), &c.KnownAttrs); err != nil {
				return nil, fmt.Errorf("category %d known attrs: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadRequirements returns the requirement rows for one category in
// declaration order.
func (s *sqliteStore) LoadRequirements(ctx context.Context, categoryID int64) ([]store.Requirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attribute_name, is_skipped, always_fetch
		FROM category_requirements WHERE category_id = ? ORDER BY position`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Requirement
	for rows.Next() {
		var r store.Requirement
		var skipped, always int
		if err := rows.Scan(&r.AttributeName, &skipped, &always); err != nil {
			return nil, err
		}
		r.Skipped = skipped != 0
		r.AlwaysFetch = always != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendResult upserts the per-SKU result row.
func (s *sqliteStore) AppendResult(ctx context.Context, rec store.SkuRecord) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return err
	}
	unlearnable, err := json.Marshal(rec.Unlearnable)
	if err != nil {
		return err
	}
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM sku_results`).Scan(&next); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sku_results (sku, title, category, source, attributes, unlearnable, processed_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sku) DO UPDATE SET
			title=excluded.title,
			category=excluded.category,
			source=excluded.source,
			attributes=excluded.attributes,
			unlearnable=excluded.unlearnable,
			processed_at=excluded.processed_at`,
		rec.SKU, rec.Title, rec.Category, rec.Source, string(attrs), string(unlearnable),
		processedAt.Format(time.RFC3339), next.Int64+1); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadResults returns results in processing order.
func (s *sqliteStore) LoadResults(ctx context.Context) ([]store.SkuRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, title, category, source, attributes, unlearnable, processed_at
		FROM sku_results ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.SkuRecord
	for rows.Next() {
		var rec store.SkuRecord
		var title, category, attrs, unlearnable, processedAt sql.NullString
		if err := rows.Scan(&rec.SKU, &title, &category, &rec.Source, &attrs, &unlearnable, &processedAt); err != nil {
			return nil, err
		}
		rec.Title = title.String
		rec.Category = category.String
		if attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("result %s attributes: %w", rec.SKU, err)
			}
		}
		if unlearnable.String != "" {
			if err := json.Unmarshal([]byte(unlearnable.String), &rec.Unlearnable); err != nil {
				return nil, fmt.Errorf("result %s unlearnable: %w", rec.SKU, err)
			}
		}
		if processedAt.String != "" {
			if ts, err := time.Parse(time.RFC3339, processedAt.String); err == nil {
				rec.ProcessedAt = ts
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ProcessedSKUs returns the set of SKUs with a recorded result.
func (s *sqliteStore) ProcessedSKUs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sku FROM sku_results`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		out[sku] = struct{}{}
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
