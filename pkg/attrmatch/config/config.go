// Package config loads run settings and filter definition files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// APISettings configures the product-detail API client.
type APISettings struct {
	BaseURL        string  `yaml:"base_url"`
	UserAgent      string  `yaml:"user_agent"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Settings is the YAML-backed run configuration.
type Settings struct {
	// ExcludedKeywords marks category names to skip entirely; a category is
	// excluded when its lower-cased name contains any keyword.
	ExcludedKeywords []string `yaml:"excluded_keywords"`

	// FiltersDir holds pre-seed filter definition JSON files.
	FiltersDir string `yaml:"filters_dir"`

	// FilterPrefix is the filename prefix identifying filter files
	// (e.g. "CEX_Xbox_360_Consoles.json").
	FilterPrefix string `yaml:"filter_prefix"`

	// SkipFilterKeys are filter-file keys that are not product attributes.
	SkipFilterKeys []string `yaml:"skip_filter_keys"`

	API APISettings `yaml:"api"`
}

// DefaultSettings returns the settings used when no config file is given.
func DefaultSettings() Settings {
	return Settings{
		ExcludedKeywords: []string{"software"},
		FilterPrefix:     "CEX_",
		SkipFilterKeys:   []string{"By Availability", "Stores", "By Category"},
		API: APISettings{
			RatePerSecond:  0.5,
			Burst:          1,
			TimeoutSeconds: 20,
		},
	}
}

// LoadSettings reads settings from a YAML file, filling unset fields with
// defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.API.RatePerSecond <= 0 {
		s.API.RatePerSecond = 0.5
	}
	if s.API.Burst <= 0 {
		s.API.Burst = 1
	}
	if s.API.TimeoutSeconds <= 0 {
		s.API.TimeoutSeconds = 20
	}
	return s, nil
}

// FilterDefinitions maps category name -> friendly attribute name -> allowed
// values, as loaded from filter definition files.
type FilterDefinitions map[string]map[string][]string

type filterAttribute struct {
	Options []string `json:"options"`
}

// LoadFilterFile parses one filter definition file. The category name is
// derived from the filename: prefix stripped, underscores become spaces.
func LoadFilterFile(path, prefix string, skipKeys []string) (string, map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var raw map[string]filterAttribute
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, fmt.Errorf("parse filter file %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	category := strings.ReplaceAll(strings.TrimPrefix(base, prefix), "_", " ")

	skip := make(map[string]struct{}, len(skipKeys))
	for _, k := range skipKeys {
		skip[k] = struct{}{}
	}

	attrs := make(map[string][]string)
	for friendly, def := range raw {
		if _, ok := skip[friendly]; ok {
			continue
		}
		if len(def.Options) > 0 {
			attrs[friendly] = def.Options
		}
	}
	return category, attrs, nil
}

// LoadFilterDir loads every filter file under dir matching the prefix.
// Unreadable files are skipped; a missing directory yields empty
// definitions, since pre-seeding is optional.
func LoadFilterDir(dir, prefix string, skipKeys []string) (FilterDefinitions, error) {
	defs := make(FilterDefinitions)
	if dir == "" {
		return defs, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return defs, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		category, attrs, err := LoadFilterFile(filepath.Join(dir, name), prefix, skipKeys)
		if err != nil {
			continue
		}
		if len(attrs) > 0 {
			defs[category] = attrs
		}
	}
	return defs, nil
}
