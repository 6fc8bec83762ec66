package config

import "fmt"

// Loader loads the settings file and filter definitions together.
type Loader struct {
	SettingsPath string
	// FiltersDir overrides the settings' filters directory when set.
	FiltersDir string
}

// Components holds everything loaded from configuration.
type Components struct {
	Settings Settings
	Filters  FilterDefinitions
}

// Load reads the settings file (defaults when no path is given) and the
// filter definitions it points at.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{Settings: DefaultSettings()}

	if l.SettingsPath != "" {
		s, err := LoadSettings(l.SettingsPath)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		comp.Settings = s
	}

	dir := comp.Settings.FiltersDir
	if l.FiltersDir != "" {
		dir = l.FiltersDir
	}

	filters, err := LoadFilterDir(dir, comp.Settings.FilterPrefix, comp.Settings.SkipFilterKeys)
	if err != nil {
		return nil, fmt.Errorf("load filter definitions: %w", err)
	}
	comp.Filters = filters

	return comp, nil
}
