package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Wire formats a schedule source can publish.
const (
	SourceFormatRegion = "region"
	SourceFormatYasno  = "yasno"
)

// SourceMapping represents a single schedule source → URL mapping. Format
// selects the wire format; empty means the outage-region format.
type SourceMapping struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Group   string        `yaml:"group"`
	Format  string        `yaml:"format,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SourcesFile is the parsed YAML structure for the schedule source list:
// sources: [{name, url, group, format, timeout}]. List order is priority
// order.
type SourcesFile struct {
	Sources []SourceMapping `yaml:"sources"`
}

// LoadSourcesFile parses a YAML schedule-sources file from the given path.
// Returns nil if path is empty (no sources configured).
func LoadSourcesFile(path string) ([]SourceMapping, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var sf SourcesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	if err := validateSources(sf.Sources); err != nil {
		return nil, err
	}

	return sf.Sources, nil
}

// validateSources ensures all source mappings are valid.
func validateSources(sources []SourceMapping) error {
	if len(sources) == 0 {
		return fmt.Errorf("sources file contains no sources")
	}

	seen := make(map[string]bool)

	for i, s := range sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}

		if s.URL == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}

		if err := validateURL(s.URL, "url"); err != nil {
			return fmt.Errorf("source %q: %w", s.Name, err)
		}

		if s.Group == "" {
			return fmt.Errorf("source %q: group is required", s.Name)
		}

		if seen[s.Name] {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		seen[s.Name] = true

		switch s.Format {
		case "", SourceFormatRegion, SourceFormatYasno:
		default:
			return fmt.Errorf("source %q: unknown format %q", s.Name, s.Format)
		}

		if s.Timeout < 0 {
			return fmt.Errorf("source %q: timeout cannot be negative", s.Name)
		}
	}

	return nil
}
