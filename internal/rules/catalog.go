package rules

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is a seed set of categories and universal rules.
type Catalog struct {
	Categories []Category `yaml:"categories"`
	Rules      []SeedRule `yaml:"rules"`
}

// SeedRule is a universal rule declared in a catalog.
type SeedRule struct {
	Kind     Kind   `yaml:"kind"`
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML catalog. Category codes must be unique
// and every seed rule must be a valid universal rule targeting a declared category.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	index := make(map[string]Category, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Code == "" {
			return nil, fmt.Errorf("catalog: category with empty code")
		}
		if _, dup := index[cat.Code]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %s", cat.Code)
		}
		index[cat.Code] = cat
	}

	for i := range c.Rules {
		cmd := c.Rules[i].command()
		if err := cmd.prepare(index); err != nil {
			return nil, fmt.Errorf("catalog rule %d (%s): %w", i, c.Rules[i].Pattern, err)
		}
		c.Rules[i].Pattern = cmd.Pattern
		c.Rules[i].Priority = cmd.Priority
	}

	return &c, nil
}

// Index returns the catalog's categories keyed by code.
func (c *Catalog) Index() map[string]Category {
	index := make(map[string]Category, len(c.Categories))
	for _, cat := range c.Categories {
		index[cat.Code] = cat
	}
	return index
}

func (s SeedRule) command() CreateCommand {
	return CreateCommand{
		Scope:    ScopeUniversal,
		Kind:     s.Kind,
		Pattern:  s.Pattern,
		Category: s.Category,
		Priority: s.Priority,
		Source:   SourceSeed,
	}
}
