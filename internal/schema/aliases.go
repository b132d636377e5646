// Package schema holds the declarative column-alias tables used to
// reconcile schema drift between input batches. New aliases are
// configuration, not code: the tables can be replaced from a YAML file.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AliasRule maps a canonical column name to the drifted names batches
// are allowed to use for it.
type AliasRule struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

// AliasConfig is the on-disk shape of an alias configuration file.
type AliasConfig struct {
	Apps    []AliasRule `yaml:"apps"`
	Reviews []AliasRule `yaml:"reviews"`
}

// AliasTable resolves drifted column names for one entity type.
type AliasTable struct {
	canonical map[string]bool
	byAlias   map[string]string
	rank      map[string]int
}

// NewAliasTable builds a lookup table from alias rules. The position of
// an alias within its rule decides precedence when a record carries more
// than one alias of the same canonical column.
func NewAliasTable(rules []AliasRule) *AliasTable {
	t := &AliasTable{
		canonical: make(map[string]bool, len(rules)),
		byAlias:   make(map[string]string),
		rank:      make(map[string]int),
	}
	for _, rule := range rules {
		t.canonical[rule.Canonical] = true
		for i, alias := range rule.Aliases {
			t.byAlias[alias] = rule.Canonical
			t.rank[alias] = i
		}
	}
	return t
}

// Rename records one applied alias substitution.
type Rename struct {
	From string
	To   string
}

// Resolve renames recognized aliases in a raw record to their canonical
// names. A rename only happens when the canonical name is not already
// present, so a batch carrying both keeps the canonical value; the alias
// then passes through under its own name and the store preserves it as
// an extra column. When a record carries two aliases of the same
// canonical, the one listed first in the rule wins and the other passes
// through, so the outcome never depends on map iteration order. Keys
// that are neither canonical nor aliased pass through untouched.
func (t *AliasTable) Resolve(record map[string]any) (map[string]any, []Rename) {
	resolved := make(map[string]any, len(record))
	var renames []Rename

	winner := make(map[string]string)
	for key := range record {
		canonical, ok := t.byAlias[key]
		if !ok || t.canonical[key] {
			continue
		}
		if _, exists := record[canonical]; exists {
			continue
		}
		if prev, contested := winner[canonical]; !contested || t.rank[key] < t.rank[prev] {
			winner[canonical] = key
		}
	}

	for key, value := range record {
		canonical, ok := t.byAlias[key]
		if !ok || t.canonical[key] || winner[canonical] != key {
			resolved[key] = value
			continue
		}
		resolved[canonical] = value
		renames = append(renames, Rename{From: key, To: canonical})
	}

	return resolved, renames
}

// LoadAliasConfig loads alias tables from a YAML file. Entities absent
// from the file fall back to the built-in defaults.
func LoadAliasConfig(path string) (apps, reviews *AliasTable, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading alias config: %w", err)
	}

	var cfg AliasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing alias config: %w", err)
	}

	apps = DefaultAppAliases()
	if len(cfg.Apps) > 0 {
		apps = NewAliasTable(cfg.Apps)
	}
	reviews = DefaultReviewAliases()
	if len(cfg.Reviews) > 0 {
		reviews = NewAliasTable(cfg.Reviews)
	}
	return apps, reviews, nil
}

// DefaultAppAliases returns the built-in alias table for app catalog batches.
func DefaultAppAliases() *AliasTable {
	return NewAliasTable([]AliasRule{
		{Canonical: "appId", Aliases: []string{"app_id", "id"}},
		{Canonical: "title", Aliases: []string{"name", "app_name"}},
		{Canonical: "developer", Aliases: []string{"developer_name", "publisher"}},
		{Canonical: "score", Aliases: []string{"rating", "avg_rating"}},
		{Canonical: "ratings", Aliases: []string{"rating_count", "num_ratings"}},
		{Canonical: "installs", Aliases: []string{"install_count", "downloads"}},
		{Canonical: "genre", Aliases: []string{"category"}},
		{Canonical: "price", Aliases: []string{"price_usd"}},
	})
}

// DefaultReviewAliases returns the built-in alias table for review batches.
func DefaultReviewAliases() *AliasTable {
	return NewAliasTable([]AliasRule{
		{Canonical: "reviewId", Aliases: []string{"review_id", "id"}},
		{Canonical: "score", Aliases: []string{"rating", "stars"}},
		{Canonical: "content", Aliases: []string{"review_text", "text", "body"}},
		{Canonical: "thumbsUpCount", Aliases: []string{"thumbs_up_count", "helpful"}},
		{Canonical: "at", Aliases: []string{"review_date", "created_at", "date"}},
		{Canonical: "userName", Aliases: []string{"user_name", "author"}},
		{Canonical: "app_id", Aliases: []string{"appId", "application_id"}},
	})
}
