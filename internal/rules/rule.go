// Package rules is the Rule Store: versioned classification rules, learned
// mappings accumulated from human corrections, and the canonical charge
// category catalog.
package rules

import (
	"time"

	"github.com/google/uuid"
)

// Scope determines whether a rule applies to every company or to one.
type Scope string

const (
	ScopeUniversal Scope = "UNIVERSAL"
	ScopeCompany   Scope = "COMPANY"
)

// Kind is the match strategy a rule uses against a normalized description.
type Kind string

const (
	KindExact Kind = "EXACT"
	KindRegex Kind = "REGEX"
	KindFuzzy Kind = "FUZZY"
)

// Source records how a rule came to exist.
type Source string

const (
	SourceManual    Source = "MANUAL"
	SourceSeed      Source = "SEED"
	SourceLearned   Source = "LEARNED"
	SourceCorrected Source = "HUMAN_CORRECTION"
)

// Rule is one classification rule. Pattern, category, scope, and kind never change
// after creation; an edit supersedes the rule with a new version.
type Rule struct {
	ID            uuid.UUID  `json:"id"`
	Scope         Scope      `json:"scope"`
	CompanyID     *uuid.UUID `json:"company_id"`
	Kind          Kind       `json:"kind"`
	Pattern       string     `json:"pattern"`
	Category      string     `json:"category"`
	Priority      int        `json:"priority"`
	Active        bool       `json:"active"`
	Version       int        `json:"version"`
	SupersedesID  *uuid.UUID `json:"supersedes_id"`
	Source        Source     `json:"source"`
	UsageCount    int64      `json:"usage_count"`
	LastMatchedAt *time.Time `json:"last_matched_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// LearnedMapping is the accumulated evidence for one normalized description within
// one company scope. Streak counts consecutive corrections agreeing with Category.
type LearnedMapping struct {
	ID               uuid.UUID  `json:"id"`
	Description      string     `json:"description"`
	CompanyID        *uuid.UUID `json:"company_id"`
	Category         string     `json:"category"`
	Confidence       float64    `json:"confidence"`
	MatchCount       int        `json:"match_count"`
	Streak           int        `json:"streak"`
	Source           Source     `json:"source"`
	PromotedCategory *string    `json:"promoted_category"`
	RuleID           *uuid.UUID `json:"rule_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Promoted reports whether the mapping's current category has been turned into a rule.
func (m *LearnedMapping) Promoted() bool {
	return m.PromotedCategory != nil && *m.PromotedCategory == m.Category
}

// Category is one canonical charge category.
type Category struct {
	Code  string `json:"code" yaml:"code"`
	Name  string `json:"name" yaml:"name"`
	Group string `json:"group" yaml:"group"`
}

// CreateCommand carries the fields of a new rule.
type CreateCommand struct {
	Scope     Scope      `json:"scope"`
	CompanyID *uuid.UUID `json:"company_id"`
	Kind      Kind       `json:"kind"`
	Pattern   string     `json:"pattern"`
	Category  string     `json:"category"`
	Priority  int        `json:"priority"`
	Source    Source     `json:"-"`
}

// SupersedeCommand replaces a rule's pattern, category, or priority with a new version.
// Zero fields keep the current value.
type SupersedeCommand struct {
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

// LearnCommand records one human correction for a normalized description.
type LearnCommand struct {
	Description string
	CompanyID   *uuid.UUID
	Category    string
	Policy      LearnPolicy
}

// LearnPolicy controls learned-mapping confidence growth and promotion.
type LearnPolicy struct {
	Threshold int
	Base      float64
	Step      float64
	Cap       float64
	Priority  int
}

// Confidence returns min(Cap, Base + Step*matchCount).
func (p LearnPolicy) Confidence(matchCount int) float64 {
	return min(p.Cap, p.Base+p.Step*float64(matchCount))
}

// LearnResult is the post-upsert state of a mapping and, when this correction
// triggered promotion, the rule that was created.
type LearnResult struct {
	Mapping  LearnedMapping `json:"mapping"`
	Promoted bool           `json:"promoted"`
	Rule     *Rule          `json:"rule,omitempty"`
}

// Match records a rule that produced a final classification.
type Match struct {
	RuleID    uuid.UUID
	MatchedAt time.Time
}
