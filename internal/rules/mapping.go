package rules

import (
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
)

var ruleProjection = query.
	NewProjectionMap("public", "rules", "r").
	Project("id", "ID").
	Project("scope", "Scope").
	Project("company_id", "CompanyID").
	Project("kind", "Kind").
	Project("pattern", "Pattern").
	Project("category", "Category").
	Project("priority", "Priority").
	Project("active", "Active").
	Project("version", "Version").
	Project("supersedes_id", "SupersedesID").
	Project("source", "Source").
	Project("usage_count", "UsageCount").
	Project("last_matched_at", "LastMatchedAt").
	Project("created_at", "CreatedAt")

var ruleSort = []query.SortField{
	{Field: "Priority"},
	{Field: "CreatedAt"},
}

var learnedProjection = query.
	NewProjectionMap("public", "learned_mappings", "lm").
	Project("id", "ID").
	Project("description", "Description").
	Project("company_id", "CompanyID").
	Project("category", "Category").
	Project("confidence", "Confidence").
	Project("match_count", "MatchCount").
	Project("streak", "Streak").
	Project("source", "Source").
	Project("promoted_category", "PromotedCategory").
	Project("rule_id", "RuleID").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var learnedSort = query.SortField{Field: "UpdatedAt", Descending: true}

const ruleColumns = `id, scope, company_id, kind, pattern, category, priority, active,
	version, supersedes_id, source, usage_count, last_matched_at, created_at`

const learnedColumns = `id, description, company_id, category, confidence, match_count,
	streak, source, promoted_category, rule_id, created_at, updated_at`

// Filters narrows rule listings. Nil fields are ignored.
type Filters struct {
	Scope     *Scope     `json:"scope,omitempty"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	Kind      *Kind      `json:"kind,omitempty"`
	Category  *string    `json:"category,omitempty"`
	Active    *bool      `json:"active,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Scope", f.Scope).
		WhereEquals("CompanyID", f.CompanyID).
		WhereEquals("Kind", f.Kind).
		WhereEquals("Category", f.Category).
		WhereEquals("Active", f.Active)
}

func (f Filters) matches(r *Rule) bool {
	switch {
	case f.Scope != nil && r.Scope != *f.Scope:
		return false
	case f.CompanyID != nil && (r.CompanyID == nil || *r.CompanyID != *f.CompanyID):
		return false
	case f.Kind != nil && r.Kind != *f.Kind:
		return false
	case f.Category != nil && r.Category != *f.Category:
		return false
	case f.Active != nil && r.Active != *f.Active:
		return false
	}
	return true
}

// FiltersFromQuery extracts rule filters from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("scope"); s != "" {
		scope := Scope(s)
		f.Scope = &scope
	}
	if id, err := uuid.Parse(values.Get("company_id")); err == nil {
		f.CompanyID = &id
	}
	if k := values.Get("kind"); k != "" {
		kind := Kind(k)
		f.Kind = &kind
	}
	if c := values.Get("category"); c != "" {
		f.Category = &c
	}
	if a, err := strconv.ParseBool(values.Get("active")); err == nil {
		f.Active = &a
	}

	return f
}

// LearnedFilters narrows learned mapping listings. Nil fields are ignored.
type LearnedFilters struct {
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	Category  *string    `json:"category,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f LearnedFilters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("CompanyID", f.CompanyID).
		WhereEquals("Category", f.Category)
}

func (f LearnedFilters) matches(m *LearnedMapping) bool {
	if f.CompanyID != nil && (m.CompanyID == nil || *m.CompanyID != *f.CompanyID) {
		return false
	}
	if f.Category != nil && m.Category != *f.Category {
		return false
	}
	return true
}

// LearnedFiltersFromQuery extracts learned mapping filters from URL query parameters.
func LearnedFiltersFromQuery(values url.Values) LearnedFilters {
	var f LearnedFilters
	if id, err := uuid.Parse(values.Get("company_id")); err == nil {
		f.CompanyID = &id
	}
	if c := values.Get("category"); c != "" {
		f.Category = &c
	}
	return f
}

func scanRule(s repository.Scanner) (Rule, error) {
	var r Rule
	err := s.Scan(
		&r.ID,
		&r.Scope,
		&r.CompanyID,
		&r.Kind,
		&r.Pattern,
		&r.Category,
		&r.Priority,
		&r.Active,
		&r.Version,
		&r.SupersedesID,
		&r.Source,
		&r.UsageCount,
		&r.LastMatchedAt,
		&r.CreatedAt,
	)
	return r, err
}

func scanLearned(s repository.Scanner) (LearnedMapping, error) {
	var m LearnedMapping
	err := s.Scan(
		&m.ID,
		&m.Description,
		&m.CompanyID,
		&m.Category,
		&m.Confidence,
		&m.MatchCount,
		&m.Streak,
		&m.Source,
		&m.PromotedCategory,
		&m.RuleID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func scanCategory(s repository.Scanner) (Category, error) {
	var c Category
	err := s.Scan(&c.Code, &c.Name, &c.Group)
	return c, err
}

// scopeKey mirrors the scope_key generated columns: the company id, or the
// nil UUID for universal scope.
func scopeKey(companyID *uuid.UUID) uuid.UUID {
	if companyID == nil {
		return uuid.Nil
	}
	return *companyID
}
