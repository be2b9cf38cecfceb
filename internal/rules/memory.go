package rules

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
)

type learnedKey struct {
	description string
	scope       uuid.UUID
}

type memory struct {
	mu         sync.RWMutex
	rules      map[uuid.UUID]*Rule
	learned    map[learnedKey]*LearnedMapping
	categories map[string]Category
	version    atomic.Uint64
	logger     *slog.Logger
	pagination pagination.Config
}

// NewMemory creates a process-local Rule Store. Writes are serialized by a single
// mutex, which gives Learn the same atomic upsert semantics as the Postgres store.
func NewMemory(logger *slog.Logger, pagination pagination.Config) System {
	return &memory{
		rules:      make(map[uuid.UUID]*Rule),
		learned:    make(map[learnedKey]*LearnedMapping),
		categories: make(map[string]Category),
		logger:     logger.With("system", "rules"),
		pagination: pagination,
	}
}

func (m *memory) Handler() *Handler {
	return NewHandler(m, m.logger, m.pagination)
}

func (m *memory) Version() uint64 {
	return m.version.Load()
}

func (m *memory) ActiveRules(ctx context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Rule
	for _, r := range m.rules {
		if r.Active {
			out = append(out, *r)
		}
	}
	sortRules(out)
	return out, nil
}

func (m *memory) Categories(ctx context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Category) int {
		return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.Code, b.Code))
	})
	return out, nil
}

func (m *memory) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Rule], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var all []Rule
	for _, r := range m.rules {
		if !filters.matches(r) || !searchMatches(page.Search, r.Pattern, r.Category) {
			continue
		}
		all = append(all, *r)
	}
	m.mu.RUnlock()

	sortRules(all)
	result := pagination.NewPageResult(pageOf(all, page), len(all), page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Find(ctx context.Context, id uuid.UUID) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *memory) Create(ctx context.Context, cmd CreateCommand) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := cmd.prepare(m.categories); err != nil {
		return nil, err
	}
	if m.activeConflict(cmd.Kind, cmd.Pattern, cmd.CompanyID) != nil {
		return nil, ErrDuplicate
	}

	r := m.insert(cmd, 1, nil)
	m.version.Add(1)

	m.logger.Info("rule created", "id", r.ID, "kind", r.Kind, "category", r.Category)
	out := *r
	return &out, nil
}

func (m *memory) Supersede(ctx context.Context, id uuid.UUID, cmd SupersedeCommand) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !current.Active {
		return nil, ErrInactive
	}

	next := cmd.apply(*current)
	if err := next.prepare(m.categories); err != nil {
		return nil, err
	}
	if c := m.activeConflict(next.Kind, next.Pattern, next.CompanyID); c != nil && c.ID != current.ID {
		return nil, ErrDuplicate
	}

	current.Active = false
	r := m.insert(next, current.Version+1, &current.ID)
	m.version.Add(1)

	m.logger.Info("rule superseded", "id", r.ID, "supersedes", current.ID, "version", r.Version)
	out := *r
	return &out, nil
}

func (m *memory) Deactivate(ctx context.Context, id uuid.UUID) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Active {
		r.Active = false
		m.version.Add(1)
		m.logger.Info("rule deactivated", "id", id)
	}
	out := *r
	return &out, nil
}

func (m *memory) RecordMatches(ctx context.Context, matches []Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, match := range matches {
		r, ok := m.rules[match.RuleID]
		if !ok {
			continue
		}
		r.UsageCount++
		if r.LastMatchedAt == nil || match.MatchedAt.After(*r.LastMatchedAt) {
			at := match.MatchedAt
			r.LastMatchedAt = &at
		}
	}
	return nil
}

func (m *memory) FindLearned(ctx context.Context, description string, companyID *uuid.UUID) (*LearnedMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if companyID != nil {
		if lm, ok := m.learned[learnedKey{description, scopeKey(companyID)}]; ok {
			out := *lm
			return &out, nil
		}
	}
	if lm, ok := m.learned[learnedKey{description, uuid.Nil}]; ok {
		out := *lm
		return &out, nil
	}
	return nil, ErrMappingNotFound
}

func (m *memory) ListLearned(ctx context.Context, page pagination.PageRequest, filters LearnedFilters) (*pagination.PageResult[LearnedMapping], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var all []LearnedMapping
	for _, lm := range m.learned {
		if filters.matches(lm) && searchMatches(page.Search, lm.Description, lm.Category) {
			all = append(all, *lm)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b LearnedMapping) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	result := pagination.NewPageResult(pageOf(all, page), len(all), page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) Learn(ctx context.Context, cmd LearnCommand) (*LearnResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := cmd.prepare(m.categories); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := learnedKey{cmd.Description, scopeKey(cmd.CompanyID)}

	lm, ok := m.learned[key]
	if !ok {
		lm = &LearnedMapping{
			ID:          uuid.New(),
			Description: cmd.Description,
			CompanyID:   cmd.CompanyID,
			Category:    cmd.Category,
			Source:      SourceCorrected,
			CreatedAt:   now,
		}
		m.learned[key] = lm
	}

	lm.MatchCount++
	switch {
	case lm.Streak == 0 || lm.Category != cmd.Category:
		lm.Category = cmd.Category
		lm.Streak = 1
	default:
		lm.Streak++
	}
	lm.Confidence = max(lm.Confidence, cmd.Policy.Confidence(lm.MatchCount))
	lm.UpdatedAt = now

	result := &LearnResult{}
	if lm.Streak >= cmd.Policy.Threshold && !lm.Promoted() {
		result.Rule, result.Promoted = m.promote(lm, cmd)
	}
	if result.Promoted {
		m.version.Add(1)
	}

	result.Mapping = *lm
	return result, nil
}

// promote creates an EXACT rule from a mapping, superseding any active EXACT rule
// for the same pattern and scope. An existing rule with the same category makes
// promotion a no-op that only marks the mapping.
func (m *memory) promote(lm *LearnedMapping, cmd LearnCommand) (*Rule, bool) {
	category := lm.Category

	existing := m.activeConflict(KindExact, lm.Description, lm.CompanyID)
	if existing != nil && existing.Category == category {
		lm.PromotedCategory = &category
		lm.RuleID = &existing.ID
		return nil, false
	}

	version := 1
	var supersedes *uuid.UUID
	if existing != nil {
		existing.Active = false
		version = existing.Version + 1
		supersedes = &existing.ID
	}

	r := m.insert(CreateCommand{
		Scope:     cmd.scope(),
		CompanyID: lm.CompanyID,
		Kind:      KindExact,
		Pattern:   lm.Description,
		Category:  category,
		Priority:  cmp.Or(cmd.Policy.Priority, DefaultPriority),
		Source:    SourceLearned,
	}, version, supersedes)

	lm.PromotedCategory = &category
	lm.RuleID = &r.ID

	m.logger.Info("learned mapping promoted",
		"description", lm.Description,
		"category", category,
		"rule_id", r.ID,
	)
	out := *r
	return &out, true
}

func (m *memory) Seed(ctx context.Context, catalog *Catalog) (*SeedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &SeedResult{}
	for _, cat := range catalog.Categories {
		if _, ok := m.categories[cat.Code]; !ok {
			result.Categories++
		}
		m.categories[cat.Code] = cat
	}

	for _, seed := range catalog.Rules {
		cmd := seed.command()
		if err := cmd.prepare(m.categories); err != nil {
			return nil, err
		}
		if m.activeConflict(cmd.Kind, cmd.Pattern, nil) != nil {
			continue
		}
		m.insert(cmd, 1, nil)
		result.Rules++
	}

	m.version.Add(1)
	return result, nil
}

func (m *memory) insert(cmd CreateCommand, version int, supersedes *uuid.UUID) *Rule {
	r := &Rule{
		ID:           uuid.New(),
		Scope:        cmd.Scope,
		CompanyID:    cmd.CompanyID,
		Kind:         cmd.Kind,
		Pattern:      cmd.Pattern,
		Category:     cmd.Category,
		Priority:     cmd.Priority,
		Active:       true,
		Version:      version,
		SupersedesID: supersedes,
		Source:       cmd.Source,
		CreatedAt:    time.Now().UTC(),
	}
	m.rules[r.ID] = r
	return r
}

func (m *memory) activeConflict(kind Kind, pattern string, companyID *uuid.UUID) *Rule {
	key := scopeKey(companyID)
	for _, r := range m.rules {
		if r.Active && r.Kind == kind && r.Pattern == pattern && scopeKey(r.CompanyID) == key {
			return r
		}
	}
	return nil
}

func sortRules(rs []Rule) {
	slices.SortFunc(rs, func(a, b Rule) int {
		return cmp.Or(
			cmp.Compare(a.Priority, b.Priority),
			a.CreatedAt.Compare(b.CreatedAt),
			strings.Compare(a.ID.String(), b.ID.String()),
		)
	})
}

func searchMatches(search *string, fields ...string) bool {
	if search == nil || *search == "" {
		return true
	}
	needle := strings.ToUpper(*search)
	for _, f := range fields {
		if strings.Contains(strings.ToUpper(f), needle) {
			return true
		}
	}
	return false
}

func pageOf[T any](all []T, page pagination.PageRequest) []T {
	start := min((page.Page-1)*page.PageSize, len(all))
	end := min(start+page.PageSize, len(all))
	return all[start:end]
}
