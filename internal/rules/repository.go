package rules

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
)

type repo struct {
	db         *sql.DB
	version    atomic.Uint64
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Postgres-backed Rule Store.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "rules"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Version() uint64 {
	return r.version.Load()
}

func (r *repo) ActiveRules(ctx context.Context) ([]Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rules WHERE active ORDER BY priority, created_at, id`

	rs, err := repository.QueryMany(ctx, r.db, q, nil, scanRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rs, nil
}

func (r *repo) Categories(ctx context.Context) ([]Category, error) {
	q := `SELECT code, name, category_group FROM categories ORDER BY category_group, code`

	cs, err := repository.QueryMany(ctx, r.db, q, nil, scanCategory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return cs, nil
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Rule], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(ruleProjection, ruleSort...).
		WhereSearch(page.Search, "Pattern", "Category")
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	items, total, err := repository.QueryPage(ctx, r.db, qb, page.Page, page.PageSize, scanRule)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Rule, error) {
	q, args := query.NewBuilder(ruleProjection).BuildSingle("ID", id)

	rule, err := repository.QueryOne(ctx, r.db, q, args, scanRule)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &rule, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Rule, error) {
	categories, err := r.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := cmd.prepare(categories); err != nil {
		return nil, err
	}

	rule, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Rule, error) {
		return insertRule(ctx, tx, cmd, 1, nil)
	})
	if err != nil {
		return nil, mapWriteError(err)
	}

	r.version.Add(1)
	r.logger.Info("rule created", "id", rule.ID, "kind", rule.Kind, "category", rule.Category)
	return &rule, nil
}

func (r *repo) Supersede(ctx context.Context, id uuid.UUID, cmd SupersedeCommand) (*Rule, error) {
	categories, err := r.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}

	rule, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Rule, error) {
		lockQ := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1 FOR UPDATE`
		current, err := repository.QueryOne(ctx, tx, lockQ, []any{id}, scanRule)
		if err != nil {
			return Rule{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}
		if !current.Active {
			return Rule{}, ErrInactive
		}

		next := cmd.apply(current)
		if err := next.prepare(categories); err != nil {
			return Rule{}, err
		}

		if err := repository.ExecExpectOne(ctx, tx,
			"UPDATE rules SET active = FALSE WHERE id = $1", id,
		); err != nil {
			return Rule{}, fmt.Errorf("deactivate rule: %w", err)
		}

		return insertRule(ctx, tx, next, current.Version+1, &current.ID)
	})
	if err != nil {
		return nil, mapWriteError(err)
	}

	r.version.Add(1)
	r.logger.Info("rule superseded", "id", rule.ID, "supersedes", id, "version", rule.Version)
	return &rule, nil
}

func (r *repo) Deactivate(ctx context.Context, id uuid.UUID) (*Rule, error) {
	q := `UPDATE rules SET active = FALSE WHERE id = $1 RETURNING ` + ruleColumns

	rule, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanRule)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.version.Add(1)
	r.logger.Info("rule deactivated", "id", id)
	return &rule, nil
}

func (r *repo) RecordMatches(ctx context.Context, matches []Match) error {
	if len(matches) == 0 {
		return nil
	}

	counts := make(map[uuid.UUID]int)
	latest := make(map[uuid.UUID]time.Time)
	for _, m := range matches {
		counts[m.RuleID]++
		if m.MatchedAt.After(latest[m.RuleID]) {
			latest[m.RuleID] = m.MatchedAt
		}
	}

	q := `
		UPDATE rules
		SET usage_count = usage_count + $2,
			last_matched_at = GREATEST(COALESCE(last_matched_at, $3), $3)
		WHERE id = $1`

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		for id, n := range counts {
			if _, err := tx.ExecContext(ctx, q, id, n, latest[id]); err != nil {
				return struct{}{}, fmt.Errorf("record usage for rule %s: %w", id, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (r *repo) FindLearned(ctx context.Context, description string, companyID *uuid.UUID) (*LearnedMapping, error) {
	q := `
		SELECT ` + learnedColumns + `
		FROM learned_mappings
		WHERE description = $1 AND scope_key IN ($2, '00000000-0000-0000-0000-000000000000'::uuid)
		ORDER BY scope_key DESC
		LIMIT 1`

	lm, err := repository.QueryOne(ctx, r.db, q, []any{description, scopeKey(companyID)}, scanLearned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &lm, nil
}

func (r *repo) ListLearned(ctx context.Context, page pagination.PageRequest, filters LearnedFilters) (*pagination.PageResult[LearnedMapping], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(learnedProjection, learnedSort).
		WhereSearch(page.Search, "Description", "Category")
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	items, total, err := repository.QueryPage(ctx, r.db, qb, page.Page, page.PageSize, scanLearned)
	if err != nil {
		return nil, fmt.Errorf("list learned mappings: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

// Learn performs the increment-or-create upsert and evaluates promotion from the
// returned post-increment row inside one transaction. The upsert's row lock
// serializes concurrent corrections for the same description and scope.
func (r *repo) Learn(ctx context.Context, cmd LearnCommand) (*LearnResult, error) {
	categories, err := r.categoryIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := cmd.prepare(categories); err != nil {
		return nil, err
	}

	upsertQ := `
		INSERT INTO learned_mappings (id, description, company_id, category, confidence, match_count, streak, source)
		VALUES ($1, $2, $3, $4, $5, 1, 1, 'HUMAN_CORRECTION')
		ON CONFLICT (description, scope_key) DO UPDATE SET
			match_count = learned_mappings.match_count + 1,
			streak = CASE
				WHEN learned_mappings.category = EXCLUDED.category THEN learned_mappings.streak + 1
				ELSE 1
			END,
			category = EXCLUDED.category,
			confidence = GREATEST(
				learned_mappings.confidence,
				LEAST($6::double precision, $7::double precision + $8::double precision * (learned_mappings.match_count + 1))
			),
			updated_at = NOW()
		RETURNING ` + learnedColumns

	upsertArgs := []any{
		uuid.New(),
		cmd.Description,
		cmd.CompanyID,
		cmd.Category,
		cmd.Policy.Confidence(1),
		cmd.Policy.Cap,
		cmd.Policy.Base,
		cmd.Policy.Step,
	}

	result, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*LearnResult, error) {
		lm, err := repository.QueryOne(ctx, tx, upsertQ, upsertArgs, scanLearned)
		if err != nil {
			return nil, fmt.Errorf("upsert learned mapping: %w", err)
		}

		result := &LearnResult{Mapping: lm}
		if lm.Streak < cmd.Policy.Threshold || lm.Promoted() {
			return result, nil
		}

		return r.promote(ctx, tx, lm, cmd)
	})
	if err != nil {
		return nil, mapWriteError(err)
	}

	if result.Promoted {
		r.version.Add(1)
		r.logger.Info("learned mapping promoted",
			"description", result.Mapping.Description,
			"category", result.Mapping.Category,
			"rule_id", result.Rule.ID,
		)
	}
	return result, nil
}

func (r *repo) promote(ctx context.Context, tx *sql.Tx, lm LearnedMapping, cmd LearnCommand) (*LearnResult, error) {
	existingQ := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE kind = 'EXACT' AND pattern = $1 AND scope_key = $2 AND active
		FOR UPDATE`

	existing, err := repository.QueryOne(ctx, tx, existingQ, []any{lm.Description, scopeKey(lm.CompanyID)}, scanRule)
	hasExisting := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find conflicting rule: %w", err)
	}

	result := &LearnResult{}
	ruleID := existing.ID

	if !hasExisting || existing.Category != lm.Category {
		version := 1
		var supersedes *uuid.UUID
		if hasExisting {
			if err := repository.ExecExpectOne(ctx, tx,
				"UPDATE rules SET active = FALSE WHERE id = $1", existing.ID,
			); err != nil {
				return nil, fmt.Errorf("deactivate superseded rule: %w", err)
			}
			version = existing.Version + 1
			supersedes = &existing.ID
		}

		rule, err := insertRule(ctx, tx, CreateCommand{
			Scope:     cmd.scope(),
			CompanyID: lm.CompanyID,
			Kind:      KindExact,
			Pattern:   lm.Description,
			Category:  lm.Category,
			Priority:  cmp.Or(cmd.Policy.Priority, DefaultPriority),
			Source:    SourceLearned,
		}, version, supersedes)
		if err != nil {
			return nil, fmt.Errorf("insert promoted rule: %w", err)
		}

		result.Rule = &rule
		result.Promoted = true
		ruleID = rule.ID
	}

	markQ := `
		UPDATE learned_mappings
		SET promoted_category = category, rule_id = $2
		WHERE id = $1
		RETURNING ` + learnedColumns

	marked, err := repository.QueryOne(ctx, tx, markQ, []any{lm.ID, ruleID}, scanLearned)
	if err != nil {
		return nil, fmt.Errorf("mark mapping promoted: %w", err)
	}
	result.Mapping = marked
	return result, nil
}

func (r *repo) Seed(ctx context.Context, catalog *Catalog) (*SeedResult, error) {
	categoryQ := `
		INSERT INTO categories (code, name, category_group)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, category_group = EXCLUDED.category_group
		RETURNING (xmax = 0)`

	ruleQ := `
		INSERT INTO rules (id, scope, kind, pattern, category, priority, source)
		VALUES ($1, 'UNIVERSAL', $2, $3, $4, $5, 'SEED')
		ON CONFLICT DO NOTHING`

	result, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*SeedResult, error) {
		result := &SeedResult{}

		for _, c := range catalog.Categories {
			inserted, err := repository.QueryValue[bool](ctx, tx, categoryQ, c.Code, c.Name, c.Group)
			if err != nil {
				return nil, fmt.Errorf("seed category %s: %w", c.Code, err)
			}
			if inserted {
				result.Categories++
			}
		}

		for _, s := range catalog.Rules {
			res, err := tx.ExecContext(ctx, ruleQ, uuid.New(), s.Kind, s.Pattern, s.Category, s.Priority)
			if err != nil {
				return nil, fmt.Errorf("seed rule %s: %w", s.Pattern, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				result.Rules++
			}
		}

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	r.version.Add(1)
	r.logger.Info("catalog seeded", "categories", result.Categories, "rules", result.Rules)
	return result, nil
}

func (r *repo) categoryIndex(ctx context.Context) (map[string]Category, error) {
	cs, err := r.Categories(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]Category, len(cs))
	for _, c := range cs {
		index[c.Code] = c
	}
	return index, nil
}

func insertRule(ctx context.Context, tx *sql.Tx, cmd CreateCommand, version int, supersedes *uuid.UUID) (Rule, error) {
	q := `
		INSERT INTO rules (id, scope, company_id, kind, pattern, category, priority, version, supersedes_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + ruleColumns

	args := []any{
		uuid.New(),
		cmd.Scope,
		cmd.CompanyID,
		cmd.Kind,
		cmd.Pattern,
		cmd.Category,
		cmd.Priority,
		version,
		supersedes,
		cmd.Source,
	}

	return repository.QueryOne(ctx, tx, q, args, scanRule)
}

func mapWriteError(err error) error {
	err = repository.MapError(err, ErrNotFound, ErrDuplicate)
	return repository.MapConstraint(err, ErrUnknownCategory)
}
