package companies

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
)

type repo struct {
	db         *sql.DB
	cfg        Config
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Postgres-backed company registry.
func New(db *sql.DB, cfg Config, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		cfg:        cfg,
		logger:     logger.With("system", "companies"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Company], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Code", "Name")
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	items, total, err := repository.QueryPage(ctx, r.db, qb, page.Page, page.PageSize, scanCompany)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Company, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	c, err := repository.QueryOne(ctx, r.db, q, args, scanCompany)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) FindByCode(ctx context.Context, code string) (*Company, error) {
	q, args := query.NewBuilder(projection).BuildSingle("Code", code)

	c, err := repository.QueryOne(ctx, r.db, q, args, scanCompany)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Company, error) {
	if err := cmd.prepare(); err != nil {
		return nil, err
	}

	patterns := make([][]byte, 0, 4)
	for _, ss := range [][]string{cmd.Names, cmd.Keywords, cmd.Formats, cmd.LogoText} {
		b, err := json.Marshal(ss)
		if err != nil {
			return nil, fmt.Errorf("marshal patterns: %w", err)
		}
		patterns = append(patterns, b)
	}

	c, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Company, error) {
		q := `
			INSERT INTO companies (code, name, names, keywords, formats, logo_text, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + columns

		return repository.QueryOne(ctx, tx, q, []any{
			cmd.Code, cmd.Name, patterns[0], patterns[1], patterns[2], patterns[3], cmd.Priority,
		}, scanCompany)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("company created", "id", c.ID, "code", c.Code)
	return &c, nil
}

func (r *repo) Active(ctx context.Context) ([]Company, error) {
	q := `SELECT ` + columns + ` FROM companies WHERE active ORDER BY priority DESC, code`

	cs, err := repository.QueryMany(ctx, r.db, q, nil, scanCompany)
	if err != nil {
		return nil, fmt.Errorf("query active companies: %w", err)
	}
	return cs, nil
}

func (r *repo) Identify(ctx context.Context, text string) (*Identification, error) {
	cs, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}
	id := NewMatcher(cs, r.cfg).Identify(text)
	return &id, nil
}
