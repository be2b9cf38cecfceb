package documents

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/pkg/pagination"
	"github.com/JaimeStill/manifest/pkg/query"
	"github.com/JaimeStill/manifest/pkg/repository"
	"github.com/JaimeStill/manifest/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a document repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		logger:     logger.With("system", "documents"),
		pagination: pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Document], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "VendorName", "InvoiceNumber")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	docs, total, err := repository.QueryPage(ctx, r.db, qb, page.Page, page.PageSize, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	result := pagination.NewPageResult(docs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Document, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	d, err := repository.QueryOne(ctx, r.db, q, args, scanDocument)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &d, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Document, error) {
	id := uuid.New()
	key := buildStorageKey(id, sanitizeFilename(cmd.Filename))

	if err := r.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload document blob: %w", err)
	}

	q := `
		INSERT INTO documents(id, filename, content_type, size_bytes, page_count, storage_key, company_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + documentColumns

	insertArgs := []any{
		id,
		cmd.Filename,
		cmd.ContentType,
		int64(len(cmd.Data)),
		cmd.PageCount,
		key,
		cmd.CompanyID,
	}

	d, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Document, error) {
		return repository.QueryOne(ctx, tx, q, insertArgs, scanDocument)
	})

	if err != nil {
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("document created", "id", d.ID, "filename", d.Filename)
	return &d, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := r.Find(ctx, id)
	if err != nil {
		return err
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, "DELETE FROM documents WHERE id = $1", id)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if delErr := r.storage.Delete(ctx, doc.StorageKey); delErr != nil {
		r.logger.Warn(
			"blob delete failed after DB delete",
			"key", doc.StorageKey,
			"error", delErr,
		)
	}

	r.logger.Info("document deleted", "id", id)
	return nil
}

func (r *repo) Begin(ctx context.Context, id uuid.UUID) (*Document, error) {
	q := `
		UPDATE documents
		SET status = $2, attempts = attempts + 1,
			failure_step = NULL, failure_detail = NULL, updated_at = NOW()
		WHERE id = $1 AND status <> $2
		RETURNING ` + documentColumns

	d, err := repository.QueryOne(ctx, r.db, q, []any{id, StatusProcessing}, scanDocument)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := r.Find(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("%w: document %s is already processing", ErrInvalidStatus, id)
	}
	if err != nil {
		return nil, fmt.Errorf("begin document: %w", err)
	}
	return &d, nil
}

func (r *repo) Fail(ctx context.Context, id uuid.UUID, status Status, failure *Failure) (*Document, error) {
	if !status.Terminal() || status.Scored() {
		return nil, fmt.Errorf("%w: %s is not a failure status", ErrInvalidStatus, status)
	}

	var step, detail *string
	if failure != nil {
		step, detail = &failure.Step, &failure.Detail
	}

	q := `
		UPDATE documents
		SET status = $2, failure_step = $3, failure_detail = $4,
			extraction_score = NULL, classification_score = NULL, validation_score = NULL,
			overall_score = NULL, flags = '[]', lane = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + documentColumns

	d, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Document, error) {
		d, err := repository.QueryOne(ctx, tx, q, []any{id, status, step, detail}, scanDocument)
		if err != nil {
			return d, err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM line_items WHERE document_id = $1", id); err != nil {
			return d, fmt.Errorf("clear line items: %w", err)
		}
		return d, nil
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("document failed", "id", id, "status", status)
	return &d, nil
}

func (r *repo) Save(ctx context.Context, id uuid.UUID, cmd SaveCommand) (*Result, error) {
	if !cmd.Status.Scored() {
		return nil, fmt.Errorf("%w: %s is not a scored status", ErrInvalidStatus, cmd.Status)
	}

	flags, err := json.Marshal(cmd.Score.Flags)
	if err != nil {
		return nil, fmt.Errorf("marshal flags: %w", err)
	}

	q := `
		UPDATE documents
		SET status = $2, company_id = COALESCE($3, company_id),
			vendor_name = $4, invoice_number = $5, invoice_date = $6, total = $7, currency = $8,
			extraction_score = $9, classification_score = $10, validation_score = $11,
			overall_score = $12, flags = $13, lane = $14,
			failure_step = NULL, failure_detail = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + documentColumns

	args := []any{
		id,
		cmd.Status,
		cmd.CompanyID,
		nullable(cmd.Header.VendorName),
		nullable(cmd.Header.InvoiceNumber),
		nullable(cmd.Header.InvoiceDate),
		cmd.Header.Total,
		nullable(cmd.Header.Currency),
		cmd.Score.Extraction,
		cmd.Score.Classification,
		cmd.Score.Validation,
		cmd.Score.Overall,
		flags,
		cmd.Score.Lane,
	}

	result, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Result, error) {
		d, err := repository.QueryOne(ctx, tx, q, args, scanDocument)
		if err != nil {
			return Result{}, err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM line_items WHERE document_id = $1", id); err != nil {
			return Result{}, fmt.Errorf("clear line items: %w", err)
		}

		lines := make([]Line, 0, len(cmd.Lines))
		for _, l := range cmd.Lines {
			saved, err := insertLine(ctx, tx, id, l)
			if err != nil {
				return Result{}, err
			}
			lines = append(lines, saved)
		}

		return Result{Document: d, Lines: lines}, nil
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("document saved",
		"id", id,
		"status", cmd.Status,
		"lane", cmd.Score.Lane,
		"overall", cmd.Score.Overall,
		"lines", len(result.Lines),
	)
	return &result, nil
}

func (r *repo) Result(ctx context.Context, id uuid.UUID) (*Result, error) {
	d, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	q := "SELECT " + lineColumns + " FROM line_items WHERE document_id = $1 ORDER BY position"
	lines, err := repository.QueryMany(ctx, r.db, q, []any{id}, scanLine)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}

	return &Result{Document: *d, Lines: lines}, nil
}

func (r *repo) FindLine(ctx context.Context, lineID uuid.UUID) (*Line, error) {
	q := "SELECT " + lineColumns + " FROM line_items WHERE id = $1"
	l, err := repository.QueryOne(ctx, r.db, q, []any{lineID}, scanLine)
	if err != nil {
		return nil, repository.MapError(err, ErrLineNotFound, ErrDuplicate)
	}
	return &l, nil
}

func (r *repo) Correct(ctx context.Context, cmd CorrectCommand) (*Correction, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	c, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Correction, error) {
		var (
			docID     uuid.UUID
			current   string
			normal    string
			companyID *uuid.UUID
		)
		err := tx.QueryRowContext(ctx, `
			SELECT l.document_id, l.category, l.normalized, d.company_id
			FROM line_items l JOIN documents d ON d.id = l.document_id
			WHERE l.id = $1
			FOR UPDATE OF l`, cmd.LineID).Scan(&docID, &current, &normal, &companyID)
		if err != nil {
			return Correction{}, repository.MapError(err, ErrLineNotFound, ErrDuplicate)
		}

		if cmd.PreviousCategory != "" && cmd.PreviousCategory != current {
			return Correction{}, fmt.Errorf("%w: line is %s, not %s", ErrStaleCorrection, current, cmd.PreviousCategory)
		}
		if cmd.CompanyID != nil {
			companyID = cmd.CompanyID
		}

		insert := `
			INSERT INTO corrections(id, line_id, document_id, description, previous_category,
				corrected_category, corrected_by, company_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING ` + correctionColumns

		c, err := repository.QueryOne(ctx, tx, insert, []any{
			uuid.New(), cmd.LineID, docID, normal, current,
			cmd.CorrectedCategory, cmd.CorrectedBy, companyID,
		}, scanCorrection)
		if err != nil {
			return Correction{}, fmt.Errorf("insert correction: %w", err)
		}

		if err := repository.ExecExpectOne(ctx, tx, `
			UPDATE line_items
			SET category = $2, method = $3, confidence = 1, rule_id = NULL,
				reasoning = '', alternatives = '[]', updated_at = NOW()
			WHERE id = $1`,
			cmd.LineID, cmd.CorrectedCategory, classifier.MethodHuman,
		); err != nil {
			return Correction{}, fmt.Errorf("update line item: %w", err)
		}

		return c, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("line corrected",
		"line_id", c.LineID,
		"previous", c.PreviousCategory,
		"corrected", c.CorrectedCategory,
		"by", c.CorrectedBy,
	)
	return &c, nil
}

func (r *repo) Corrections(
	ctx context.Context,
	page pagination.PageRequest,
	filters CorrectionFilters,
) (*pagination.PageResult[Correction], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(correctionProjection, correctionSort).
		WhereSearch(page.Search, "Description")
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	items, total, err := repository.QueryPage(ctx, r.db, qb, page.Page, page.PageSize, scanCorrection)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func insertLine(ctx context.Context, tx *sql.Tx, documentID uuid.UUID, l Line) (Line, error) {
	alts := l.Alternatives
	if alts == nil {
		alts = []classifier.Candidate{}
	}
	altsJSON, err := json.Marshal(alts)
	if err != nil {
		return Line{}, fmt.Errorf("marshal alternatives: %w", err)
	}

	q := `
		INSERT INTO line_items(id, document_id, position, description, normalized, amount,
			category, confidence, method, rule_id, reasoning, alternatives)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + lineColumns

	saved, err := repository.QueryOne(ctx, tx, q, []any{
		uuid.New(), documentID, l.Position, l.Description, l.Normalized, l.Amount,
		l.Category, l.Confidence, l.Method, l.RuleID, l.Reasoning, altsJSON,
	}, scanLine)
	if err != nil {
		return Line{}, fmt.Errorf("insert line item %d: %w", l.Position, err)
	}
	return saved, nil
}

func (c *CorrectCommand) validate() error {
	if c.LineID == uuid.Nil {
		return fmt.Errorf("%w: line_id is required", ErrInvalidCorrection)
	}
	if c.CorrectedCategory == "" {
		return fmt.Errorf("%w: corrected_category is required", ErrInvalidCorrection)
	}
	if c.CorrectedBy == "" {
		return fmt.Errorf("%w: corrected_by is required", ErrInvalidCorrection)
	}
	return nil
}

func buildStorageKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("documents/%s/%s", id, filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "" || name == "/" {
		name = "document"
	}
	return url.PathEscape(name)
}
