// Package learning is the feedback loop from human corrections into the Rule
// Store: every correction is logged, rewrites its line, and upserts a learned
// mapping that is promoted to an EXACT rule once it repeats often enough.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/normalize"
	"github.com/JaimeStill/manifest/internal/rules"
	"github.com/JaimeStill/manifest/internal/telemetry"
	"github.com/JaimeStill/manifest/pkg/pagination"
)

// Outcome is the result of one human correction.
type Outcome struct {
	Correction documents.Correction `json:"correction"`
	Learned    *rules.LearnResult   `json:"learned,omitempty"`
}

// Loop records corrections and feeds them to the Rule Store.
type Loop struct {
	rules      rules.System
	docs       documents.System
	cfg        Config
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Loop.
func New(
	ruleStore rules.System,
	docs documents.System,
	cfg Config,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
	pagination pagination.Config,
) *Loop {
	return &Loop{
		rules:      ruleStore,
		docs:       docs,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With("system", "learning"),
		pagination: pagination,
	}
}

func (l *Loop) Handler() *Handler {
	return NewHandler(l, l.logger, l.pagination)
}

// RecordCorrection upserts the learned mapping for description within the
// company scope. The Rule Store performs the increment, confidence update, and
// any promotion in one atomic step.
func (l *Loop) RecordCorrection(ctx context.Context, description string, companyID *uuid.UUID, category string) (*rules.LearnResult, error) {
	result, err := l.rules.Learn(ctx, rules.LearnCommand{
		Description: description,
		CompanyID:   companyID,
		Category:    category,
		Policy:      l.cfg.Policy(),
	})
	if err != nil {
		return nil, fmt.Errorf("record correction: %w", err)
	}

	l.logger.InfoContext(ctx, "correction learned",
		"description", result.Mapping.Description,
		"category", result.Mapping.Category,
		"match_count", result.Mapping.MatchCount,
		"streak", result.Mapping.Streak,
		"confidence", result.Mapping.Confidence,
	)

	if result.Promoted {
		l.metrics.Promotion()
		attrs := []any{"description", result.Mapping.Description, "category", result.Mapping.Category}
		if result.Rule != nil {
			attrs = append(attrs, "rule_id", result.Rule.ID, "version", result.Rule.Version)
		}
		l.logger.InfoContext(ctx, "learned mapping promoted", attrs...)
	}

	return result, nil
}

// Correct applies a reviewer's correction to a stored line and learns from it.
// The category must exist in the catalog. Lines whose description normalizes
// to nothing are corrected but not learned.
func (l *Loop) Correct(ctx context.Context, cmd documents.CorrectCommand) (*Outcome, error) {
	if err := l.known(ctx, cmd.CorrectedCategory); err != nil {
		return nil, err
	}

	c, err := l.docs.Correct(ctx, cmd)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Correction: *c}
	if normalize.Description(c.Description) == "" {
		return out, nil
	}

	learned, err := l.RecordCorrection(ctx, c.Description, c.CompanyID, c.CorrectedCategory)
	if err != nil {
		return nil, err
	}
	out.Learned = learned
	return out, nil
}

// Corrections lists the corrections log.
func (l *Loop) Corrections(ctx context.Context, page pagination.PageRequest, filters documents.CorrectionFilters) (*pagination.PageResult[documents.Correction], error) {
	return l.docs.Corrections(ctx, page, filters)
}

func (l *Loop) known(ctx context.Context, category string) error {
	categories, err := l.rules.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		if c.Code == category {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", rules.ErrUnknownCategory, category)
}

// MapHTTPStatus maps correction errors from either store to HTTP status codes.
func MapHTTPStatus(err error) int {
	if status := documents.MapHTTPStatus(err); status != http.StatusInternalServerError {
		return status
	}
	return rules.MapHTTPStatus(err)
}
