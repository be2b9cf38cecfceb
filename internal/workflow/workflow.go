// Package workflow runs one invoice through the processing pipeline:
// load → download → extract → identify → classify → score → route → persist.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/manifest/internal/classifier"
	"github.com/JaimeStill/manifest/internal/companies"
	"github.com/JaimeStill/manifest/internal/documents"
	"github.com/JaimeStill/manifest/internal/extraction"
	"github.com/JaimeStill/manifest/internal/scoring"
)

// Result is the final output of one pipeline execution.
type Result struct {
	documents.Result
	Identification *companies.Identification `json:"identification,omitempty"`
	Failures       int                       `json:"classification_failures"`
	CompletedAt    time.Time                 `json:"completed_at"`
}

// state carries one document through the steps.
type state struct {
	doc         *documents.Document
	data        []byte
	extracted   *extraction.Result
	companyID   *uuid.UUID
	companyCode string
	ident       *companies.Identification
	flags       []scoring.Flag
	results     []classifier.Result
	failures    int
}

// Execute processes one registered document. Extraction failures mark the
// document failed_extraction; classification failures are absorbed into
// zero-confidence lines and mark it classification_partial. A rule store
// outage cancels the document. The returned error is a *StepError naming the
// step that failed.
func Execute(ctx context.Context, rt *Runtime, documentID uuid.UUID) (*Result, error) {
	start := time.Now()

	doc, err := rt.Documents.Begin(ctx, documentID)
	if err != nil {
		return nil, stepError(StepLoad, err)
	}

	s := &state{doc: doc, companyID: doc.CompanyID}

	if err := load(ctx, rt, s); err != nil {
		return nil, err
	}

	identify(ctx, rt, s)

	if err := classify(ctx, rt, s); err != nil {
		return nil, err
	}

	out, err := finalize(ctx, rt, s)
	if err != nil {
		return nil, err
	}

	rt.Logger.InfoContext(ctx, "document processed",
		"document_id", documentID,
		"status", out.Document.Status,
		"lane", out.Document.Score.Lane,
		"overall", out.Document.Score.Overall,
		"lines", len(out.Lines),
		"failures", s.failures,
		"duration", time.Since(start),
	)

	return out, nil
}
